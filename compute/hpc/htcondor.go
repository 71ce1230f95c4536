package hpc

import (
	"regexp"
	"strings"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
)

var condorTemplate = `universe       = vanilla
executable     = {{.Executable}}
arguments      = "{{.Args}}"
log            = {{.SubmitDir}}/condor-event-log
output         = {{.Stdout}}
error          = {{.Stderr}}
{{if .Stdin -}}
input          = {{.Stdin}}
{{end -}}
initialdir     = {{.WorkDir}}

{{if ne .Cpus 0 -}}
{{printf "request_cpus = %d" .Cpus}}
{{end -}}
{{if ne .RamGb 0.0 -}}
{{printf "request_memory = %.2f GB" .RamGb}}
{{end -}}
{{if ne .DiskGb 0.0 -}}
{{printf "request_disk = %.2f GB" .DiskGb}}
{{end -}}
{{if .NativeSpec -}}
{{.NativeSpec}}
{{end -}}

queue
`

// NewHTCondor returns a Backend driving HTCondor via
// condor_submit/condor_q/condor_rm. An empty template selects the
// default.
//
// TODO read the exit code from condor_history so a completed job can
// be distinguished from a failed one without the exit file.
func NewHTCondor(workDir, template string, log *logger.Logger) *Backend {
	if template == "" {
		template = condorTemplate
	}
	return &Backend{
		Name:      "htcondor",
		SubmitCmd: "condor_submit",
		CancelCmd: "condor_rm",
		StatusCmd: "condor_q",
		StatusArgs: func(drmID string) []string {
			return []string{drmID, "-format", "%d", "JobStatus"}
		},
		Template:  template,
		WorkDir:   workDir,
		ExtractID: condorExtractID,
		MapState:  condorMapState,
		Log:       log,
	}
}

// condorExtractID extracts the cluster ID from condor_submit output.
// Example: 1 job(s) submitted to cluster 2.
var condorExtractIDRe = regexp.MustCompile(`submitted to cluster ([0-9]+)`)

func condorExtractID(in string) string {
	m := condorExtractIDRe.FindStringSubmatch(in)
	if m == nil {
		return ""
	}
	return m[1]
}

// condorMapState interprets the numeric JobStatus attribute:
// 1 idle, 2 running, 3 removed, 4 completed, 5 held, 6 transferring.
func condorMapState(stdout string, runErr error) (compute.State, bool) {
	switch strings.TrimSpace(stdout) {
	case "1", "5":
		return compute.StateQueued, true
	case "2", "6":
		return compute.StateRunning, true
	case "3":
		return compute.StateCanceled, true
	case "4":
		return compute.StateComplete, true
	}
	// The job has left the queue; the exit file decides.
	return compute.StateUnknown, false
}

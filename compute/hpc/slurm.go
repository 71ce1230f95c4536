package hpc

import (
	"regexp"
	"strings"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
)

var slurmTemplate = `#!/bin/bash
#SBATCH --job-name {{.TaskId}}
#SBATCH --ntasks 1
#SBATCH --output {{.Stdout}}
#SBATCH --error {{.Stderr}}
{{if .Queue -}}
#SBATCH --partition {{.Queue}}
{{end -}}
{{if .WallTime -}}
#SBATCH --time {{.WallTime}}
{{end -}}
{{if ne .Cpus 0 -}}
{{printf "#SBATCH --cpus-per-task %d" .Cpus}}
{{end -}}
{{if ne .RamGb 0.0 -}}
{{printf "#SBATCH --mem %.0fGB" .RamGb}}
{{end -}}
{{if ne .DiskGb 0.0 -}}
{{printf "#SBATCH --tmp %.0fGB" .DiskGb}}
{{end -}}
{{if .NativeSpec -}}
#SBATCH {{.NativeSpec}}
{{end -}}

cd {{.WorkDir}}
{{.Command}}{{if .Stdin}} < {{.Stdin}}{{end}}
echo $? > {{.SubmitDir}}/exitcode
`

// NewSlurm returns a Backend driving Slurm via sbatch/sacct/scancel.
// An empty template selects the default.
func NewSlurm(workDir, template string, log *logger.Logger) *Backend {
	if template == "" {
		template = slurmTemplate
	}
	return &Backend{
		Name:      "slurm",
		SubmitCmd: "sbatch",
		CancelCmd: "scancel",
		StatusCmd: "sacct",
		StatusArgs: func(drmID string) []string {
			return []string{"-n", "-X", "-o", "State", "-j", drmID}
		},
		Template:  template,
		WorkDir:   workDir,
		ExtractID: slurmExtractID,
		MapState:  slurmMapState,
		Log:       log,
	}
}

// slurmExtractID extracts the job ID from sbatch output. Example:
// Submitted batch job 2
var slurmExtractIDRe = regexp.MustCompile(`(Submitted batch job )([0-9]+)`)

func slurmExtractID(in string) string {
	m := slurmExtractIDRe.FindStringSubmatch(in)
	if m == nil {
		return ""
	}
	return m[2]
}

// slurmMapState interprets sacct State output. Falls through to the
// exit file when accounting has no record.
func slurmMapState(stdout string, runErr error) (compute.State, bool) {
	s := strings.TrimSpace(stdout)
	switch {
	case s == "":
		return compute.StateUnknown, false
	case strings.HasPrefix(s, "PENDING"),
		strings.HasPrefix(s, "CONFIGURING"),
		strings.HasPrefix(s, "REQUEUED"),
		strings.HasPrefix(s, "SUSPENDED"):
		return compute.StateQueued, true
	case strings.HasPrefix(s, "RUNNING"),
		strings.HasPrefix(s, "COMPLETING"):
		return compute.StateRunning, true
	case strings.HasPrefix(s, "COMPLETED"):
		return compute.StateComplete, true
	case strings.HasPrefix(s, "CANCELLED"):
		return compute.StateCanceled, true
	case strings.HasPrefix(s, "FAILED"),
		strings.HasPrefix(s, "TIMEOUT"),
		strings.HasPrefix(s, "NODE_FAIL"),
		strings.HasPrefix(s, "PREEMPTED"),
		strings.HasPrefix(s, "OUT_OF_ME"),
		strings.HasPrefix(s, "BOOT_FAIL"),
		strings.HasPrefix(s, "DEADLINE"):
		return compute.StateFailed, true
	}
	return compute.StateUnknown, false
}

package hpc

import (
	"regexp"
	"strings"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
)

var pbsTemplate = `#!/bin/bash
#PBS -N {{.TaskId}}
#PBS -o {{.Stdout}}
#PBS -e {{.Stderr}}
{{if .Queue -}}
#PBS -q {{.Queue}}
{{end -}}
{{if .WallTime -}}
#PBS -l walltime={{.WallTime}}
{{end -}}
{{if ne .Cpus 0 -}}
{{printf "#PBS -l nodes=%d:ppn=%d" (or .Nodes 1) .Cpus}}
{{end -}}
{{if ne .RamGb 0.0 -}}
{{printf "#PBS -l mem=%.0fgb" .RamGb}}
{{end -}}
{{if .NativeSpec -}}
#PBS {{.NativeSpec}}
{{end -}}

cd {{.WorkDir}}
{{.Command}}{{if .Stdin}} < {{.Stdin}}{{end}}
echo $? > {{.SubmitDir}}/exitcode
`

// NewPBS returns a Backend driving PBS/Torque via qsub/qstat/qdel.
// An empty template selects the default.
func NewPBS(workDir, template string, log *logger.Logger) *Backend {
	if template == "" {
		template = pbsTemplate
	}
	return &Backend{
		Name:       "pbs",
		SubmitCmd:  "qsub",
		CancelCmd:  "qdel",
		StatusCmd:  "qstat",
		StatusArgs: func(drmID string) []string { return []string{drmID} },
		Template:   template,
		WorkDir:    workDir,
		ExtractID:  pbsExtractID,
		MapState:   pbsMapState,
		Log:        log,
	}
}

// pbsExtractID extracts the job ID from qsub output, which is the
// full job identifier on a line by itself. Example: 12345.pbshost
var pbsExtractIDRe = regexp.MustCompile(`^([0-9]+(\.[^\s]+)?)\s*$`)

func pbsExtractID(in string) string {
	m := pbsExtractIDRe.FindStringSubmatch(strings.TrimSpace(in))
	if m == nil {
		return ""
	}
	return m[1]
}

// pbsStateRe matches the single-letter state column of qstat output.
var pbsStateRe = regexp.MustCompile(`\s([QWHRETC])\s`)

// pbsMapState interprets "qstat <id>". Q/W/H are queued, R/E/T are
// running, C is finished. An unknown job falls through to the exit
// file.
func pbsMapState(stdout string, runErr error) (compute.State, bool) {
	if runErr != nil {
		return compute.StateUnknown, false
	}
	m := pbsStateRe.FindStringSubmatch(stdout)
	if m == nil {
		return compute.StateUnknown, false
	}
	switch m[1] {
	case "Q", "W", "H":
		return compute.StateQueued, true
	case "R", "E", "T":
		return compute.StateRunning, true
	}
	// "C": completed, exit status unknown here.
	return compute.StateUnknown, false
}

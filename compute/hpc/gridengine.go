package hpc

import (
	"regexp"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
)

// The following variables are available for use in submit templates:
//
//	TaskId       node ID within the workflow
//	WorkflowId   workflow ID
//	Name         job name
//	Command      full shell-quoted command line
//	Executable   first command argument
//	Args         shell-quoted remaining arguments
//	WorkDir      job working directory
//	SubmitDir    directory holding the submit file and exit file
//	Stdin/Stdout/Stderr  redirection targets
//	Cpus/RamGb/DiskGb/WallTime/Queue/ParallelEnv/Nodes
//	NativeSpec   passed through verbatim
//
// See https://golang.org/pkg/text/template for more information.

var gridEngineTemplate = `#!/bin/bash
#$ -N {{.TaskId}}
#$ -o {{.Stdout}}
#$ -e {{.Stderr}}
{{if .Queue -}}
#$ -q {{.Queue}}
{{end -}}
{{if .WallTime -}}
#$ -l h_rt={{.WallTime}}
{{end -}}
{{if ne .Cpus 0 -}}
#$ -pe {{if .ParallelEnv}}{{.ParallelEnv}}{{else}}smp{{end}} {{.Cpus}}
{{end -}}
{{if ne .RamGb 0.0 -}}
{{printf "#$ -l h_vmem=%.0fG" .RamGb}}
{{end -}}
{{if .NativeSpec -}}
#$ {{.NativeSpec}}
{{end -}}

cd {{.WorkDir}}
{{.Command}}{{if .Stdin}} < {{.Stdin}}{{end}}
echo $? > {{.SubmitDir}}/exitcode
`

// NewGridEngine returns a Backend driving Grid Engine (SGE/OGE) via
// qsub/qstat/qdel. An empty template selects the default.
func NewGridEngine(workDir, template string, log *logger.Logger) *Backend {
	if template == "" {
		template = gridEngineTemplate
	}
	return &Backend{
		Name:       "gridengine",
		SubmitCmd:  "qsub",
		CancelCmd:  "qdel",
		StatusCmd:  "qstat",
		StatusArgs: func(drmID string) []string { return []string{"-j", drmID} },
		Template:   template,
		WorkDir:    workDir,
		ExtractID:  geExtractID,
		MapState:   geMapState,
		Log:        log,
	}
}

// geExtractID extracts the job ID from qsub output. Example:
// Your job 2 ("gridengine.submit") has been submitted
var geExtractIDRe = regexp.MustCompile(`(Your job )([0-9]+)( \(".*"\) has been submitted)\n$`)

func geExtractID(in string) string {
	m := geExtractIDRe.FindStringSubmatch(in)
	if m == nil {
		return ""
	}
	return m[2]
}

// geMapState interprets "qstat -j <id>". Grid Engine exits non-zero
// when the job is gone from the queue; the exit file decides then.
func geMapState(stdout string, runErr error) (compute.State, bool) {
	if runErr == nil {
		return compute.StateRunning, true
	}
	return compute.StateUnknown, false
}

// Package hpc provides a generic backend for HPC resource managers
// such as Grid Engine, PBS/Torque, Slurm, and HTCondor. Submission
// writes a templated submit file and runs the manager's submit command
// (qsub, sbatch, condor_submit, ...); status and cancellation shell
// out the same way. A shared filesystem between the engine and the
// cluster is assumed.
package hpc

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	shellquote "github.com/kballard/go-shellquote"
	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/logger"
	"github.com/somaflow/somaflow/util/fsutil"
)

// exitFileName is written by the templated submit script when the job
// command finishes, holding its exit code. Status falls back to it
// when the resource manager no longer knows the job.
const exitFileName = "exitcode"

// Backend drives an HPC resource manager through its command-line
// tools. One instance exists per configured resource.
type Backend struct {
	// Name of the resource manager, e.g. "gridengine".
	Name string

	// SubmitCmd submits a templated file, e.g. "qsub".
	SubmitCmd string
	// CancelCmd cancels by resource manager job ID, e.g. "qdel".
	CancelCmd string
	// StatusCmd queries by resource manager job ID, e.g. "qstat".
	StatusCmd string
	// StatusArgs builds the argument list for StatusCmd.
	StatusArgs func(drmID string) []string

	// Template is the text/template source for the submit file.
	Template string

	// WorkDir is the root under which per-task submit directories are
	// created on the shared filesystem.
	WorkDir string

	// ExtractID extracts the resource manager job ID from submit
	// command output.
	ExtractID func(string) string

	// MapState maps status command output (and its exit error, if
	// any) to the backend-independent state. ok=false means the
	// manager no longer knows the job and the exit file decides.
	MapState func(stdout string, runErr error) (st compute.State, ok bool)

	Log *logger.Logger
}

// Submit renders the submit file for the task and submits it via the
// resource manager's submit command. The returned backend ID combines
// the manager's job ID with the submit directory key, so that Status
// can consult the exit file on the shared filesystem.
func (b *Backend) Submit(ctx context.Context, task *compute.Task) (string, error) {
	submitPath, err := b.setupTemplatedSubmit(task)
	if err != nil {
		return "", compute.FatalError(err)
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, b.SubmitCmd, submitPath)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// The manager ran and rejected the submission; the job
			// spec is at fault.
			return "", compute.FatalError(fmt.Errorf(
				"%s rejected submission: %v; stderr: %s", b.Name, err, stderr.String()))
		}
		// Couldn't run the submit command at all.
		return "", compute.TransientError(fmt.Errorf(
			"error running %s: %v", b.SubmitCmd, err))
	}

	drmID := b.ExtractID(stdout.String())
	if drmID == "" {
		return "", compute.FatalError(fmt.Errorf(
			"can't extract %s job ID from output: %q", b.Name, stdout.String()))
	}

	b.Log.Info("Submitted task", "taskID", task.ID, b.Name+"_id", drmID)
	return joinID(drmID, task.WorkflowID, task.ID), nil
}

// Status queries the status of a job, e.g. via "qstat" or "sacct".
// When the manager no longer knows the job, the exit file written by
// the submit script decides between complete and failed; if the exit
// file is missing too, the status is unknown.
func (b *Backend) Status(ctx context.Context, backendID string) (compute.State, error) {
	drmID, subKey := splitID(backendID)

	var stdout bytes.Buffer
	cmd := exec.CommandContext(ctx, b.StatusCmd, b.StatusArgs(drmID)...)
	cmd.Stdout = &stdout

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return compute.StateUnknown, compute.TransientError(fmt.Errorf(
				"error running %s: %v", b.StatusCmd, err))
		}
		// Several managers exit non-zero for finished or unknown
		// jobs; MapState interprets that.
	}

	if st, ok := b.MapState(stdout.String(), err); ok {
		return st, nil
	}

	code, found := b.readExitCode(subKey)
	if !found {
		return compute.StateUnknown, nil
	}
	if code == 0 {
		return compute.StateComplete, nil
	}
	return compute.StateFailed, nil
}

// Cancel cancels a job via "qdel", "scancel", "condor_rm", etc.
func (b *Backend) Cancel(ctx context.Context, backendID string) error {
	drmID, _ := splitID(backendID)
	err := exec.CommandContext(ctx, b.CancelCmd, drmID).Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			// Already gone; cancel is best effort.
			return nil
		}
		return compute.TransientError(fmt.Errorf(
			"error running %s: %v", b.CancelCmd, err))
	}
	return nil
}

func (b *Backend) readExitCode(subKey string) (int, bool) {
	raw, err := os.ReadFile(path.Join(b.WorkDir, subKey, exitFileName))
	if err != nil {
		return 0, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, false
	}
	return code, true
}

// joinID builds the composite backend ID "drmID workflowID/taskID".
func joinID(drmID, workflowID, taskID string) string {
	return drmID + " " + workflowID + "/" + taskID
}

func splitID(backendID string) (drmID, subKey string) {
	parts := strings.SplitN(backendID, " ", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return backendID, ""
}

// setupTemplatedSubmit writes the submit file for a task under the
// backend work directory, rendering the template for schedulers such
// as SLURM, HTCondor, SGE, PBS/Torque, etc.
func (b *Backend) setupTemplatedSubmit(task *compute.Task) (string, error) {
	workdir := path.Join(b.WorkDir, task.WorkflowID, task.ID)
	workdir, _ = filepath.Abs(workdir)
	if err := fsutil.EnsureDir(workdir); err != nil {
		return "", err
	}
	if err := fsutil.EnsureDir(task.WorkDir); err != nil {
		return "", err
	}

	submitName := fmt.Sprintf("%s.submit", b.Name)
	submitPath := path.Join(workdir, submitName)
	f, err := os.Create(submitPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	submitTpl, err := template.New(submitName).Parse(b.Template)
	if err != nil {
		return "", err
	}
	return submitPath, submitTpl.Execute(f, fields(task, workdir))
}

// fields builds the data available to submit templates.
func fields(task *compute.Task, submitDir string) map[string]interface{} {
	executable := ""
	args := ""
	if len(task.Command) > 0 {
		executable = task.Command[0]
		args = shellquote.Join(task.Command[1:]...)
	}
	return map[string]interface{}{
		"TaskId":      task.ID,
		"WorkflowId":  task.WorkflowID,
		"Name":        task.Name,
		"Command":     shellquote.Join(task.Command...),
		"Executable":  executable,
		"Args":        args,
		"WorkDir":     task.WorkDir,
		"SubmitDir":   submitDir,
		"Stdin":       task.Stdin,
		"Stdout":      task.Stdout,
		"Stderr":      task.Stderr,
		"Cpus":        task.Resources.CPUCores,
		"RamGb":       task.Resources.RAMGb,
		"DiskGb":      task.Resources.DiskGb,
		"WallTime":    task.Resources.WallTime,
		"Queue":       task.Resources.Queue,
		"ParallelEnv": task.Resources.ParallelEnv,
		"Nodes":       task.Resources.Nodes,
		"NativeSpec":  task.NativeSpec,
	}
}

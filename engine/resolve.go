package engine

import (
	"fmt"
	"path/filepath"

	"github.com/somaflow/somaflow/compute"
	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/transfer"
	"github.com/somaflow/somaflow/wf"
)

// resource looks up a resource configuration by name.
func (c *controller) resource(name string) (config.Resource, error) {
	res, ok := c.eng.conf.Resources[name]
	if !ok {
		return config.Resource{}, fmt.Errorf("resource %q is not configured", name)
	}
	return res, nil
}

// resolveRef resolves a "${refID}" path placeholder against the given
// resource. Resolution is deterministic for a (resource, reference)
// pair: transfers resolve to their staged location, shared resource
// paths through the resource's namespace table, and temporary paths
// under the workflow scratch directory.
func (c *controller) resolveRef(res config.Resource, refID string) (string, error) {
	if t := c.w.GetTransfer(refID); t != nil {
		tres, err := c.resource(t.Resource)
		if err != nil {
			return "", err
		}
		return filepath.Join(storageRoot(tres), c.w.ID, remoteName(t)), nil
	}
	if sp, ok := c.w.SharedPaths[refID]; ok {
		base, ok := res.Paths[sp.Namespace]
		if !ok {
			return "", fmt.Errorf("shared path namespace %q has no mapping on this resource", sp.Namespace)
		}
		return filepath.Join(base, sp.UUID, sp.RelativePath), nil
	}
	if tp, ok := c.w.TempPaths[refID]; ok {
		return filepath.Join(res.WorkDir, c.w.ID, "tmp", refID+tp.Suffix), nil
	}
	return "", fmt.Errorf("unknown path reference %q", refID)
}

// buildTask turns a job into a dispatch-ready task, resolving all
// path placeholders against the job's target resource. Returns the
// resource name alongside the task. Reads only immutable workflow
// state; safe without the controller mutex.
func (c *controller) buildTask(id string) (*compute.Task, string, error) {
	j := c.w.GetJob(id)
	if j == nil {
		return nil, "", wf.ErrNotFound
	}
	res, err := c.resource(j.Resource)
	if err != nil {
		return nil, "", err
	}

	nodeDir := filepath.Join(res.WorkDir, c.w.ID, id)

	var rerr error
	lookup := func(ref string) (string, bool) {
		p, err := c.resolveRef(res, ref)
		if err != nil && rerr == nil {
			rerr = err
		}
		return p, err == nil
	}
	resolve := func(s string) string {
		if s == "" {
			return ""
		}
		return wf.ResolveRefs(s, lookup)
	}

	command := make([]string, len(j.Command))
	for i, arg := range j.Command {
		command[i] = resolve(arg)
	}

	workDir := resolve(j.WorkingDirectory)
	if workDir == "" {
		workDir = nodeDir
	}
	stdout := resolve(j.Stdout)
	if stdout == "" {
		stdout = filepath.Join(nodeDir, "stdout")
	}
	var stderr string
	if j.JoinStderr {
		stderr = stdout
	} else {
		stderr = resolve(j.Stderr)
		if stderr == "" {
			stderr = filepath.Join(nodeDir, "stderr")
		}
	}

	if rerr != nil {
		return nil, "", rerr
	}

	return &compute.Task{
		ID:         id,
		WorkflowID: c.w.ID,
		Name:       j.Name,
		Command:    command,
		WorkDir:    workDir,
		Stdin:      resolve(j.Stdin),
		Stdout:     stdout,
		Stderr:     stderr,
		Resources:  j.Resources,
		NativeSpec: j.NativeSpec,
	}, j.Resource, nil
}

// buildTransferSpec turns a file transfer into a dispatch-ready spec
// with both endpoints fully resolved.
func (c *controller) buildTransferSpec(id string) (*transfer.Spec, error) {
	t := c.w.GetTransfer(id)
	if t == nil {
		return nil, wf.ErrNotFound
	}
	res, err := c.resource(t.Resource)
	if err != nil {
		return nil, err
	}
	return &transfer.Spec{
		ID:          id,
		WorkflowID:  c.w.ID,
		Direction:   t.Direction,
		ClientPath:  t.ClientPath,
		RemotePath:  filepath.Join(storageRoot(res), c.w.ID, remoteName(t)),
		IsDirectory: t.IsDirectory,
	}, nil
}

func storageRoot(res config.Resource) string {
	if res.StorageRoot != "" {
		return res.StorageRoot
	}
	return filepath.Join(res.WorkDir, "storage")
}

// remoteName returns the transfer's path relative to the workflow
// staging root.
func remoteName(t *wf.FileTransfer) string {
	if t.RemotePath != "" {
		return t.RemotePath
	}
	return filepath.Base(t.ClientPath)
}

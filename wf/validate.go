package wf

import (
	"fmt"

	multierror "github.com/hashicorp/go-multierror"
)

// Validate statically validates a workflow prior to submission:
// unique node IDs, resolvable references, and well-formed nodes.
// Cycle detection happens separately when the dependency graph is
// built.
func Validate(w *Workflow) error {
	var result *multierror.Error

	if w.Name == "" {
		result = multierror.Append(result, &ValidationError{Reason: "workflow name is required"})
	}
	if len(w.Jobs) == 0 && len(w.Transfers) == 0 {
		result = multierror.Append(result, &ValidationError{Reason: "workflow contains no nodes"})
	}

	seen := map[string]bool{}
	for _, id := range w.NodeIDs() {
		if id == "" {
			result = multierror.Append(result, &ValidationError{Reason: "node with empty ID"})
			continue
		}
		if seen[id] {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("duplicate node ID %q", id)})
		}
		seen[id] = true
	}
	for id := range w.SharedPaths {
		if seen[id] {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("shared path ID %q collides with a node ID", id)})
		}
	}
	for id := range w.TempPaths {
		if seen[id] {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("temporary path ID %q collides with a node ID", id)})
		}
		if _, ok := w.SharedPaths[id]; ok {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("path ID %q registered as both shared and temporary", id)})
		}
	}

	refOK := func(id string) bool {
		if w.GetTransfer(id) != nil {
			return true
		}
		if _, ok := w.SharedPaths[id]; ok {
			return true
		}
		_, ok := w.TempPaths[id]
		return ok
	}

	for _, j := range w.Jobs {
		if j.Barrier {
			if len(j.Command) != 0 {
				result = multierror.Append(result, &ValidationError{
					Reason: fmt.Sprintf("barrier job %q must not have a command", j.ID)})
			}
		} else if len(j.Command) == 0 {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("job %q has no command", j.ID)})
		}

		for _, arg := range j.Command {
			for _, ref := range Refs(arg) {
				if !refOK(ref) {
					result = multierror.Append(result, &ValidationError{
						Reason: fmt.Sprintf("job %q references unknown path %q", j.ID, ref)})
				}
			}
		}
		for _, s := range []string{j.Stdin, j.Stdout, j.Stderr, j.WorkingDirectory} {
			for _, ref := range Refs(s) {
				if !refOK(ref) {
					result = multierror.Append(result, &ValidationError{
						Reason: fmt.Sprintf("job %q references unknown path %q", j.ID, ref)})
				}
			}
		}
		for _, in := range j.Inputs {
			if w.GetTransfer(in) == nil {
				result = multierror.Append(result, &ValidationError{
					Reason: fmt.Sprintf("job %q input %q is not a transfer", j.ID, in)})
			}
		}
		for _, out := range j.Outputs {
			if w.GetTransfer(out) == nil {
				result = multierror.Append(result, &ValidationError{
					Reason: fmt.Sprintf("job %q output %q is not a transfer", j.ID, out)})
			}
		}
	}

	for _, t := range w.Transfers {
		if t.ClientPath == "" {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("transfer %q has no client path", t.ID)})
		}
		if t.Direction != Upload && t.Direction != Download {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("transfer %q has invalid direction", t.ID)})
		}
	}

	for _, e := range w.Edges() {
		if e.Pre == e.Post {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("node %q depends on itself", e.Pre)})
			continue
		}
		if !seen[e.Pre] {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("dependency references unknown node %q", e.Pre)})
		}
		if !seen[e.Post] {
			result = multierror.Append(result, &ValidationError{
				Reason: fmt.Sprintf("dependency references unknown node %q", e.Post)})
		}
	}

	validateGroups(w, w.Groups, seen, &result)

	return result.ErrorOrNil()
}

func validateGroups(w *Workflow, groups []Group, seen map[string]bool, result **multierror.Error) {
	for _, g := range groups {
		for _, el := range g.Elements {
			if !seen[el] {
				*result = multierror.Append(*result, &ValidationError{
					Reason: fmt.Sprintf("group %q references unknown node %q", g.Name, el)})
			}
		}
		validateGroups(w, g.Groups, seen, result)
	}
}

package wf

import (
	"regexp"
)

// SharedResourcePath is a symbolic reference to a path which is
// resolved differently per computing resource, e.g. a shared
// filesystem mount point that differs by site. It is never resolved at
// construction time; the engine resolves it at dispatch time against
// the per-resource namespace table, deterministically for a given
// (resource, namespace) pair.
type SharedResourcePath struct {
	// Namespace is the symbolic key looked up in the resource's path
	// table to obtain the site-specific base directory.
	Namespace string `json:"namespace"`

	// UUID identifies a subdirectory of the namespace owned by the
	// submitting client.
	UUID string `json:"uuid,omitempty"`

	// RelativePath is the path relative to the resolved base.
	RelativePath string `json:"relativePath"`
}

// TemporaryPath is a scratch file or directory allocated by the engine
// under the resource working directory at dispatch time. It exists for
// passing intermediate results between jobs without declaring a
// transfer.
type TemporaryPath struct {
	// Suffix is appended to the generated path, e.g. ".nii".
	Suffix      string `json:"suffix,omitempty"`
	IsDirectory bool   `json:"isDirectory,omitempty"`
}

// placeholderRE matches path placeholders of the form "${refID}" in
// job command arguments and redirection targets.
var placeholderRE = regexp.MustCompile(`\$\{([A-Za-z0-9][A-Za-z0-9_.-]*)\}`)

// Ref formats a path reference placeholder for use in job commands.
func Ref(id string) string {
	return "${" + id + "}"
}

// Refs returns the reference IDs of all placeholders in the string.
func Refs(s string) []string {
	var ids []string
	for _, m := range placeholderRE.FindAllStringSubmatch(s, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

// ResolveRefs replaces each placeholder in the string using the given
// lookup function. The lookup result is substituted verbatim.
func ResolveRefs(s string, lookup func(id string) (string, bool)) string {
	return placeholderRE.ReplaceAllStringFunc(s, func(m string) string {
		id := placeholderRE.FindStringSubmatch(m)[1]
		if p, ok := lookup(id); ok {
			return p
		}
		return m
	})
}

package wf

// Group is a named, possibly nested collection of nodes used purely
// for presentation and monitoring aggregation. Groups have no effect
// on scheduling order; ordering comes only from dependency edges.
type Group struct {
	Name string `json:"name"`

	// Elements lists the node IDs contained directly in this group.
	Elements []string `json:"elements,omitempty"`

	// Groups lists nested subgroups.
	Groups []Group `json:"groups,omitempty"`
}

package util

import (
	"github.com/rs/xid"
)

// GenID generates an ID string for workflows and nodes.
// IDs are globally unique and sortable.
func GenID() string {
	return xid.New().String()
}

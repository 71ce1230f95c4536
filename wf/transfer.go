package wf

import (
	"encoding/json"
	"fmt"
)

// Direction is the direction of a file transfer, relative to the
// computing resource.
type Direction int32

const (
	// Upload stages a file from client storage to resource storage
	// before dependent jobs run.
	Upload Direction = iota
	// Download stages a file from resource storage back to client
	// storage after the producing jobs complete.
	Download
)

var directionName = map[Direction]string{
	Upload:   "UPLOAD",
	Download: "DOWNLOAD",
}

var directionValue = map[string]Direction{
	"UPLOAD":   Upload,
	"DOWNLOAD": Download,
}

func (d Direction) String() string {
	if n, ok := directionName[d]; ok {
		return n
	}
	return fmt.Sprintf("DIRECTION(%d)", int32(d))
}

// MarshalJSON marshals the direction as its name string.
func (d Direction) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON unmarshals a direction from its name string.
func (d *Direction) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	v, ok := directionValue[name]
	if !ok {
		return fmt.Errorf("unknown transfer direction %q", name)
	}
	*d = v
	return nil
}

// FileTransfer represents a file or directory staged between
// client-local storage and resource storage. It participates in the
// dependency graph exactly like a job: jobs reading the transferred
// file depend on the transfer; a download transfer depends on the jobs
// producing its file.
type FileTransfer struct {
	// ID uniquely identifies the transfer within its workflow, and is
	// the placeholder reference ("${id}") used in job commands to name
	// the file's resource-side location.
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`

	// ClientPath is the path on client-local storage.
	ClientPath string `json:"clientPath"`

	// RemotePath is the path relative to the resource storage root.
	// Defaults to the base name of ClientPath.
	RemotePath string `json:"remotePath,omitempty"`

	Direction Direction `json:"direction"`

	// IsDirectory marks a recursive directory transfer.
	IsDirectory bool `json:"isDirectory,omitempty"`

	// Resource names the computing resource whose storage this
	// transfer targets. Defaults to the engine's default resource.
	Resource string `json:"resource,omitempty"`

	// DisposalTimeout is the number of hours the transferred file
	// outlives the workflow before cleanup is allowed.
	DisposalTimeout int `json:"disposalTimeout,omitempty"`

	// Depends lists node IDs which must complete successfully before
	// this transfer may start.
	Depends []string `json:"depends,omitempty"`
}

// NewUpload returns an upload FileTransfer for the given client path.
func NewUpload(id, clientPath string) *FileTransfer {
	return &FileTransfer{ID: id, ClientPath: clientPath, Direction: Upload}
}

// NewDownload returns a download FileTransfer for the given client path.
func NewDownload(id, clientPath string) *FileTransfer {
	return &FileTransfer{ID: id, ClientPath: clientPath, Direction: Download}
}

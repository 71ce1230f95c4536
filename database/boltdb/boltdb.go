// Package boltdb implements workflow storage on an embedded BoltDB
// key-value database.
package boltdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"

	"github.com/somaflow/somaflow/config"
	"github.com/somaflow/somaflow/engine"
	"github.com/somaflow/somaflow/util/fsutil"
	"github.com/somaflow/somaflow/wf"
)

// workflows maps: workflow ID -> wf.Workflow JSON
var workflows = []byte("workflows")

// nodes maps: workflow ID + "/" + node ID -> engine.NodeRecord JSON
var nodes = []byte("nodes")

// eventLog maps: workflow ID + "/" + sequence -> events.Event JSON
var eventLog = []byte("events")

// BoltDB stores workflows, node records, and events in an embedded
// BoltDB database. It implements engine.Store, engine.EventLister,
// and events.Writer.
type BoltDB struct {
	db *bolt.DB
}

// NewBoltDB returns a BoltDB store accessing the database at the
// configured path, creating it if needed.
func NewBoltDB(conf config.BoltDB) (*BoltDB, error) {
	if err := fsutil.EnsurePath(conf.Path); err != nil {
		return nil, err
	}
	db, err := bolt.Open(conf.Path, 0600, &bolt.Options{
		Timeout: time.Second * 5,
	})
	if err != nil {
		return nil, err
	}
	b := &BoltDB{db: db}
	if err := b.init(); err != nil {
		return nil, err
	}
	return b, nil
}

// init creates the required buckets.
func (b *BoltDB) init() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{workflows, nodes, eventLog} {
			if tx.Bucket(name) == nil {
				if _, err := tx.CreateBucket(name); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

// CreateWorkflow stores a newly submitted workflow.
func (b *BoltDB) CreateWorkflow(ctx context.Context, w *wf.Workflow) error {
	val, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(workflows).Put([]byte(w.ID), val)
	})
}

// GetWorkflow returns a stored workflow, or wf.ErrNotFound.
func (b *BoltDB) GetWorkflow(ctx context.Context, id string) (*wf.Workflow, error) {
	var w *wf.Workflow
	err := b.db.View(func(tx *bolt.Tx) error {
		val := tx.Bucket(workflows).Get([]byte(id))
		if val == nil {
			return wf.ErrNotFound
		}
		w = &wf.Workflow{}
		return json.Unmarshal(val, w)
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// ListWorkflows returns all stored workflows.
func (b *BoltDB) ListWorkflows(ctx context.Context) ([]*wf.Workflow, error) {
	var out []*wf.Workflow
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(workflows).ForEach(func(k, v []byte) error {
			w := &wf.Workflow{}
			if err := json.Unmarshal(v, w); err != nil {
				return err
			}
			out = append(out, w)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteWorkflow removes a workflow, its node records, and its
// events.
func (b *BoltDB) DeleteWorkflow(ctx context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(workflows).Delete([]byte(id)); err != nil {
			return err
		}
		if err := deletePrefix(tx.Bucket(nodes), prefix(id)); err != nil {
			return err
		}
		return deletePrefix(tx.Bucket(eventLog), prefix(id))
	})
}

// PutNode stores the record of one node.
func (b *BoltDB) PutNode(ctx context.Context, workflowID, nodeID string, rec *engine.NodeRecord) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(nodes).Put(nodeKey(workflowID, nodeID), val)
	})
}

// GetNodes returns the records of all nodes of a workflow.
func (b *BoltDB) GetNodes(ctx context.Context, workflowID string) (map[string]*engine.NodeRecord, error) {
	out := map[string]*engine.NodeRecord{}
	err := b.db.View(func(tx *bolt.Tx) error {
		return forPrefix(tx.Bucket(nodes), prefix(workflowID), func(k, v []byte) error {
			rec := &engine.NodeRecord{}
			if err := json.Unmarshal(v, rec); err != nil {
				return err
			}
			out[string(k[len(prefix(workflowID)):])] = rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func nodeKey(workflowID, nodeID string) []byte {
	return append(prefix(workflowID), nodeID...)
}

func prefix(workflowID string) []byte {
	return []byte(workflowID + "/")
}

// forPrefix iterates the key range sharing the given prefix.
func forPrefix(b *bolt.Bucket, pre []byte, f func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(pre); k != nil && hasPrefix(k, pre); k, v = c.Next() {
		if err := f(k, v); err != nil {
			return err
		}
	}
	return nil
}

func deletePrefix(b *bolt.Bucket, pre []byte) error {
	c := b.Cursor()
	for k, _ := c.Seek(pre); k != nil && hasPrefix(k, pre); k, _ = c.Next() {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}

func hasPrefix(k, pre []byte) bool {
	if len(k) < len(pre) {
		return false
	}
	for i := range pre {
		if k[i] != pre[i] {
			return false
		}
	}
	return true
}

package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"

	"github.com/somaflow/somaflow/events"
)

// WriteEvent appends an event to the workflow's event log.
// Implements events.Writer.
func (b *BoltDB) WriteEvent(ctx context.Context, ev *events.Event) error {
	val, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(eventLog)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		// Zero-padded sequence keys keep events in write order under
		// the workflow prefix.
		key := fmt.Sprintf("%s/%020d", ev.WorkflowID, seq)
		return bkt.Put([]byte(key), val)
	})
}

// ListEvents returns the events of a workflow in write order.
// Implements engine.EventLister.
func (b *BoltDB) ListEvents(ctx context.Context, workflowID string) ([]*events.Event, error) {
	var out []*events.Event
	err := b.db.View(func(tx *bolt.Tx) error {
		return forPrefix(tx.Bucket(eventLog), prefix(workflowID), func(k, v []byte) error {
			ev := &events.Event{}
			if err := json.Unmarshal(v, ev); err != nil {
				return err
			}
			out = append(out, ev)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

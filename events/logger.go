package events

import (
	"context"

	"github.com/somaflow/somaflow/logger"
)

// Logger writes events to a somaflow logger.
type Logger struct {
	Log *logger.Logger
}

// NewLogger creates an event writer logging under the given
// namespace.
func NewLogger(ns string) *Logger {
	return &Logger{logger.New(ns)}
}

// WriteEvent writes an event to the logger.
func (el *Logger) WriteEvent(ctx context.Context, ev *Event) error {
	log := el.Log.WithFields("workflowID", ev.WorkflowID)
	if ev.NodeID != "" {
		log = log.WithFields("nodeID", ev.NodeID)
	}

	switch ev.Type {
	case TypeWorkflowCreated:
		log.Info(string(ev.Type))
	case TypeWorkflowState, TypeNodeState:
		if ev.Origin != "" {
			log.Info(string(ev.Type), "state", ev.State, "origin", ev.Origin)
		} else {
			log.Info(string(ev.Type), "state", ev.State)
		}
	case TypeSystemLog:
		var args []interface{}
		for k, v := range ev.Fields {
			args = append(args, k, v)
		}
		switch ev.Level {
		case "error":
			log.Error(ev.Msg, args...)
		case "debug":
			log.Debug(ev.Msg, args...)
		default:
			log.Info(ev.Msg, args...)
		}
	default:
		log.Info(string(ev.Type), "event", ev)
	}
	return nil
}

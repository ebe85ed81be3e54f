package notify

import (
	"context"
	"fmt"

	"github.com/alansee1/flooorgang/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Kind classifies a notification
type Kind string

const (
	ScannerError     Kind = "SCANNER_ERROR"
	ResultsError     Kind = "RESULTS_ERROR"
	SchedulerError   Kind = "SCHEDULER_ERROR"
	ScannerSuccess   Kind = "SCANNER_SUCCESS"
	ResultsSuccess   Kind = "RESULTS_SUCCESS"
	SchedulerSuccess Kind = "SCHEDULER_SUCCESS"
	SchedulerNoGames Kind = "SCHEDULER_NO_GAMES"
)

// IsError reports whether the kind reports a failure
func (k Kind) IsError() bool {
	switch k {
	case ScannerError, ResultsError, SchedulerError:
		return true
	}
	return false
}

// Event is a single notification
type Event struct {
	Kind    Kind
	Message string
	// Context is rendered as key/value fields, in the order given.
	Context []Field
	// Detail is free text such as a log tail. It is truncated before sending.
	Detail string
}

// Field is a key/value pair attached to an event
type Field struct {
	Key   string
	Value string
}

// F builds a Field
func F(key string, value any) Field {
	return Field{Key: key, Value: fmt.Sprint(value)}
}

// Sink receives notifications
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

// NopSink drops every event after logging it
type NopSink struct{}

func (NopSink) Notify(ctx context.Context, ev Event) error {
	log.Debug().
		Str("kind", string(ev.Kind)).
		Str("message", ev.Message).
		Msg("Notification dropped, no sink configured")
	return nil
}

// Safe delivers ev and never fails. Sink errors and panics are logged and dropped
// so the caller's own error stays the one that is reported.
func Safe(ctx context.Context, sink Sink, ev Event) {
	if sink == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			metrics.RecordNotification(string(ev.Kind), "panic")
			log.Error().
				Str("kind", string(ev.Kind)).
				Interface("panic", r).
				Msg("Notification sink panicked")
		}
	}()

	if err := sink.Notify(ctx, ev); err != nil {
		metrics.RecordNotification(string(ev.Kind), "error")
		log.Warn().
			Err(err).
			Str("kind", string(ev.Kind)).
			Msg("Failed to send notification")
		return
	}

	metrics.RecordNotification(string(ev.Kind), "success")
}

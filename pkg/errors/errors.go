// Package errors provides classified error kinds for the outbox bridge.
//
// Every failure that can terminate a worker carries a Kind so that callers
// can react to the class of failure without string matching. Kinds follow
// the bridge's failure policy: everything except a transient notification
// read error is fatal for the worker that hit it.
//
// Usage:
//
//	import oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
//
//	// Classify a failure
//	return oberrors.E(oberrors.KindDrainScan, "scanning events", err)
//
//	// React to a class of failure
//	if oberrors.KindOf(err) == oberrors.KindMalformedNotification {
//	    // handle malformed payload
//	}
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a bridge failure.
type Kind string

const (
	// KindConfig indicates an invalid configuration document or record.
	KindConfig Kind = "config"

	// KindSinkInit indicates the log producer could not be established.
	KindSinkInit Kind = "sink_init"

	// KindSinkFlush indicates the downstream publish failed.
	KindSinkFlush Kind = "sink_flush"

	// KindDrainConnect indicates the database session or LISTEN failed.
	KindDrainConnect Kind = "drain_connect"

	// KindDrainScan indicates the fallback table scan failed.
	KindDrainScan Kind = "drain_scan"

	// KindDrainDelete indicates the post-flush delete failed. The flushed
	// rows are already published, so recovery duplicates them downstream.
	KindDrainDelete Kind = "drain_delete"

	// KindMalformedNotification indicates a notification payload that is not
	// a JSON object with integer "id" and string "payload" fields.
	KindMalformedNotification Kind = "malformed_notification"

	// KindNotificationTransient indicates a read error while awaiting a
	// notification. Recovered locally with a keep-alive probe.
	KindNotificationTransient Kind = "notification_transient"

	// KindWorkerDied is raised by the supervisor when a worker exits.
	KindWorkerDied Kind = "worker_died"
)

// BridgeError is a classified bridge failure.
type BridgeError struct {
	Kind  Kind
	Op    string
	Cause error
}

func (e *BridgeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// E builds a classified error. Cause may be nil when the condition itself is
// the whole story.
func E(kind Kind, op string, cause error) error {
	return &BridgeError{Kind: kind, Op: op, Cause: cause}
}

// KindOf returns the kind of the first BridgeError in err's chain, or the
// empty kind when the error is unclassified.
func KindOf(err error) Kind {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains a BridgeError of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// IsFatal reports whether err terminates its worker. Every classified kind
// except KindNotificationTransient is fatal; unclassified errors are treated
// as fatal too.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != KindNotificationTransient
}

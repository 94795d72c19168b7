// Package pgsql implements the PostgreSQL drain: a producer that reads
// outbox rows over both LISTEN/NOTIFY and a periodic full-table scan, hands
// them to a sink, and deletes rows the sink has flushed.
package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	oberrors "github.com/otherjamesbrown/outboxd/pkg/errors"
	"github.com/otherjamesbrown/outboxd/pkg/logging"
	"github.com/otherjamesbrown/outboxd/pkg/metrics"
	"github.com/otherjamesbrown/outboxd/pkg/stream"
)

// Drain is the producer side of the bridge. Its loop alternates between a
// fallback scan of the whole table and a listening window on the
// notification channel:
//
//   - Scan: every row is written to the sink, its id recorded for deletion,
//     then the sink is flushed and the forwarded rows deleted.
//   - Listen: notifications are consumed one at a time, each waited for at
//     most notifyTimeout. A wait that times out triggers an idle flush;
//     after notifyTimeoutTotal the window closes and a fresh scan recovers
//     anything the channel missed.
//
// The loop has no terminal success state; Produce returns only on fatal
// error. A Drain is owned by exactly one worker and is not safe for
// concurrent use.
type Drain struct {
	url                string
	table              string
	column             string
	channel            string
	notifyTimeout      time.Duration
	notifyTimeoutTotal time.Duration

	logger  logging.Logger
	metrics *metrics.Bridge
	tenant  string

	// connect is swapped out in tests.
	connect func(ctx context.Context) (session, error)
}

// Option configures a Drain.
type Option func(*Drain)

// WithLogger attaches a logger to the drain.
func WithLogger(l logging.Logger) Option {
	return func(d *Drain) {
		d.logger = l
	}
}

// WithMetrics attaches bridge counters, labelled with the given tenant name.
func WithMetrics(m *metrics.Bridge, tenant string) Option {
	return func(d *Drain) {
		d.metrics = m
		d.tenant = tenant
	}
}

// NewDrain returns a drain reading from table's column on the database at
// url, with notifications on channel. notifyTimeoutTotal bounds one
// listening window; notifyTimeout bounds a single notification wait.
func NewDrain(url, table, column, channel string, notifyTimeoutTotal, notifyTimeout time.Duration, opts ...Option) *Drain {
	d := &Drain{
		url:                url,
		table:              table,
		column:             column,
		channel:            channel,
		notifyTimeout:      notifyTimeout,
		notifyTimeoutTotal: notifyTimeoutTotal,
		logger:             logging.NewNopLogger(),
	}
	d.connect = func(ctx context.Context) (session, error) {
		return connectSession(ctx, d.url)
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger.Info("drain created",
		logging.F("table", table),
		logging.F("channel", channel))
	return d
}

// notification is the JSON payload emitted on the channel. Extra fields are
// ignored; both listed fields are required.
type notification struct {
	ID      *int32  `json:"id"`
	Payload *string `json:"payload"`
}

// Produce runs the drain loop against sink until a fatal error occurs.
func (d *Drain) Produce(ctx context.Context, sink stream.Sink) error {
	sess, err := d.connect(ctx)
	if err != nil {
		return oberrors.E(oberrors.KindDrainConnect, "opening database session", err)
	}
	defer sess.Close(context.Background())

	if err := sess.Listen(ctx, d.channel); err != nil {
		return oberrors.E(oberrors.KindDrainConnect,
			fmt.Sprintf("LISTEN %q", d.channel), err)
	}

	// Row ids handed to the sink in the current, not-yet-flushed batch.
	pending := make([]int32, 0, 64)

	for {
		if err := d.scan(ctx, sess, sink, &pending); err != nil {
			return err
		}
		if err := d.flushAndDelete(ctx, sess, sink, &pending); err != nil {
			return err
		}
		if err := d.listen(ctx, sess, sink, &pending); err != nil {
			return err
		}
		if err := d.flushAndDelete(ctx, sess, sink, &pending); err != nil {
			return err
		}
	}
}

// scan runs the fallback full-table read, forwarding every row to the sink.
func (d *Drain) scan(ctx context.Context, sess session, sink stream.Sink, pending *[]int32) error {
	d.logger.Info("fallback scan", logging.F("table", d.table))
	err := sess.Scan(ctx, d.table, d.column, func(id int32, payload string) error {
		if err := sink.Write(ctx, stream.SourceElement{
			ID:      strconv.FormatInt(int64(id), 10),
			Payload: []byte(payload),
		}); err != nil {
			return err
		}
		*pending = append(*pending, id)
		d.metrics.RowForwarded(d.tenant, metrics.PathScan)
		return nil
	})
	if err != nil {
		// A sink failure surfacing through the row callback is already
		// classified; everything else is a scan failure.
		if oberrors.KindOf(err) != "" {
			return err
		}
		return oberrors.E(oberrors.KindDrainScan, "scanning "+d.table, err)
	}
	d.logger.Info("scan complete", logging.F("rows", len(*pending)))
	return nil
}

// listen consumes notifications for one window of notifyTimeoutTotal. Idle
// waits flush the sink but do not reset the window clock.
func (d *Drain) listen(ctx context.Context, sess session, sink stream.Sink, pending *[]int32) error {
	start := time.Now()
	for time.Since(start) < d.notifyTimeoutTotal {
		waitCtx, cancel := context.WithTimeout(ctx, d.notifyTimeout)
		payload, err := sess.WaitForNotification(waitCtx)
		cancel()

		switch {
		case err == nil:
			if err := d.handleNotification(ctx, sink, pending, payload); err != nil {
				return err
			}

		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, context.DeadlineExceeded):
			d.logger.Debug("notification wait expired, idle flush")
			d.metrics.NotifyIdleTimeout(d.tenant)
			if err := d.flushAndDelete(ctx, sess, sink, pending); err != nil {
				return err
			}

		default:
			transient := oberrors.E(oberrors.KindNotificationTransient, "reading notification", err)
			d.logger.Error("notification read failed, probing connection", logging.Err(transient))
			d.metrics.NotifyTransientError(d.tenant)
			if err := sess.KeepAlive(ctx); err != nil {
				return oberrors.E(oberrors.KindDrainConnect, "keep-alive probe", err)
			}
		}
	}
	return nil
}

// handleNotification decodes one channel payload and forwards it.
func (d *Drain) handleNotification(ctx context.Context, sink stream.Sink, pending *[]int32, payload string) error {
	var note notification
	if err := json.Unmarshal([]byte(payload), &note); err != nil {
		return oberrors.E(oberrors.KindMalformedNotification, "decoding notification payload", err)
	}
	if note.ID == nil {
		return oberrors.E(oberrors.KindMalformedNotification, "notification missing id", nil)
	}
	if note.Payload == nil {
		return oberrors.E(oberrors.KindMalformedNotification, "notification missing payload", nil)
	}

	d.logger.Debug("notification received", logging.F("id", int(*note.ID)))
	if err := sink.Write(ctx, stream.SourceElement{
		ID:      strconv.FormatInt(int64(*note.ID), 10),
		Payload: []byte(*note.Payload),
	}); err != nil {
		return err
	}
	*pending = append(*pending, *note.ID)
	d.metrics.RowForwarded(d.tenant, metrics.PathNotify)
	return nil
}

// flushAndDelete publishes everything buffered in the sink, then removes the
// forwarded rows from the table. A flush failure leaves the rows in place; a
// delete failure after a successful flush is fatal, and the rows will be
// republished by the next scan.
func (d *Drain) flushAndDelete(ctx context.Context, sess session, sink stream.Sink, pending *[]int32) error {
	if err := sink.Flush(ctx); err != nil {
		return err
	}
	ids := *pending
	if len(ids) > 0 {
		d.logger.Info("deleting forwarded rows", logging.F("rows", len(ids)))
		if err := sess.Delete(ctx, d.table, ids); err != nil {
			return oberrors.E(oberrors.KindDrainDelete,
				fmt.Sprintf("deleting %d rows from %s", len(ids), d.table), err)
		}
		d.metrics.RowsDeleted(d.tenant, len(ids))
	}
	*pending = ids[:0]
	return nil
}

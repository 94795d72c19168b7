package pgsql

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// session is the database surface the drain needs: one connection that owns
// the LISTEN registration, the fallback scans, and the deletes.
type session interface {
	// Listen registers the connection on the notification channel.
	Listen(ctx context.Context, channel string) error

	// Scan runs the full-table read and calls fn once per row, in the order
	// the database returns them.
	Scan(ctx context.Context, table, column string, fn func(id int32, payload string) error) error

	// Delete removes the given row ids from the table.
	Delete(ctx context.Context, table string, ids []int32) error

	// WaitForNotification blocks until a notification arrives on the
	// listened channel or ctx expires, and returns the raw payload.
	WaitForNotification(ctx context.Context) (string, error)

	// KeepAlive issues an empty query to probe and kick the connection after
	// a notification read error.
	KeepAlive(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// pgxSession adapts a single pgx connection to the session interface.
type pgxSession struct {
	conn *pgx.Conn
}

func connectSession(ctx context.Context, url string) (session, error) {
	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return &pgxSession{conn: conn}, nil
}

func (s *pgxSession) Listen(ctx context.Context, channel string) error {
	_, err := s.conn.Exec(ctx, fmt.Sprintf("LISTEN %q", channel))
	return err
}

func (s *pgxSession) Scan(ctx context.Context, table, column string, fn func(id int32, payload string) error) error {
	rows, err := s.conn.Query(ctx, fmt.Sprintf("SELECT id, %s FROM %s", column, table))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int32
		var payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}
		if err := fn(id, payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (s *pgxSession) Delete(ctx context.Context, table string, ids []int32) error {
	// The ids are typed integers everywhere upstream, so rendering them into
	// the statement is safe.
	rendered := make([]string, len(ids))
	for i, id := range ids {
		rendered[i] = strconv.FormatInt(int64(id), 10)
	}
	_, err := s.conn.Exec(ctx,
		fmt.Sprintf("DELETE FROM %s WHERE id IN (%s)", table, strings.Join(rendered, ",")))
	return err
}

func (s *pgxSession) WaitForNotification(ctx context.Context) (string, error) {
	notification, err := s.conn.WaitForNotification(ctx)
	if err != nil {
		return "", err
	}
	return notification.Payload, nil
}

func (s *pgxSession) KeepAlive(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, ";")
	return err
}

func (s *pgxSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

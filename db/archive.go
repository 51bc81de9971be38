package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/onnwee/tl-relay/relay"
)

// Archive is the Postgres-backed relay.Archive. Writes are append-only;
// reads serve the /history endpoint.
type Archive struct {
	DB *sql.DB
}

var _ relay.Archive = (*Archive)(nil)

// RecordDelivery appends one delivered batch. Covered event ids are
// stored comma-joined; they are audit data, never matched against.
func (a *Archive) RecordDelivery(ctx context.Context, d relay.Delivery) error {
	_, err := a.DB.ExecContext(ctx,
		`INSERT INTO relayed_messages (stream_id, destination_id, message_id, event_ids, event_count, content, delivered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.StreamID, d.DestinationID, d.MessageID,
		strings.Join(d.EventIDs, ","), len(d.EventIDs), d.Text, d.DeliveredAt)
	if err != nil {
		return fmt.Errorf("insert relayed message: %w", err)
	}
	return nil
}

// RecentDeliveries returns the newest archived batches, newest first.
// streamID narrows the result when non-empty.
func (a *Archive) RecentDeliveries(ctx context.Context, streamID string, limit int) ([]relay.Delivery, error) {
	if limit < 1 {
		limit = 50
	}
	q := `SELECT stream_id, destination_id, message_id, event_ids, content, delivered_at
	      FROM relayed_messages`
	args := []any{}
	if streamID != "" {
		q += ` WHERE stream_id = $1`
		args = append(args, streamID)
	}
	q += fmt.Sprintf(` ORDER BY delivered_at DESC LIMIT %d`, limit)

	rows, err := a.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query relayed messages: %w", err)
	}
	defer rows.Close()

	var out []relay.Delivery
	for rows.Next() {
		var d relay.Delivery
		var ids string
		var content sql.NullString
		if err := rows.Scan(&d.StreamID, &d.DestinationID, &d.MessageID, &ids, &content, &d.DeliveredAt); err != nil {
			return nil, fmt.Errorf("scan relayed message: %w", err)
		}
		if ids != "" {
			d.EventIDs = strings.Split(ids, ",")
		}
		d.Text = content.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// CountDeliveries reports the number of archived batches.
func (a *Archive) CountDeliveries(ctx context.Context) (int, error) {
	var n int
	err := a.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM relayed_messages`).Scan(&n)
	return n, err
}

// Ping checks archive reachability for health probes.
func (a *Archive) Ping(ctx context.Context) error {
	return a.DB.PingContext(ctx)
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// RecordDelivery persists a webhook delivery ID before the background job is
// enqueued, so a redelivered event is recognized and not reprocessed (spec
// §4.7). Returns (true, nil) if this is the first time the delivery ID
// has been seen; (false, nil) if it was already recorded.
func (s *Store) RecordDelivery(ctx context.Context, deliveryID, eventType string) (bool, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (delivery_id, event_type, received_at) VALUES ($1, $2, $3)`,
		deliveryID, eventType, time.Now().UTC(),
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("store: record delivery %s: %w", deliveryID, err)
	}
	return true, nil
}

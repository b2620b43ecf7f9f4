package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Enqueue writes an event in the caller's transaction so it commits or rolls
// back together with the business rows.
func Enqueue(ctx context.Context, tx pgx.Tx, aggregateType string, aggregateID int64, routingKey string, payload any) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	return insertEvent(ctx, tx, &Event{
		AggregateType: aggregateType,
		AggregateID:   &aggregateID,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	})
}

package db

import (
	"context"

	"ms-settlement/internal/models"

	"github.com/uptrace/bun"
)

// ResetSchema drops and recreates the settlement tables from the bun
// models. Used by tests and local development; production schemas come
// from the SQL migrations.
func ResetSchema(ctx context.Context, bunDB *bun.DB) error {
	if err := bunDB.ResetModel(ctx, (*models.Booking)(nil)); err != nil {
		return err
	}
	if err := bunDB.ResetModel(ctx, (*models.Passenger)(nil)); err != nil {
		return err
	}
	if err := bunDB.ResetModel(ctx, (*models.PaymentEvent)(nil)); err != nil {
		return err
	}

	// The (provider, event_id) uniqueness is the replay-safety backstop;
	// it has to exist even in the sqlite test schema.
	_, err := bunDB.NewCreateIndex().
		Model((*models.PaymentEvent)(nil)).
		Index("ux_payment_events_provider_event").
		Unique().
		Column("provider", "event_id").
		Exec(ctx)
	return err
}

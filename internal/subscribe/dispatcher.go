package subscribe

import (
	"context"
	"log/slog"

	"listbridge/internal/external"
	"listbridge/internal/types"
)

// Dispatcher performs the two-phase MailerLite write for one subscription:
// upsert the subscriber by email, then attach the resulting subscriber to the
// target group. There is no rollback; a subscriber left without a group
// attachment is harmless and the next redelivery converges.
type Dispatcher struct {
	mailingList external.MailingListClient
	logger      *slog.Logger
}

// NewDispatcher creates a dispatcher writing through the given client.
func NewDispatcher(mailingList external.MailingListClient, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{mailingList: mailingList, logger: logger}
}

// Dispatch attaches req.Email to req.GroupID. Both phases are idempotent
// upstream, so a redelivered webhook re-running Dispatch is safe. Errors
// carry the failing phase in their code (dispatch_subscriber_create_failed,
// dispatch_subscriber_id_missing, dispatch_group_attach_failed).
func (d *Dispatcher) Dispatch(ctx context.Context, req types.SubscriptionRequest) error {
	subscriberID, err := d.mailingList.UpsertSubscriber(ctx, req.Email)
	if err != nil {
		d.logger.Error("subscriber upsert failed",
			slog.String("email", req.Email),
			slog.String("group_id", req.GroupID),
			slog.String("error", err.Error()),
		)
		return err
	}

	if err := d.mailingList.AssignToGroup(ctx, subscriberID, req.GroupID); err != nil {
		d.logger.Error("group assignment failed",
			slog.String("email", req.Email),
			slog.String("group_id", req.GroupID),
			slog.String("subscriber_id", subscriberID),
			slog.String("error", err.Error()),
		)
		return err
	}

	d.logger.Info("subscription dispatched",
		slog.String("email", req.Email),
		slog.String("group_id", req.GroupID),
		slog.String("subscriber_id", subscriberID),
	)
	return nil
}

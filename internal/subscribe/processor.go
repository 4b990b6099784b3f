package subscribe

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"listbridge/internal/external"
	"listbridge/internal/types"
)

// Skip reasons recorded on a DispatchResult when a line item produces no
// subscription.
const (
	SkipReasonUnmappedProduct = "unmapped_product"
	SkipReasonMissingEmail    = "missing_email"
)

// maxConcurrentDispatches bounds the parallel MailerLite writes per delivery.
// Checkout sessions rarely exceed a handful of items; the bound exists so a
// pathological cart cannot stampede the upstream API.
const maxConcurrentDispatches = 4

// GroupResolver answers product-to-group lookups. Satisfied by
// settings.Resolver.
type GroupResolver interface {
	Resolve(ctx context.Context, productID string) (string, error)
}

// SubscriptionDispatcher performs the MailerLite write for one subscription.
// Satisfied by Dispatcher.
type SubscriptionDispatcher interface {
	Dispatch(ctx context.Context, req types.SubscriptionRequest) error
}

// Processor drives one verified checkout delivery end to end: fetch the
// session's line items, resolve each product to a group, and dispatch the
// mapped ones. Items are isolated from each other; one failing dispatch never
// blocks the rest.
type Processor struct {
	payments   external.PaymentsClient
	resolver   GroupResolver
	dispatcher SubscriptionDispatcher
	logger     *slog.Logger
}

// NewProcessor wires the dispatch pipeline.
func NewProcessor(
	payments external.PaymentsClient,
	resolver GroupResolver,
	dispatcher SubscriptionDispatcher,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		payments:   payments,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Process handles one completed checkout session and returns the per-item
// outcomes. It never returns an error for dispatch failures; only the inability
// to fetch line items surfaces, and even that is a logged outcome the webhook
// handler does not turn into a non-200 response.
func (p *Processor) Process(ctx context.Context, session types.CheckoutSession) ([]types.DispatchResult, error) {
	items, err := p.payments.ListLineItems(ctx, session.ID)
	if err != nil {
		p.logger.Error("failed to fetch line items",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if len(items) == 0 {
		p.logger.Info("checkout session has no line items",
			slog.String("session_id", session.ID),
		)
		return nil, nil
	}

	results := make([]types.DispatchResult, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDispatches)

	for i, item := range items {
		g.Go(func() error {
			// Item failures are recorded, never propagated; returning an
			// error would cancel the sibling dispatches.
			results[i] = p.processItem(gctx, session, item)
			return nil
		})
	}

	// Goroutines only return nil; Wait is for completion, not errors.
	_ = g.Wait()

	return results, nil
}

// processItem resolves and dispatches a single line item.
func (p *Processor) processItem(ctx context.Context, session types.CheckoutSession, item types.LineItem) types.DispatchResult {
	result := types.DispatchResult{ProductID: item.ProductID}

	groupID, err := p.resolver.Resolve(ctx, item.ProductID)
	if err != nil {
		p.logger.Error("mapping lookup failed",
			slog.String("session_id", session.ID),
			slog.String("product_id", item.ProductID),
			slog.String("error", err.Error()),
		)
		result.Err = err
		return result
	}

	if groupID == types.GroupNone {
		p.logger.Info("skipping unmapped product",
			slog.String("session_id", session.ID),
			slog.String("product_id", item.ProductID),
		)
		result.SkipReason = SkipReasonUnmappedProduct
		return result
	}
	result.GroupID = groupID

	if session.CustomerEmail == "" {
		p.logger.Info("skipping dispatch, session has no customer email",
			slog.String("session_id", session.ID),
			slog.String("product_id", item.ProductID),
		)
		result.SkipReason = SkipReasonMissingEmail
		return result
	}

	err = p.dispatcher.Dispatch(ctx, types.SubscriptionRequest{
		Email:   session.CustomerEmail,
		GroupID: groupID,
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.Dispatched = true
	return result
}

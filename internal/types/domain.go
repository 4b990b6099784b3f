// Package types defines the shared domain types, error taxonomy, and
// context plumbing for the ListBridge service.
package types

// GroupNone is the sentinel mapping value meaning "this product feeds no
// mailing-list group". It is stored verbatim in the mapping table so an
// operator can explicitly unmap a product.
const GroupNone = "none"

// CheckoutSession is the slice of a Stripe checkout.session.completed event
// the dispatch pipeline cares about. CustomerEmail is empty when Stripe
// omitted customer details; that is valid and simply yields no dispatches.
type CheckoutSession struct {
	ID            string
	CustomerEmail string
}

// LineItem is one purchased product within a checkout session.
type LineItem struct {
	ProductID string
}

// Product is a Stripe product as listed for the admin mapping table.
type Product struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Group is a MailerLite group as listed for the admin mapping table.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SubscriptionRequest is the unit of work handed to the dispatcher: attach
// one email to one group. It only exists when the session has an email and
// the product maps to a real group.
type SubscriptionRequest struct {
	Email   string
	GroupID string
}

// DispatchResult records the outcome of one line item's processing within a
// webhook delivery. Skipped items (unmapped product, missing email) carry a
// reason instead of an error.
type DispatchResult struct {
	ProductID  string
	GroupID    string
	Dispatched bool
	SkipReason string
	Err        error
}

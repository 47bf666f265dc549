package inbound

import (
	"context"
	"time"
)

// InboundVerifiedEvent is emitted after a verification (or a ledger-touching
// resolution) commits. Consumers refresh caches and views for the items whose
// stock changed.
type InboundVerifiedEvent struct {
	InboundID  int64
	GRNNumber  string
	ItemIDs    []int64
	VerifiedAt time.Time
}

// IntegrationHandler receives inbound domain events after commit.
type IntegrationHandler interface {
	HandleInboundVerified(ctx context.Context, evt InboundVerifiedEvent) error
}

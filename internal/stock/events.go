package stock

import (
	"context"
	"time"
)

// StockPostedEvent announces committed ledger postings so read-side caches
// can refresh. Emitted after the transaction commits, never inside it.
type StockPostedEvent struct {
	ItemIDs  []int64
	RefType  string
	RefID    int64
	PostedAt time.Time
}

// IntegrationHandler receives stock events for read-side refresh.
type IntegrationHandler interface {
	HandleStockPosted(ctx context.Context, evt StockPostedEvent) error
}

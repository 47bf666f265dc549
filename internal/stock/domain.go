package stock

import (
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// MovementType enumerates supported stock ledger movements.
type MovementType string

const (
	// MovementInbound records goods accepted from a vendor delivery.
	MovementInbound MovementType = "INBOUND"
	// MovementOutbound records goods issued out of the warehouse.
	MovementOutbound MovementType = "OUTBOUND"
	// MovementAdjustmentIn records a positive stock correction.
	MovementAdjustmentIn MovementType = "ADJUSTMENT_IN"
	// MovementAdjustmentOut records a negative stock correction.
	MovementAdjustmentOut MovementType = "ADJUSTMENT_OUT"
	// MovementReturnOut records units shipped back to a vendor.
	MovementReturnOut MovementType = "RETURN_OUT"
)

// Direction returns +1 for movements that add stock and -1 for movements
// that remove it. Unknown movements return 0.
func (m MovementType) Direction() int64 {
	switch m {
	case MovementInbound, MovementAdjustmentIn:
		return 1
	case MovementOutbound, MovementAdjustmentOut, MovementReturnOut:
		return -1
	default:
		return 0
	}
}

// Item is a stockable SKU with its denormalized running total. CurrentStock
// always equals the quantity_after of the item's most recent ledger entry;
// the poster maintains that equality transactionally.
type Item struct {
	ID           int64
	SKU          string
	Name         string
	UOM          string
	CurrentStock int64
	IsActive     bool
	UpdatedAt    time.Time
}

// StockCard is one append-only ledger entry. Entries are never updated or
// deleted; corrections are new entries.
type StockCard struct {
	ID             int64        `json:"id"`
	ItemID         int64        `json:"item_id"`
	WarehouseID    int64        `json:"warehouse_id,omitempty"`
	Movement       MovementType `json:"movement_type"`
	RefType        string       `json:"ref_type,omitempty"`
	RefID          int64        `json:"ref_id,omitempty"`
	QuantityBefore int64        `json:"quantity_before"`
	QuantityChange int64        `json:"quantity_change"`
	QuantityAfter  int64        `json:"quantity_after"`
	Note           string       `json:"note,omitempty"`
	ActorID        int64        `json:"actor_id,omitempty"`
	TransactionAt  time.Time    `json:"transaction_at"`
}

// PostInput describes one ledger posting. Quantity is the positive magnitude;
// the movement type decides the sign.
type PostInput struct {
	ItemID      int64
	WarehouseID int64
	Quantity    int64
	Movement    MovementType
	RefType     string
	RefID       int64
	Note        string
	ActorID     int64
}

// AdjustmentInput describes a manual stock correction. Quantity is signed.
type AdjustmentInput struct {
	ItemID      int64
	WarehouseID int64
	Quantity    int64
	Note        string
	ActorID     int64
}

// CardFilter filters ledger listings.
type CardFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// Snapshot is the cached current-stock view served to read paths.
type Snapshot struct {
	ItemID    int64     `json:"item_id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	QtyOnHand int64     `json:"qty_on_hand"`
	AsOf      time.Time `json:"as_of"`
}

var (
	// ErrNegativeStock triggered when a movement would drive stock below zero.
	ErrNegativeStock = fmt.Errorf("stock: negative stock not allowed: %w", shared.ErrValidation)
	// ErrInvalidQuantity indicates a zero or negative magnitude.
	ErrInvalidQuantity = fmt.Errorf("stock: quantity must be positive: %w", shared.ErrValidation)
	// ErrUnknownMovement indicates an unsupported movement type.
	ErrUnknownMovement = fmt.Errorf("stock: unknown movement type: %w", shared.ErrValidation)
	// ErrItemNotFound indicates the referenced item does not exist.
	ErrItemNotFound = fmt.Errorf("stock: item %w", shared.ErrNotFound)
	// ErrItemInactive indicates postings against a deactivated item.
	ErrItemInactive = fmt.Errorf("stock: item inactive: %w", shared.ErrInvalidState)
)

package returns

import (
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Status enumerates the vendor return lifecycle.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusSentToVendor    Status = "SENT_TO_VENDOR"
	StatusCompleted       Status = "COMPLETED"
	StatusRejected        Status = "REJECTED"
)

// Reason classifies why goods go back to the vendor.
type Reason string

const (
	ReasonDamaged   Reason = "DAMAGED"
	ReasonWrongItem Reason = "WRONG_ITEM"
	ReasonExcess    Reason = "EXCESS"
	ReasonOther     Reason = "OTHER"
)

// Return is a vendor return document.
type Return struct {
	ID                int64     `json:"id"`
	Code              string    `json:"code"`
	PurchaseRequestID int64     `json:"purchase_request_id,omitempty"`
	InboundID         int64     `json:"inbound_id,omitempty"`
	VendorID          int64     `json:"vendor_id"`
	Reason            Reason    `json:"reason"`
	Status            Status    `json:"status"`
	ReturnDate        time.Time `json:"return_date"`
	Note              string    `json:"note,omitempty"`
	CreatedBy         int64     `json:"created_by,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// ReturnItem is one returned line.
type ReturnItem struct {
	ID        int64  `json:"id"`
	ReturnID  int64  `json:"return_id"`
	ItemID    int64  `json:"item_id"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	Reason    string `json:"reason,omitempty"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("returns: %w", shared.ErrNotFound)
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("returns: %w", shared.ErrInvalidState)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("returns: %w", shared.ErrValidation)
)

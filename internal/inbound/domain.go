package inbound

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Status enumerates the goods-receipt lifecycle. Verification is one-shot;
// a verified inbound is never reopened, replacements arrive as child inbounds.
type Status string

const (
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusVerified            Status = "VERIFIED"
	// StatusVerifiedDiscrepancy marks a verified receipt with at least one
	// line still carrying an open discrepancy.
	StatusVerifiedDiscrepancy Status = "VERIFIED_DISCREPANCY"
)

// LineStatus tracks one receipt line.
type LineStatus string

const (
	LinePending     LineStatus = "PENDING"
	LineOpenIssue   LineStatus = "OPEN_ISSUE"
	LineCompleted   LineStatus = "COMPLETED"
	LineResolved    LineStatus = "RESOLVED"
	LineClosedShort LineStatus = "CLOSED_SHORT"
)

// DiscrepancyType classifies a quantity or quality mismatch on a line.
type DiscrepancyType string

const (
	DiscrepancyNone      DiscrepancyType = "NONE"
	DiscrepancyShortage  DiscrepancyType = "SHORTAGE"
	DiscrepancyOverage   DiscrepancyType = "OVERAGE"
	DiscrepancyWrongItem DiscrepancyType = "WRONG_ITEM"
	DiscrepancyDamaged   DiscrepancyType = "DAMAGED"
)

// ResolutionAction is the remediation chosen for a discrepancy.
type ResolutionAction string

const (
	ActionKeepExcess     ResolutionAction = "KEEP_EXCESS"
	ActionReturnToVendor ResolutionAction = "RETURN_TO_VENDOR"
	ActionReplaceItem    ResolutionAction = "REPLACE_ITEM"
	ActionRefund         ResolutionAction = "REFUND"
	ActionWaitRemaining  ResolutionAction = "WAIT_REMAINING"
	ActionCloseShort     ResolutionAction = "CLOSE_SHORT"
)

func validAction(a ResolutionAction) bool {
	switch a {
	case ActionKeepExcess, ActionReturnToVendor, ActionReplaceItem, ActionRefund, ActionWaitRemaining, ActionCloseShort:
		return true
	}
	return false
}

type resolutionState int

const (
	resolutionNone resolutionState = iota
	resolutionPending
	resolutionDone
)

// Resolution is the per-line resolution state. The zero value means the line
// carries no discrepancy and nothing to resolve; a pending resolution is
// created during verification when a discrepancy is classified, and becomes
// resolved exactly once through the resolver.
type Resolution struct {
	state  resolutionState
	action ResolutionAction
}

// NoResolution is the state of a line without discrepancy.
func NoResolution() Resolution { return Resolution{} }

// PendingResolution marks a discrepancy awaiting a resolver decision.
func PendingResolution() Resolution { return Resolution{state: resolutionPending} }

// ResolvedAs records the terminal action chosen for the line.
func ResolvedAs(action ResolutionAction) Resolution {
	return Resolution{state: resolutionDone, action: action}
}

// IsPending reports whether the line awaits a resolution.
func (r Resolution) IsPending() bool { return r.state == resolutionPending }

// IsResolved reports whether a terminal action has been recorded.
func (r Resolution) IsResolved() bool { return r.state == resolutionDone }

// Action returns the terminal action, valid only when IsResolved.
func (r Resolution) Action() (ResolutionAction, bool) {
	return r.action, r.state == resolutionDone
}

// StorageValue encodes the state for persistence: empty for none, PENDING,
// or the action name.
func (r Resolution) StorageValue() string {
	switch r.state {
	case resolutionPending:
		return "PENDING"
	case resolutionDone:
		return string(r.action)
	default:
		return ""
	}
}

// MarshalJSON encodes the resolution the same way it is persisted.
func (r Resolution) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.StorageValue())
}

// UnmarshalJSON decodes the persisted representation.
func (r *Resolution) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := ParseResolution(value)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseResolution decodes a stored resolution value.
func ParseResolution(value string) (Resolution, error) {
	switch value {
	case "":
		return NoResolution(), nil
	case "PENDING":
		return PendingResolution(), nil
	}
	action := ResolutionAction(value)
	if !validAction(action) {
		return Resolution{}, fmt.Errorf("inbound: unknown resolution %q: %w", value, ErrValidation)
	}
	return ResolvedAs(action), nil
}

// Inbound is one goods-receipt event (GRN) against a purchase request.
// ParentID links replacement shipments back to the receipt whose rejected
// line spawned them.
type Inbound struct {
	ID                int64     `json:"id"`
	GRNNumber         string    `json:"grn_number"`
	PurchaseRequestID int64     `json:"purchase_request_id,omitempty"`
	VendorID          int64     `json:"vendor_id"`
	WarehouseID       int64     `json:"warehouse_id,omitempty"`
	ParentID          int64     `json:"parent_id,omitempty"`
	Status            Status    `json:"status"`
	ReceiveDate       time.Time `json:"receive_date"`
	VerifiedBy        int64     `json:"verified_by,omitempty"`
	VerifiedAt        time.Time `json:"verified_at,omitzero"`
	ProofDocumentURL  string    `json:"proof_document_url,omitempty"`
	Note              string    `json:"note,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// InboundItem is one receipt line. AcceptedQty + RejectedQty == ReceivedQty
// after verification; QtyAddedToStock mirrors the quantity actually posted to
// the ledger and guards against double-posting.
type InboundItem struct {
	ID              int64           `json:"id"`
	InboundID       int64           `json:"inbound_id"`
	ItemID          int64           `json:"item_id"`
	ExpectedQty     int64           `json:"expected_qty"`
	ReceivedQty     int64           `json:"received_qty"`
	AcceptedQty     int64           `json:"accepted_qty"`
	RejectedQty     int64           `json:"rejected_qty"`
	QtyAddedToStock int64           `json:"qty_added_to_stock"`
	Discrepancy     DiscrepancyType `json:"discrepancy_type"`
	Resolution      Resolution      `json:"resolution"`
	LineStatus      LineStatus      `json:"line_status"`
	Reason          string          `json:"reason,omitempty"`
}

// ClassifyDiscrepancy derives the line classification when the verifier does
// not supply one. Quantity mismatches dominate: a short delivery with damaged
// units is recorded as SHORTAGE and the damage goes into the reason text.
func ClassifyDiscrepancy(expected, received, rejected int64, supplied DiscrepancyType) DiscrepancyType {
	if supplied != "" && supplied != DiscrepancyNone {
		return supplied
	}
	switch {
	case received < expected:
		return DiscrepancyShortage
	case received > expected:
		return DiscrepancyOverage
	case rejected > 0:
		// Physical inspection decides damaged vs wrong item; without the
		// verifier's call the safer default is damaged goods.
		return DiscrepancyDamaged
	default:
		return DiscrepancyNone
	}
}

var (
	// ErrNotFound indicates the inbound or line does not exist.
	ErrNotFound = fmt.Errorf("inbound: %w", shared.ErrNotFound)
	// ErrInvalidState occurs when the status forbids the operation.
	ErrInvalidState = fmt.Errorf("inbound: %w", shared.ErrInvalidState)
	// ErrValidation indicates malformed verification or resolution input.
	ErrValidation = fmt.Errorf("inbound: %w", shared.ErrValidation)
)

package returns

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// TxWriter exposes the writes a draft creation needs. Callers that open
// their own transaction (the discrepancy resolver) embed this interface so
// the return document commits together with the line update that caused it.
type TxWriter interface {
	// CountInPeriod counts return documents created in the given year-month.
	// Runs inside the creating transaction so code sequences cannot collide.
	CountInPeriod(ctx context.Context, year int, month time.Month) (int, error)
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	InsertReturnItem(ctx context.Context, item ReturnItem) error
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxWriter) error) error
	GetReturn(ctx context.Context, id int64) (Return, []ReturnItem, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	ListReturns(ctx context.Context, filter ListFilter) ([]Return, int, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter narrows return listings.
type ListFilter struct {
	Status   Status
	VendorID int64
	Page     int
	PerPage  int
}

// DraftLine is one line of a draft being created.
type DraftLine struct {
	ItemID    int64
	Quantity  int64
	UnitPrice int64
	Reason    string
}

// DraftInput describes a return draft.
type DraftInput struct {
	Code              string
	PurchaseRequestID int64
	InboundID         int64
	VendorID          int64
	Reason            Reason
	ReturnDate        time.Time
	Note              string
	ActorID           int64
	Lines             []DraftLine
}

// Service orchestrates the vendor return workflow.
type Service struct {
	repo      RepositoryPort
	approvals *shared.ApprovalRecorder
	audit     AuditPort
	clock     func() time.Time
}

// NewService constructs returns service.
func NewService(repo RepositoryPort, approvals *shared.ApprovalRecorder, audit AuditPort) *Service {
	return &Service{repo: repo, approvals: approvals, audit: audit, clock: func() time.Time { return time.Now().UTC() }}
}

// CreateDraftEntry persists a DRAFT return inside the caller's transaction.
// The document code is RET/{year}/{month}/{sequence} with the sequence scoped
// to the year-month of creation.
func CreateDraftEntry(ctx context.Context, tx TxWriter, input DraftInput, now time.Time) (Return, error) {
	if input.VendorID == 0 || len(input.Lines) == 0 {
		return Return{}, ErrValidation
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return Return{}, ErrValidation
		}
	}
	reason := input.Reason
	if reason == "" {
		reason = ReasonOther
	}
	code := input.Code
	if code == "" {
		seq, err := tx.CountInPeriod(ctx, now.Year(), now.Month())
		if err != nil {
			return Return{}, err
		}
		code = fmt.Sprintf("RET/%d/%02d/%04d", now.Year(), int(now.Month()), seq+1)
	}
	returnDate := input.ReturnDate
	if returnDate.IsZero() {
		returnDate = now
	}

	ret := Return{
		Code:              code,
		PurchaseRequestID: input.PurchaseRequestID,
		InboundID:         input.InboundID,
		VendorID:          input.VendorID,
		Reason:            reason,
		Status:            StatusDraft,
		ReturnDate:        returnDate,
		Note:              input.Note,
		CreatedBy:         input.ActorID,
	}
	id, err := tx.InsertReturn(ctx, ret)
	if err != nil {
		return Return{}, err
	}
	ret.ID = id
	for _, line := range input.Lines {
		item := ReturnItem{ReturnID: id, ItemID: line.ItemID, Quantity: line.Quantity, UnitPrice: line.UnitPrice, Reason: line.Reason}
		if err := tx.InsertReturnItem(ctx, item); err != nil {
			return Return{}, err
		}
	}
	return ret, nil
}

// CreateDraft creates a standalone draft in its own transaction.
func (s *Service) CreateDraft(ctx context.Context, input DraftInput) (Return, error) {
	now := s.clock()
	var created Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxWriter) error {
		ret, err := CreateDraftEntry(ctx, tx, input, now)
		if err != nil {
			return err
		}
		created = ret
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, "RETURN_CREATE", created.ID, input.ActorID, map[string]any{"code": created.Code})
	return created, nil
}

// Submit moves a draft into the approval queue.
func (s *Service) Submit(ctx context.Context, returnID, actorID int64) error {
	return s.transition(ctx, returnID, actorID, StatusDraft, StatusPendingApproval, func(ret Return) error {
		if s.approvals != nil {
			return s.approvals.EnsureSubmit(ctx, "RETURN", refFor(returnID), actorID, fmt.Sprintf("Retur %s diajukan", ret.Code))
		}
		return nil
	})
}

// Approve marks the return approved and records the approval.
func (s *Service) Approve(ctx context.Context, returnID, actorID int64, note string) error {
	return s.transition(ctx, returnID, actorID, StatusPendingApproval, StatusApproved, func(ret Return) error {
		if s.approvals != nil {
			return s.approvals.Record(ctx, shared.ApprovalLog{Module: "RETURN", RefID: refFor(returnID), ActorID: actorID, Action: shared.ApprovalApprove, Note: note})
		}
		return nil
	})
}

// Reject closes the return without sending anything back.
func (s *Service) Reject(ctx context.Context, returnID, actorID int64, note string) error {
	return s.transition(ctx, returnID, actorID, StatusPendingApproval, StatusRejected, func(ret Return) error {
		if s.approvals != nil {
			return s.approvals.Record(ctx, shared.ApprovalLog{Module: "RETURN", RefID: refFor(returnID), ActorID: actorID, Action: shared.ApprovalReject, Note: note})
		}
		return nil
	})
}

// MarkSent records physical dispatch to the vendor.
func (s *Service) MarkSent(ctx context.Context, returnID, actorID int64) error {
	return s.transition(ctx, returnID, actorID, StatusApproved, StatusSentToVendor, nil)
}

// Complete closes the return after the vendor settles it.
func (s *Service) Complete(ctx context.Context, returnID, actorID int64) error {
	return s.transition(ctx, returnID, actorID, StatusSentToVendor, StatusCompleted, nil)
}

// Get fetches one return with lines.
func (s *Service) Get(ctx context.Context, returnID int64) (Return, []ReturnItem, error) {
	return s.repo.GetReturn(ctx, returnID)
}

// List returns paginated returns.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Return, shared.Pagination, error) {
	rets, total, err := s.repo.ListReturns(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rets, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) transition(ctx context.Context, returnID, actorID int64, from, to Status, hook func(Return) error) error {
	ret, _, err := s.repo.GetReturn(ctx, returnID)
	if err != nil {
		return err
	}
	if ret.Status != from {
		return ErrInvalidState
	}
	if err := s.repo.UpdateStatus(ctx, returnID, to); err != nil {
		return err
	}
	if hook != nil {
		if err := hook(ret); err != nil {
			return err
		}
	}
	s.recordAudit(ctx, fmt.Sprintf("RETURN_%s", to), returnID, actorID, map[string]any{"code": ret.Code})
	return nil
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID, actorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "return", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func refFor(returnID int64) uuid.UUID {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("RETURN:%d", returnID)))
}

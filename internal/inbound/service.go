package inbound

import (
	"context"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/returns"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/stock"
)

// TxRepository is the write surface of one verification or resolution
// transaction. It embeds the stock ledger and return-draft transaction ports
// so ledger postings and spawned documents commit together with the inbound
// writes.
type TxRepository interface {
	stock.LedgerTx
	returns.TxWriter

	// GetInboundForUpdate locks the header row so concurrent verifications
	// and child creations for the same inbound serialize.
	GetInboundForUpdate(ctx context.Context, inboundID int64) (Inbound, error)
	GetLines(ctx context.Context, inboundID int64) ([]InboundItem, error)
	GetLineForUpdate(ctx context.Context, lineID int64) (InboundItem, error)
	MarkVerified(ctx context.Context, inboundID, verifierID int64, at time.Time, note string, status Status) error
	UpdateLine(ctx context.Context, line InboundItem) error
	InsertInbound(ctx context.Context, in Inbound) (int64, error)
	InsertLine(ctx context.Context, line InboundItem) (int64, error)
	CountChildren(ctx context.Context, parentID int64) (int, error)
	CountInPeriodGRN(ctx context.Context, year int, month time.Month) (int, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetInbound(ctx context.Context, inboundID int64) (Inbound, []InboundItem, error)
	GetLine(ctx context.Context, lineID int64) (InboundItem, error)
	ListInbounds(ctx context.Context, filter ListFilter) ([]Inbound, int, error)
	ListChildren(ctx context.Context, parentID int64) ([]Inbound, error)
	SetProofDocument(ctx context.Context, inboundID int64, url string) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards verification replays driven by client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, scope string) error
	Delete(ctx context.Context, key string) error
}

// ListFilter narrows inbound listings.
type ListFilter struct {
	Status   Status
	VendorID int64
	Page     int
	PerPage  int
}

// CreateLine is one expected line when seeding from a purchase order.
type CreateLine struct {
	ItemID   int64
	Quantity int64
}

// CreateInput seeds a new inbound from a confirmed purchase order.
type CreateInput struct {
	GRNNumber         string
	PurchaseRequestID int64
	VendorID          int64
	WarehouseID       int64
	ReceiveDate       time.Time
	Note              string
	ActorID           int64
	Lines             []CreateLine
}

// VerifyLine is the verifier's count for one existing line, keyed by item.
type VerifyLine struct {
	ItemID      int64
	ReceivedQty int64
	AcceptedQty int64
	RejectedQty int64
	Discrepancy DiscrepancyType
	Reason      string
}

// VerifyInput drives one verification pass.
type VerifyInput struct {
	InboundID      int64
	VerifierID     int64
	Note           string
	IdempotencyKey string
	Lines          []VerifyLine
}

// VerifyResult reports the committed outcome.
type VerifyResult struct {
	Inbound Inbound
	Lines   []InboundItem
	Posted  []stock.StockCard
}

// ResolveInput drives one discrepancy resolution.
type ResolveInput struct {
	LineID  int64
	ActorID int64
	Action  ResolutionAction
	Note    string
}

// ResolveResult reports what the chosen branch produced.
type ResolveResult struct {
	Line   InboundItem
	Return *returns.Return
	Child  *Inbound
	Card   *stock.StockCard
}

// Service orchestrates goods-receipt verification and discrepancy resolution.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	integration IntegrationHandler
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idempotency IdempotencyPort, integration IntegrationHandler) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idempotency,
		integration: integration,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateFromPurchaseOrder seeds a PENDING_VERIFICATION inbound with one line
// per ordered item, received 0. The GRN number is generated per year-month
// when the purchasing system does not supply one.
func (s *Service) CreateFromPurchaseOrder(ctx context.Context, input CreateInput) (Inbound, error) {
	if input.VendorID == 0 || len(input.Lines) == 0 {
		return Inbound{}, fmt.Errorf("inbound: vendor and lines required: %w", ErrValidation)
	}
	seen := make(map[int64]struct{}, len(input.Lines))
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return Inbound{}, fmt.Errorf("inbound: line item and positive quantity required: %w", ErrValidation)
		}
		if _, dup := seen[line.ItemID]; dup {
			return Inbound{}, fmt.Errorf("inbound: duplicate item %d in lines: %w", line.ItemID, ErrValidation)
		}
		seen[line.ItemID] = struct{}{}
	}
	now := s.clock()
	receiveDate := input.ReceiveDate
	if receiveDate.IsZero() {
		receiveDate = now
	}

	var created Inbound
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		grn := input.GRNNumber
		if grn == "" {
			seq, err := tx.CountInPeriodGRN(ctx, now.Year(), now.Month())
			if err != nil {
				return err
			}
			grn = fmt.Sprintf("GRN/%d/%02d/%04d", now.Year(), int(now.Month()), seq+1)
		}
		in := Inbound{
			GRNNumber:         grn,
			PurchaseRequestID: input.PurchaseRequestID,
			VendorID:          input.VendorID,
			WarehouseID:       input.WarehouseID,
			Status:            StatusPendingVerification,
			ReceiveDate:       receiveDate,
			Note:              input.Note,
		}
		id, err := tx.InsertInbound(ctx, in)
		if err != nil {
			return err
		}
		in.ID = id
		for _, line := range input.Lines {
			_, err := tx.InsertLine(ctx, InboundItem{
				InboundID:   id,
				ItemID:      line.ItemID,
				ExpectedQty: line.Quantity,
				Discrepancy: DiscrepancyNone,
				Resolution:  NoResolution(),
				LineStatus:  LinePending,
			})
			if err != nil {
				return err
			}
		}
		created = in
		return nil
	})
	if err != nil {
		return Inbound{}, err
	}
	s.recordAudit(ctx, "INBOUND_CREATE", created.ID, input.ActorID, map[string]any{"grn": created.GRNNumber})
	return created, nil
}

// Verify transitions one inbound from PENDING_VERIFICATION to its verified
// state, applying accepted quantities to the stock ledger. The whole pass is
// one transaction: either the status flip, every line update and every ledger
// posting commit, or nothing does.
func (s *Service) Verify(ctx context.Context, input VerifyInput) (VerifyResult, error) {
	if input.InboundID == 0 {
		return VerifyResult{}, fmt.Errorf("inbound: id required: %w", ErrValidation)
	}
	insertedKey := false
	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "inbound:verify"); err != nil {
			return VerifyResult{}, err
		}
		insertedKey = true
	}
	now := s.clock()

	var result VerifyResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		in, err := tx.GetInboundForUpdate(ctx, input.InboundID)
		if err != nil {
			return err
		}
		if in.Status != StatusPendingVerification {
			return fmt.Errorf("inbound %s sudah diverifikasi: %w", in.GRNNumber, ErrInvalidState)
		}
		lines, err := tx.GetLines(ctx, in.ID)
		if err != nil {
			return err
		}
		counts, err := matchCounts(lines, input.Lines)
		if err != nil {
			return err
		}

		status := StatusVerified
		for i := range lines {
			line := &lines[i]
			count := counts[line.ItemID]
			line.ReceivedQty = count.ReceivedQty
			line.AcceptedQty = count.AcceptedQty
			line.RejectedQty = count.RejectedQty
			line.Discrepancy = ClassifyDiscrepancy(line.ExpectedQty, count.ReceivedQty, count.RejectedQty, count.Discrepancy)
			line.Reason = count.Reason

			if line.Discrepancy == DiscrepancyNone {
				line.Resolution = NoResolution()
				line.LineStatus = LineCompleted
			} else {
				line.Resolution = PendingResolution()
				line.LineStatus = LineOpenIssue
				status = StatusVerifiedDiscrepancy
			}

			if line.AcceptedQty > 0 && line.QtyAddedToStock == 0 {
				card, err := stock.PostEntry(ctx, tx, stock.PostInput{
					ItemID:      line.ItemID,
					WarehouseID: in.WarehouseID,
					Quantity:    line.AcceptedQty,
					Movement:    stock.MovementInbound,
					RefType:     "INBOUND",
					RefID:       in.ID,
					Note:        fmt.Sprintf("Penerimaan %s", in.GRNNumber),
					ActorID:     input.VerifierID,
				}, now)
				if err != nil {
					return err
				}
				line.QtyAddedToStock = line.AcceptedQty
				result.Posted = append(result.Posted, card)
			}
			if err := tx.UpdateLine(ctx, *line); err != nil {
				return err
			}
		}

		if err := tx.MarkVerified(ctx, in.ID, input.VerifierID, now, input.Note, status); err != nil {
			return err
		}
		in.Status = status
		in.VerifiedBy = input.VerifierID
		in.VerifiedAt = now
		result.Inbound = in
		result.Lines = lines
		return nil
	})
	if err != nil {
		// Release the key so a retry after a rolled-back transaction is not
		// mistaken for a replay; nothing was committed.
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return VerifyResult{}, err
	}

	s.recordAudit(ctx, "INBOUND_VERIFY", result.Inbound.ID, input.VerifierID, map[string]any{
		"grn":    result.Inbound.GRNNumber,
		"status": result.Inbound.Status,
		"posted": len(result.Posted),
	})
	s.emitVerified(ctx, result)
	return result, nil
}

// matchCounts pairs verifier counts with existing lines by item and validates
// before any write: full coverage, non-negative quantities, and the
// accepted + rejected == received conservation rule.
func matchCounts(lines []InboundItem, counts []VerifyLine) (map[int64]VerifyLine, error) {
	byItem := make(map[int64]VerifyLine, len(counts))
	for _, count := range counts {
		if _, dup := byItem[count.ItemID]; dup {
			return nil, fmt.Errorf("inbound: duplicate count for item %d: %w", count.ItemID, ErrValidation)
		}
		if count.ReceivedQty < 0 || count.AcceptedQty < 0 || count.RejectedQty < 0 {
			return nil, fmt.Errorf("inbound: negative quantity for item %d: %w", count.ItemID, ErrValidation)
		}
		if count.AcceptedQty+count.RejectedQty != count.ReceivedQty {
			return nil, fmt.Errorf("inbound: accepted+rejected must equal received for item %d: %w", count.ItemID, ErrValidation)
		}
		byItem[count.ItemID] = count
	}
	for _, line := range lines {
		if _, ok := byItem[line.ItemID]; !ok {
			return nil, fmt.Errorf("inbound: missing count for item %d: %w", line.ItemID, ErrValidation)
		}
	}
	if len(byItem) != len(lines) {
		return nil, fmt.Errorf("inbound: counts reference unknown items: %w", ErrValidation)
	}
	return byItem, nil
}

// Resolve executes the chosen remediation for one line carrying a pending
// discrepancy. Every branch runs inside one transaction so a spawned Return
// or replacement inbound never outlives a failed line update.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (ResolveResult, error) {
	if !validAction(input.Action) {
		return ResolveResult{}, fmt.Errorf("inbound: unknown resolution action %q: %w", input.Action, ErrValidation)
	}
	now := s.clock()

	var result ResolveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, input.LineID)
		if err != nil {
			return err
		}
		if !line.Resolution.IsPending() {
			if line.Resolution.IsResolved() {
				return fmt.Errorf("inbound: line %d sudah diselesaikan: %w", line.ID, ErrInvalidState)
			}
			return fmt.Errorf("inbound: line %d tidak memiliki selisih: %w", line.ID, ErrInvalidState)
		}
		parent, err := tx.GetInboundForUpdate(ctx, line.InboundID)
		if err != nil {
			return err
		}

		switch input.Action {
		case ActionKeepExcess:
			if err := s.resolveKeepExcess(ctx, tx, &line, parent, input, now, &result); err != nil {
				return err
			}
		case ActionReturnToVendor, ActionReplaceItem, ActionRefund:
			if err := s.resolveVendorBranch(ctx, tx, &line, parent, input, now, &result); err != nil {
				return err
			}
		case ActionWaitRemaining:
			line.Resolution = ResolvedAs(ActionWaitRemaining)
			line.LineStatus = LineResolved
		case ActionCloseShort:
			line.Resolution = ResolvedAs(ActionCloseShort)
			line.LineStatus = LineClosedShort
		}

		line.Reason = appendNote(line.Reason, input.Note)
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		result.Line = line
		return nil
	})
	if err != nil {
		return ResolveResult{}, err
	}

	meta := map[string]any{"action": input.Action}
	if result.Return != nil {
		meta["return_code"] = result.Return.Code
	}
	if result.Child != nil {
		meta["child_grn"] = result.Child.GRNNumber
	}
	s.recordAudit(ctx, "INBOUND_RESOLVE", result.Line.ID, input.ActorID, meta)
	if result.Card != nil {
		s.emitVerified(ctx, VerifyResult{Inbound: Inbound{ID: result.Line.InboundID}, Posted: []stock.StockCard{*result.Card}})
	}
	return result, nil
}

// resolveKeepExcess accepts previously rejected units into stock: the full
// rejected quantity moves to accepted and is posted to the ledger.
func (s *Service) resolveKeepExcess(ctx context.Context, tx TxRepository, line *InboundItem, parent Inbound, input ResolveInput, now time.Time, result *ResolveResult) error {
	if line.RejectedQty <= 0 {
		return fmt.Errorf("inbound: tidak ada kuantitas ditolak untuk disimpan: %w", ErrInvalidState)
	}
	moved := line.RejectedQty
	card, err := stock.PostEntry(ctx, tx, stock.PostInput{
		ItemID:      line.ItemID,
		WarehouseID: parent.WarehouseID,
		Quantity:    moved,
		Movement:    stock.MovementInbound,
		RefType:     "INBOUND",
		RefID:       parent.ID,
		Note:        fmt.Sprintf("Kelebihan diterima %s", parent.GRNNumber),
		ActorID:     input.ActorID,
	}, now)
	if err != nil {
		return err
	}
	line.AcceptedQty += moved
	line.RejectedQty = 0
	line.QtyAddedToStock += moved
	line.Resolution = ResolvedAs(ActionKeepExcess)
	line.LineStatus = LineResolved
	result.Card = &card
	return nil
}

// resolveVendorBranch creates one DRAFT return document for the disputed
// quantity; REPLACE_ITEM additionally spawns a child inbound awaiting its own
// verification cycle.
func (s *Service) resolveVendorBranch(ctx context.Context, tx TxRepository, line *InboundItem, parent Inbound, input ResolveInput, now time.Time, result *ResolveResult) error {
	qty := line.RejectedQty
	if excess := line.ReceivedQty - line.ExpectedQty; excess > qty {
		qty = excess
	}
	if qty <= 0 {
		return fmt.Errorf("inbound: tidak ada kuantitas untuk diretur: %w", ErrInvalidState)
	}

	reason := returns.ReasonOther
	if input.Action == ActionReplaceItem {
		reason = returns.ReasonWrongItem
	}
	ret, err := returns.CreateDraftEntry(ctx, tx, returns.DraftInput{
		PurchaseRequestID: parent.PurchaseRequestID,
		InboundID:         parent.ID,
		VendorID:          parent.VendorID,
		Reason:            reason,
		Note:              input.Note,
		ActorID:           input.ActorID,
		Lines: []returns.DraftLine{{
			ItemID:   line.ItemID,
			Quantity: qty,
			Reason:   string(line.Discrepancy),
		}},
	}, now)
	if err != nil {
		return err
	}
	result.Return = &ret

	if input.Action == ActionReplaceItem {
		child, err := s.spawnReplacement(ctx, tx, parent, *line, now)
		if err != nil {
			return err
		}
		result.Child = &child
	}

	line.Resolution = ResolvedAs(input.Action)
	line.LineStatus = LineResolved
	return nil
}

// spawnReplacement creates the child inbound for a replacement shipment. The
// letter suffix is derived from the count of existing children inside the
// same transaction, with the parent row already locked, so concurrent
// resolutions cannot collide on a suffix.
func (s *Service) spawnReplacement(ctx context.Context, tx TxRepository, parent Inbound, line InboundItem, now time.Time) (Inbound, error) {
	count, err := tx.CountChildren(ctx, parent.ID)
	if err != nil {
		return Inbound{}, err
	}
	child := Inbound{
		GRNNumber:         fmt.Sprintf("%s-REP-%c", parent.GRNNumber, rune('A'+count)),
		PurchaseRequestID: parent.PurchaseRequestID,
		VendorID:          parent.VendorID,
		WarehouseID:       parent.WarehouseID,
		ParentID:          parent.ID,
		Status:            StatusPendingVerification,
		ReceiveDate:       now,
		Note:              fmt.Sprintf("Pengganti %s", parent.GRNNumber),
	}
	id, err := tx.InsertInbound(ctx, child)
	if err != nil {
		return Inbound{}, err
	}
	child.ID = id
	_, err = tx.InsertLine(ctx, InboundItem{
		InboundID:   id,
		ItemID:      line.ItemID,
		ExpectedQty: line.RejectedQty,
		Discrepancy: DiscrepancyNone,
		Resolution:  NoResolution(),
		LineStatus:  LinePending,
	})
	if err != nil {
		return Inbound{}, err
	}
	return child, nil
}

// Get fetches one inbound with its lines.
func (s *Service) Get(ctx context.Context, inboundID int64) (Inbound, []InboundItem, error) {
	return s.repo.GetInbound(ctx, inboundID)
}

// List returns paginated inbounds.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Inbound, shared.Pagination, error) {
	items, total, err := s.repo.ListInbounds(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Children lists replacement inbounds spawned from the given parent.
func (s *Service) Children(ctx context.Context, parentID int64) ([]Inbound, error) {
	if _, _, err := s.repo.GetInbound(ctx, parentID); err != nil {
		return nil, err
	}
	return s.repo.ListChildren(ctx, parentID)
}

// AttachProof stores the opaque proof-document URL. Upload and validation
// happen in the document storage collaborator.
func (s *Service) AttachProof(ctx context.Context, inboundID int64, url string, actorID int64) error {
	if url == "" {
		return fmt.Errorf("inbound: proof url required: %w", ErrValidation)
	}
	if err := s.repo.SetProofDocument(ctx, inboundID, url); err != nil {
		return err
	}
	s.recordAudit(ctx, "INBOUND_PROOF", inboundID, actorID, map[string]any{"url": url})
	return nil
}

func (s *Service) emitVerified(ctx context.Context, result VerifyResult) {
	if s.integration == nil || len(result.Posted) == 0 {
		return
	}
	itemIDs := make([]int64, 0, len(result.Posted))
	for _, card := range result.Posted {
		itemIDs = append(itemIDs, card.ItemID)
	}
	_ = s.integration.HandleInboundVerified(ctx, InboundVerifiedEvent{
		InboundID:  result.Inbound.ID,
		GRNNumber:  result.Inbound.GRNNumber,
		ItemIDs:    itemIDs,
		VerifiedAt: result.Inbound.VerifiedAt,
	})
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID, actorID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "inbound", EntityID: fmt.Sprintf("%d", entityID), Meta: meta})
}

func appendNote(existing, note string) string {
	if note == "" {
		return existing
	}
	if existing == "" {
		return note
	}
	return existing + "; " + note
}

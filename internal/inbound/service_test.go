package inbound

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/returns"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
	"github.com/lumbung-erp/lumbung-erp/internal/stock"
)

var (
	errForcedInsert  = errors.New("forced insert failure")
	errSerialization = errors.New("could not serialize access due to concurrent update")
)

// memoryIdempotency mimics the unique-insert key store.
type memoryIdempotency struct {
	keys map[string]struct{}
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]struct{})}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, scope string) error {
	if _, ok := m.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = struct{}{}
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

// memoryStore implements RepositoryPort and, through memTx, TxRepository.
// WithTx snapshots the whole state up front and restores it when the callback
// errors, mirroring a rolled-back transaction.
type memoryStore struct {
	items       map[int64]stock.Item
	cards       []stock.StockCard
	inbounds    map[int64]Inbound
	lines       map[int64]InboundItem
	rets        map[int64]returns.Return
	retItems    map[int64][]returns.ReturnItem
	nextID      int64
	failReturns bool
	failCommit  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		items:    make(map[int64]stock.Item),
		inbounds: make(map[int64]Inbound),
		lines:    make(map[int64]InboundItem),
		rets:     make(map[int64]returns.Return),
		retItems: make(map[int64][]returns.ReturnItem),
	}
}

func (s *memoryStore) addItem(id int64, current int64) {
	s.items[id] = stock.Item{ID: id, SKU: "SKU", Name: "Item", CurrentStock: current, IsActive: true}
}

func (s *memoryStore) snapshot() *memoryStore {
	clone := newMemoryStore()
	for k, v := range s.items {
		clone.items[k] = v
	}
	clone.cards = append([]stock.StockCard(nil), s.cards...)
	for k, v := range s.inbounds {
		clone.inbounds[k] = v
	}
	for k, v := range s.lines {
		clone.lines[k] = v
	}
	for k, v := range s.rets {
		clone.rets[k] = v
	}
	for k, v := range s.retItems {
		clone.retItems[k] = append([]returns.ReturnItem(nil), v...)
	}
	clone.nextID = s.nextID
	return clone
}

func (s *memoryStore) restore(from *memoryStore) {
	s.items = from.items
	s.cards = from.cards
	s.inbounds = from.inbounds
	s.lines = from.lines
	s.rets = from.rets
	s.retItems = from.retItems
	s.nextID = from.nextID
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	backup := s.snapshot()
	if err := fn(ctx, &memTx{store: s}); err != nil {
		s.restore(backup)
		return err
	}
	if s.failCommit != nil {
		err := s.failCommit
		s.failCommit = nil
		s.restore(backup)
		return err
	}
	return nil
}

func (s *memoryStore) GetInbound(ctx context.Context, inboundID int64) (Inbound, []InboundItem, error) {
	in, ok := s.inbounds[inboundID]
	if !ok {
		return Inbound{}, nil, ErrNotFound
	}
	return in, s.linesOf(inboundID), nil
}

func (s *memoryStore) linesOf(inboundID int64) []InboundItem {
	var lines []InboundItem
	for id := int64(1); id <= s.nextID; id++ {
		if line, ok := s.lines[id]; ok && line.InboundID == inboundID {
			lines = append(lines, line)
		}
	}
	return lines
}

func (s *memoryStore) GetLine(ctx context.Context, lineID int64) (InboundItem, error) {
	line, ok := s.lines[lineID]
	if !ok {
		return InboundItem{}, ErrNotFound
	}
	return line, nil
}

func (s *memoryStore) ListInbounds(ctx context.Context, filter ListFilter) ([]Inbound, int, error) {
	var items []Inbound
	for _, in := range s.inbounds {
		if filter.Status != "" && in.Status != filter.Status {
			continue
		}
		items = append(items, in)
	}
	return items, len(items), nil
}

func (s *memoryStore) ListChildren(ctx context.Context, parentID int64) ([]Inbound, error) {
	var children []Inbound
	for id := int64(1); id <= s.nextID; id++ {
		if in, ok := s.inbounds[id]; ok && in.ParentID == parentID {
			children = append(children, in)
		}
	}
	return children, nil
}

func (s *memoryStore) SetProofDocument(ctx context.Context, inboundID int64, url string) error {
	in, ok := s.inbounds[inboundID]
	if !ok {
		return ErrNotFound
	}
	in.ProofDocumentURL = url
	s.inbounds[inboundID] = in
	return nil
}

type memTx struct {
	store *memoryStore
}

func (t *memTx) GetItemForUpdate(ctx context.Context, itemID int64) (stock.Item, error) {
	item, ok := t.store.items[itemID]
	if !ok {
		return stock.Item{}, stock.ErrItemNotFound
	}
	return item, nil
}

func (t *memTx) UpdateItemStock(ctx context.Context, itemID, newStock int64) error {
	item := t.store.items[itemID]
	item.CurrentStock = newStock
	t.store.items[itemID] = item
	return nil
}

func (t *memTx) InsertCard(ctx context.Context, card stock.StockCard) (int64, error) {
	t.store.nextID++
	card.ID = t.store.nextID
	t.store.cards = append(t.store.cards, card)
	return card.ID, nil
}

func (t *memTx) CountInPeriod(ctx context.Context, year int, month time.Month) (int, error) {
	count := 0
	for _, ret := range t.store.rets {
		if ret.CreatedAt.Year() == year && ret.CreatedAt.Month() == month {
			count++
		}
	}
	return count, nil
}

func (t *memTx) InsertReturn(ctx context.Context, ret returns.Return) (int64, error) {
	if t.store.failReturns {
		return 0, errForcedInsert
	}
	t.store.nextID++
	ret.ID = t.store.nextID
	if ret.CreatedAt.IsZero() {
		ret.CreatedAt = ret.ReturnDate
	}
	t.store.rets[ret.ID] = ret
	return ret.ID, nil
}

func (t *memTx) InsertReturnItem(ctx context.Context, item returns.ReturnItem) error {
	t.store.retItems[item.ReturnID] = append(t.store.retItems[item.ReturnID], item)
	return nil
}

func (t *memTx) GetInboundForUpdate(ctx context.Context, inboundID int64) (Inbound, error) {
	in, ok := t.store.inbounds[inboundID]
	if !ok {
		return Inbound{}, ErrNotFound
	}
	return in, nil
}

func (t *memTx) GetLines(ctx context.Context, inboundID int64) ([]InboundItem, error) {
	return t.store.linesOf(inboundID), nil
}

func (t *memTx) GetLineForUpdate(ctx context.Context, lineID int64) (InboundItem, error) {
	line, ok := t.store.lines[lineID]
	if !ok {
		return InboundItem{}, ErrNotFound
	}
	return line, nil
}

func (t *memTx) MarkVerified(ctx context.Context, inboundID, verifierID int64, at time.Time, note string, status Status) error {
	in, ok := t.store.inbounds[inboundID]
	if !ok || in.Status != StatusPendingVerification {
		return ErrInvalidState
	}
	in.Status = status
	in.VerifiedBy = verifierID
	in.VerifiedAt = at
	if note != "" {
		in.Note = note
	}
	t.store.inbounds[inboundID] = in
	return nil
}

func (t *memTx) UpdateLine(ctx context.Context, line InboundItem) error {
	if _, ok := t.store.lines[line.ID]; !ok {
		return ErrNotFound
	}
	t.store.lines[line.ID] = line
	return nil
}

func (t *memTx) InsertInbound(ctx context.Context, in Inbound) (int64, error) {
	t.store.nextID++
	in.ID = t.store.nextID
	in.CreatedAt = in.ReceiveDate
	t.store.inbounds[in.ID] = in
	return in.ID, nil
}

func (t *memTx) InsertLine(ctx context.Context, line InboundItem) (int64, error) {
	t.store.nextID++
	line.ID = t.store.nextID
	t.store.lines[line.ID] = line
	return line.ID, nil
}

func (t *memTx) CountChildren(ctx context.Context, parentID int64) (int, error) {
	count := 0
	for _, in := range t.store.inbounds {
		if in.ParentID == parentID {
			count++
		}
	}
	return count, nil
}

func (t *memTx) CountInPeriodGRN(ctx context.Context, year int, month time.Month) (int, error) {
	count := 0
	for _, in := range t.store.inbounds {
		if in.ParentID == 0 && in.CreatedAt.Year() == year && in.CreatedAt.Month() == month {
			count++
		}
	}
	return count, nil
}

func newTestService(store *memoryStore) *Service {
	svc := NewService(store, nil, nil, nil)
	svc.clock = func() time.Time { return time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC) }
	return svc
}

func seedInbound(t *testing.T, svc *Service, store *memoryStore, grn string, itemID, expected int64) (Inbound, InboundItem) {
	t.Helper()
	in, err := svc.CreateFromPurchaseOrder(context.Background(), CreateInput{
		GRNNumber:         grn,
		PurchaseRequestID: 11,
		VendorID:          4,
		WarehouseID:       1,
		ActorID:           7,
		Lines:             []CreateLine{{ItemID: itemID, Quantity: expected}},
	})
	require.NoError(t, err)
	lines := store.linesOf(in.ID)
	require.Len(t, lines, 1)
	return in, lines[0]
}

func cardsForItem(store *memoryStore, itemID int64) []stock.StockCard {
	var cards []stock.StockCard
	for _, card := range store.cards {
		if card.ItemID == itemID {
			cards = append(cards, card)
		}
	}
	return cards
}

func TestCreateFromPurchaseOrderSeedsPendingLines(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)

	in, err := svc.CreateFromPurchaseOrder(context.Background(), CreateInput{
		PurchaseRequestID: 11,
		VendorID:          4,
		WarehouseID:       1,
		Lines:             []CreateLine{{ItemID: 1, Quantity: 10}},
	})
	require.NoError(t, err)
	require.Equal(t, "GRN/2025/06/0001", in.GRNNumber)
	require.Equal(t, StatusPendingVerification, in.Status)

	lines := store.linesOf(in.ID)
	require.Len(t, lines, 1)
	require.Equal(t, int64(10), lines[0].ExpectedQty)
	require.Zero(t, lines[0].ReceivedQty)
	require.Equal(t, LinePending, lines[0].LineStatus)
	require.False(t, lines[0].Resolution.IsPending())
}

func TestCreateFromPurchaseOrderRejectsDuplicateItems(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)

	_, err := svc.CreateFromPurchaseOrder(context.Background(), CreateInput{
		VendorID: 4,
		Lines:    []CreateLine{{ItemID: 1, Quantity: 5}, {ItemID: 1, Quantity: 3}},
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, store.inbounds)
}

func TestVerifyPerfectReceipt(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 5)
	svc := newTestService(store)
	in, _ := seedInbound(t, svc, store, "GRN-100", 1, 10)

	result, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 10, RejectedQty: 0}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusVerified, result.Inbound.Status)
	require.Equal(t, int64(9), result.Inbound.VerifiedBy)

	line := result.Lines[0]
	require.Equal(t, DiscrepancyNone, line.Discrepancy)
	require.Equal(t, LineCompleted, line.LineStatus)
	require.Equal(t, int64(10), line.QtyAddedToStock)
	require.Equal(t, line.AcceptedQty+line.RejectedQty, line.ReceivedQty)

	require.Equal(t, int64(15), store.items[1].CurrentStock)
	cards := cardsForItem(store, 1)
	require.Len(t, cards, 1)
	require.Equal(t, int64(5), cards[0].QuantityBefore)
	require.Equal(t, int64(10), cards[0].QuantityChange)
	require.Equal(t, int64(15), cards[0].QuantityAfter)
	require.Equal(t, stock.MovementInbound, cards[0].Movement)
	require.Equal(t, in.ID, cards[0].RefID)
}

func TestVerifyShortageThenCloseShort(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-200", 1, 50)

	result, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 30, AcceptedQty: 30, RejectedQty: 0}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusVerifiedDiscrepancy, result.Inbound.Status)
	require.Equal(t, DiscrepancyShortage, result.Lines[0].Discrepancy)
	require.Equal(t, LineOpenIssue, result.Lines[0].LineStatus)
	require.True(t, result.Lines[0].Resolution.IsPending())
	require.Equal(t, int64(30), store.items[1].CurrentStock)

	resolved, err := svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionCloseShort, Note: "vendor konfirmasi stok habis"})
	require.NoError(t, err)
	require.Equal(t, LineClosedShort, resolved.Line.LineStatus)
	action, ok := resolved.Line.Resolution.Action()
	require.True(t, ok)
	require.Equal(t, ActionCloseShort, action)

	// Quantities and ledger untouched by a close-short.
	require.Equal(t, int64(30), resolved.Line.AcceptedQty)
	require.Equal(t, int64(30), store.items[1].CurrentStock)
	require.Len(t, cardsForItem(store, 1), 1)
}

func TestVerifyMixedDamageThenReturnToVendor(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-300", 1, 20)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 18, AcceptedQty: 17, RejectedQty: 1, Reason: "1 unit pecah"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(17), store.items[1].CurrentStock)

	result, err := svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionReturnToVendor})
	require.NoError(t, err)
	require.NotNil(t, result.Return)
	require.Equal(t, "RET/2025/06/0001", result.Return.Code)
	require.Equal(t, returns.StatusDraft, result.Return.Status)
	require.Equal(t, in.ID, result.Return.InboundID)

	items := store.retItems[result.Return.ID]
	require.Len(t, items, 1)
	// max(rejected=1, received-expected=18-20) -> 1
	require.Equal(t, int64(1), items[0].Quantity)
	require.Zero(t, items[0].UnitPrice)

	require.Equal(t, LineResolved, result.Line.LineStatus)
	// Return creation never touches the ledger.
	require.Len(t, cardsForItem(store, 1), 1)
}

func TestVerifyHardValidatesConservation(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, _ := seedInbound(t, svc, store, "GRN-400", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 8, RejectedQty: 1}},
	})
	require.ErrorIs(t, err, ErrValidation)

	// Nothing was written.
	got, _, err := store.GetInbound(context.Background(), in.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingVerification, got.Status)
	require.Empty(t, cardsForItem(store, 1))
	require.Zero(t, store.items[1].CurrentStock)
}

func TestVerifyRequiresFullLineCoverage(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	store.addItem(2, 0)
	svc := newTestService(store)
	in, err := svc.CreateFromPurchaseOrder(context.Background(), CreateInput{
		VendorID: 4,
		Lines:    []CreateLine{{ItemID: 1, Quantity: 5}, {ItemID: 2, Quantity: 5}},
	})
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 5, AcceptedQty: 5}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines: []VerifyLine{
			{ItemID: 1, ReceivedQty: 5, AcceptedQty: 5},
			{ItemID: 3, ReceivedQty: 5, AcceptedQty: 5},
		},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestVerifyIsOneShot(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, _ := seedInbound(t, svc, store, "GRN-500", 1, 10)

	counts := []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 10}}
	_, err := svc.Verify(context.Background(), VerifyInput{InboundID: in.ID, VerifierID: 9, Lines: counts})
	require.NoError(t, err)

	_, err = svc.Verify(context.Background(), VerifyInput{InboundID: in.ID, VerifierID: 9, Lines: counts})
	require.ErrorIs(t, err, ErrInvalidState)

	// Exactly one posting from the first pass.
	require.Len(t, cardsForItem(store, 1), 1)
	require.Equal(t, int64(10), store.items[1].CurrentStock)
}

func TestVerifyIdempotencyKeyReleasedOnRollback(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	idem := newMemoryIdempotency()
	svc := NewService(store, nil, idem, nil)
	svc.clock = func() time.Time { return time.Date(2025, time.June, 2, 8, 0, 0, 0, time.UTC) }
	in, _ := seedInbound(t, svc, store, "GRN-550", 1, 10)

	input := VerifyInput{
		InboundID:      in.ID,
		VerifierID:     9,
		IdempotencyKey: "verify-grn-550",
		Lines:          []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 10}},
	}

	store.failCommit = errSerialization
	_, err := svc.Verify(context.Background(), input)
	require.ErrorIs(t, err, errSerialization)

	// Nothing committed, so the inbound is still pending.
	got, _, err := store.GetInbound(context.Background(), in.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPendingVerification, got.Status)

	_, err = svc.Verify(context.Background(), input)
	require.NoError(t, err, "retry after a rolled-back transaction must succeed")
	require.Equal(t, int64(10), store.items[1].CurrentStock)

	// After a committed verification the key stays burned.
	_, err = svc.Verify(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestVerifyUnknownInbound(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  77,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 1, AcceptedQty: 1}},
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveKeepExcess(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-600", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 13, AcceptedQty: 10, RejectedQty: 3}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), store.items[1].CurrentStock)

	result, err := svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionKeepExcess})
	require.NoError(t, err)
	require.Zero(t, result.Line.RejectedQty)
	require.Equal(t, int64(13), result.Line.AcceptedQty)
	require.Equal(t, int64(13), result.Line.QtyAddedToStock)
	require.Equal(t, int64(13), store.items[1].CurrentStock)

	cards := cardsForItem(store, 1)
	require.Len(t, cards, 2)
	require.Equal(t, int64(3), cards[1].QuantityChange)
	require.Equal(t, int64(10), cards[1].QuantityBefore)
	require.Equal(t, int64(13), cards[1].QuantityAfter)
}

func TestResolveKeepExcessRequiresRejectedUnits(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-610", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 8, AcceptedQty: 8}},
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionKeepExcess})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestResolveReplaceItemSpawnsChild(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-001", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 5, RejectedQty: 5, Discrepancy: DiscrepancyWrongItem}},
	})
	require.NoError(t, err)

	result, err := svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionReplaceItem})
	require.NoError(t, err)
	require.NotNil(t, result.Child)
	require.Equal(t, "GRN-001-REP-A", result.Child.GRNNumber)
	require.Equal(t, in.ID, result.Child.ParentID)
	require.Equal(t, StatusPendingVerification, result.Child.Status)

	childLines := store.linesOf(result.Child.ID)
	require.Len(t, childLines, 1)
	require.Equal(t, int64(5), childLines[0].ExpectedQty)
	require.Zero(t, childLines[0].ReceivedQty)

	require.NotNil(t, result.Return)
	require.Equal(t, returns.ReasonWrongItem, result.Return.Reason)

	children, err := svc.Children(context.Background(), in.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
}

func TestResolveAtomicRollback(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-700", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 9, RejectedQty: 1}},
	})
	require.NoError(t, err)

	store.failReturns = true
	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionReturnToVendor})
	require.ErrorIs(t, err, errForcedInsert)

	// The staged line update rolled back with the failed return insert.
	got, err := store.GetLine(context.Background(), line.ID)
	require.NoError(t, err)
	require.True(t, got.Resolution.IsPending())
	require.Equal(t, LineOpenIssue, got.LineStatus)
	require.Empty(t, store.rets)
}

func TestResolveRejectsLinesWithoutPendingDiscrepancy(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-800", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 10, AcceptedQty: 10}},
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionCloseShort})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: 999, ActorID: 9, Action: ActionCloseShort})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ResolutionAction("SHRUG")})
	require.ErrorIs(t, err, ErrValidation)
}

func TestResolveIsTerminalPerLine(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, line := seedInbound(t, svc, store, "GRN-900", 1, 10)

	_, err := svc.Verify(context.Background(), VerifyInput{
		InboundID:  in.ID,
		VerifierID: 9,
		Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: 8, AcceptedQty: 8}},
	})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionWaitRemaining})
	require.NoError(t, err)

	_, err = svc.Resolve(context.Background(), ResolveInput{LineID: line.ID, ActorID: 9, Action: ActionCloseShort})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestLedgerChainAcrossVerifications(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)

	for i, qty := range []int64{10, 7, 3} {
		in, _ := seedInbound(t, svc, store, "", 1, qty)
		_, err := svc.Verify(context.Background(), VerifyInput{
			InboundID:  in.ID,
			VerifierID: 9,
			Lines:      []VerifyLine{{ItemID: 1, ReceivedQty: qty, AcceptedQty: qty}},
		})
		require.NoError(t, err, "verification %d", i)
	}

	cards := cardsForItem(store, 1)
	require.Len(t, cards, 3)
	for i := 1; i < len(cards); i++ {
		require.Equal(t, cards[i-1].QuantityAfter, cards[i].QuantityBefore)
	}
	for _, card := range cards {
		require.Equal(t, card.QuantityBefore+card.QuantityChange, card.QuantityAfter)
	}
	require.Equal(t, cards[len(cards)-1].QuantityAfter, store.items[1].CurrentStock)
}

func TestAttachProof(t *testing.T) {
	store := newMemoryStore()
	store.addItem(1, 0)
	svc := newTestService(store)
	in, _ := seedInbound(t, svc, store, "GRN-950", 1, 10)

	require.NoError(t, svc.AttachProof(context.Background(), in.ID, "s3://bukti/grn-950.pdf", 9))
	got, _, err := store.GetInbound(context.Background(), in.ID)
	require.NoError(t, err)
	require.Equal(t, "s3://bukti/grn-950.pdf", got.ProofDocumentURL)

	err = svc.AttachProof(context.Background(), in.ID, "", 9)
	require.ErrorIs(t, err, ErrValidation)
}

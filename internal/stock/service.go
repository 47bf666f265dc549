package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// LedgerTx exposes the row-level operations a ledger posting needs. The
// implementation is expected to run inside one storage transaction; other
// modules embed this interface in their own TxRepository so their document
// writes and the ledger postings commit or roll back together.
type LedgerTx interface {
	// GetItemForUpdate reads the item row under a row lock so concurrent
	// postings for the same item serialize.
	GetItemForUpdate(ctx context.Context, itemID int64) (Item, error)
	UpdateItemStock(ctx context.Context, itemID, newStock int64) error
	InsertCard(ctx context.Context, card StockCard) (int64, error)
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error
	GetItem(ctx context.Context, itemID int64) (Item, error)
	StockCard(ctx context.Context, filter CardFilter) ([]StockCard, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock ledger operations.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	cache       *SnapshotCache
	integration IntegrationHandler
	clock       func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, cache *SnapshotCache, integration IntegrationHandler) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		cache:       cache,
		integration: integration,
		clock:       func() time.Time { return time.Now().UTC() },
	}
}

// PostEntry appends one ledger entry and advances the item's running total
// inside the caller's transaction. The item row is locked before the balance
// is read so quantity_before of the new entry always equals quantity_after of
// the previous one.
func PostEntry(ctx context.Context, tx LedgerTx, input PostInput, at time.Time) (StockCard, error) {
	if input.Quantity <= 0 {
		return StockCard{}, ErrInvalidQuantity
	}
	direction := input.Movement.Direction()
	if direction == 0 {
		return StockCard{}, ErrUnknownMovement
	}

	item, err := tx.GetItemForUpdate(ctx, input.ItemID)
	if err != nil {
		return StockCard{}, err
	}
	if !item.IsActive {
		return StockCard{}, ErrItemInactive
	}

	change := input.Quantity * direction
	after := item.CurrentStock + change
	if after < 0 {
		return StockCard{}, ErrNegativeStock
	}

	card := StockCard{
		ItemID:         input.ItemID,
		WarehouseID:    input.WarehouseID,
		Movement:       input.Movement,
		RefType:        input.RefType,
		RefID:          input.RefID,
		QuantityBefore: item.CurrentStock,
		QuantityChange: change,
		QuantityAfter:  after,
		Note:           input.Note,
		ActorID:        input.ActorID,
		TransactionAt:  at,
	}
	id, err := tx.InsertCard(ctx, card)
	if err != nil {
		return StockCard{}, err
	}
	card.ID = id

	if err := tx.UpdateItemStock(ctx, input.ItemID, after); err != nil {
		return StockCard{}, err
	}
	return card, nil
}

// Post appends a standalone ledger entry in its own transaction.
func (s *Service) Post(ctx context.Context, input PostInput) (StockCard, error) {
	if input.ItemID == 0 {
		return StockCard{}, fmt.Errorf("stock: item required: %w", shared.ErrValidation)
	}
	now := s.clock()
	var card StockCard
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx LedgerTx) error {
		posted, err := PostEntry(ctx, tx, input, now)
		if err != nil {
			return err
		}
		card = posted
		return nil
	})
	if err != nil {
		return StockCard{}, err
	}
	s.afterPost(ctx, card)
	return card, nil
}

// PostAdjustment posts a signed manual correction, typically from a stock
// opname recount.
func (s *Service) PostAdjustment(ctx context.Context, input AdjustmentInput) (StockCard, error) {
	if input.Quantity == 0 {
		return StockCard{}, ErrInvalidQuantity
	}
	movement := MovementAdjustmentIn
	qty := input.Quantity
	if qty < 0 {
		movement = MovementAdjustmentOut
		qty = -qty
	}
	return s.Post(ctx, PostInput{
		ItemID:      input.ItemID,
		WarehouseID: input.WarehouseID,
		Quantity:    qty,
		Movement:    movement,
		RefType:     "ADJUSTMENT",
		Note:        input.Note,
		ActorID:     input.ActorID,
	})
}

// StockCardList lists ledger entries for one item.
func (s *Service) StockCardList(ctx context.Context, filter CardFilter) ([]StockCard, error) {
	if filter.ItemID == 0 {
		return nil, fmt.Errorf("stock: item required: %w", shared.ErrValidation)
	}
	return s.repo.StockCard(ctx, filter)
}

// SnapshotFor returns the cached current-stock view for an item, loading it
// from storage on a miss.
func (s *Service) SnapshotFor(ctx context.Context, itemID int64) (Snapshot, error) {
	loader := func(ctx context.Context) (Snapshot, error) {
		item, err := s.repo.GetItem(ctx, itemID)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{ItemID: item.ID, SKU: item.SKU, Name: item.Name, QtyOnHand: item.CurrentStock, AsOf: s.clock()}, nil
	}
	if s.cache == nil {
		return loader(ctx)
	}
	return s.cache.Get(ctx, itemID, loader)
}

// RefreshSnapshot drops and rewarms the cached view for the given items.
// Called by the background worker after a ledger-touching commit.
func (s *Service) RefreshSnapshot(ctx context.Context, itemIDs ...int64) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.Invalidate(ctx, itemIDs...); err != nil {
		return err
	}
	for _, id := range itemIDs {
		if _, err := s.SnapshotFor(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) afterPost(ctx context.Context, card StockCard) {
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  card.ActorID,
			Action:   fmt.Sprintf("stock:%s", card.Movement),
			Entity:   "stock_card",
			EntityID: fmt.Sprintf("%d", card.ID),
			Meta: map[string]any{
				"item_id":      card.ItemID,
				"qty_change":   card.QuantityChange,
				"qty_after":    card.QuantityAfter,
				"ref_type":     card.RefType,
				"ref_id":       card.RefID,
				"warehouse_id": card.WarehouseID,
			},
		})
	}
	if s.integration != nil {
		_ = s.integration.HandleStockPosted(ctx, StockPostedEvent{
			ItemIDs:  []int64{card.ItemID},
			RefType:  card.RefType,
			RefID:    card.RefID,
			PostedAt: card.TransactionAt,
		})
	}
}

package stock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	items  map[int64]Item
	cards  []StockCard
	nextID int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo(items ...Item) *memoryRepo {
	repo := &memoryRepo{items: make(map[int64]Item)}
	for _, item := range items {
		repo.items[item.ID] = item
	}
	return repo
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetItem(ctx context.Context, itemID int64) (Item, error) {
	item, ok := r.items[itemID]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) StockCard(ctx context.Context, filter CardFilter) ([]StockCard, error) {
	var cards []StockCard
	for _, card := range r.cards {
		if card.ItemID == filter.ItemID {
			cards = append(cards, card)
		}
	}
	return cards, nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	return tx.repo.GetItem(ctx, itemID)
}

func (tx *memoryTx) UpdateItemStock(ctx context.Context, itemID, newStock int64) error {
	item := tx.repo.items[itemID]
	item.CurrentStock = newStock
	tx.repo.items[itemID] = item
	return nil
}

func (tx *memoryTx) InsertCard(ctx context.Context, card StockCard) (int64, error) {
	tx.repo.nextID++
	card.ID = tx.repo.nextID
	tx.repo.cards = append(tx.repo.cards, card)
	return card.ID, nil
}

func activeItem(id int64, stock int64) Item {
	return Item{ID: id, SKU: "SKU-1", Name: "Semen 50kg", UOM: "sak", CurrentStock: stock, IsActive: true}
}

func TestPostAdvancesBalanceChain(t *testing.T) {
	repo := newMemoryRepo(activeItem(1, 0))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	card, err := svc.Post(ctx, PostInput{ItemID: 1, Quantity: 10, Movement: MovementInbound, RefType: "INBOUND", RefID: 7})
	require.NoError(t, err)
	require.Equal(t, int64(0), card.QuantityBefore)
	require.Equal(t, int64(10), card.QuantityChange)
	require.Equal(t, int64(10), card.QuantityAfter)

	card, err = svc.Post(ctx, PostInput{ItemID: 1, Quantity: 4, Movement: MovementOutbound, RefType: "ISSUE"})
	require.NoError(t, err)
	require.Equal(t, int64(10), card.QuantityBefore)
	require.Equal(t, int64(-4), card.QuantityChange)
	require.Equal(t, int64(6), card.QuantityAfter)

	item, err := repo.GetItem(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(6), item.CurrentStock)

	cards, err := svc.StockCardList(ctx, CardFilter{ItemID: 1})
	require.NoError(t, err)
	require.Len(t, cards, 2)
	for i := 1; i < len(cards); i++ {
		require.Equal(t, cards[i-1].QuantityAfter, cards[i].QuantityBefore)
	}
	require.Equal(t, item.CurrentStock, cards[len(cards)-1].QuantityAfter)
}

func TestPostRejectsNegativeStock(t *testing.T) {
	repo := newMemoryRepo(activeItem(1, 3))
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{ItemID: 1, Quantity: 5, Movement: MovementOutbound})
	require.ErrorIs(t, err, ErrNegativeStock)

	require.Empty(t, repo.cards)
	item, _ := repo.GetItem(context.Background(), 1)
	require.Equal(t, int64(3), item.CurrentStock)
}

func TestPostValidation(t *testing.T) {
	repo := newMemoryRepo(activeItem(1, 0))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{ItemID: 1, Quantity: 0, Movement: MovementInbound})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Post(ctx, PostInput{ItemID: 1, Quantity: 1, Movement: MovementType("TRANSFER")})
	require.ErrorIs(t, err, ErrUnknownMovement)

	_, err = svc.Post(ctx, PostInput{ItemID: 99, Quantity: 1, Movement: MovementInbound})
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestPostRejectsInactiveItem(t *testing.T) {
	item := activeItem(1, 0)
	item.IsActive = false
	repo := newMemoryRepo(item)
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{ItemID: 1, Quantity: 1, Movement: MovementInbound})
	require.ErrorIs(t, err, ErrItemInactive)
}

func TestPostAdjustmentSignsMovement(t *testing.T) {
	repo := newMemoryRepo(activeItem(1, 10))
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	card, err := svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 1, Quantity: -3, Note: "opname selisih"})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustmentOut, card.Movement)
	require.Equal(t, int64(7), card.QuantityAfter)

	card, err = svc.PostAdjustment(ctx, AdjustmentInput{ItemID: 1, Quantity: 2})
	require.NoError(t, err)
	require.Equal(t, MovementAdjustmentIn, card.Movement)
	require.Equal(t, int64(9), card.QuantityAfter)
}

type capturedEvents struct {
	events []StockPostedEvent
}

func (c *capturedEvents) HandleStockPosted(ctx context.Context, evt StockPostedEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestPostEmitsIntegrationEventAfterCommit(t *testing.T) {
	repo := newMemoryRepo(activeItem(1, 0))
	sink := &capturedEvents{}
	svc := NewService(repo, nil, nil, sink)

	_, err := svc.Post(context.Background(), PostInput{ItemID: 1, Quantity: 2, Movement: MovementInbound, RefType: "INBOUND", RefID: 5})
	require.NoError(t, err)
	require.Len(t, sink.events, 1)
	require.Equal(t, []int64{1}, sink.events[0].ItemIDs)
	require.Equal(t, "INBOUND", sink.events[0].RefType)
	require.WithinDuration(t, time.Now().UTC(), sink.events[0].PostedAt, time.Minute)
}

package stock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists stock data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger wraps an open transaction so other modules can post ledger
// entries inside it.
func NewTxLedger(tx pgx.Tx) LedgerTx {
	return &txLedger{tx: tx}
}

// WithTx executes the callback inside repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, LedgerTx) error) error {
	if r == nil {
		return errors.New("stock repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txLedger{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetItem fetches one item by id.
func (r *Repository) GetItem(ctx context.Context, itemID int64) (Item, error) {
	if r == nil {
		return Item{}, errors.New("stock repository not initialised")
	}
	var item Item
	err := r.pool.QueryRow(ctx, `SELECT id, sku, name, uom, current_stock, is_active, updated_at
FROM items WHERE id=$1`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.UOM, &item.CurrentStock, &item.IsActive, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

// StockCard lists ledger entries for one item ordered by transaction time
// then insertion order.
func (r *Repository) StockCard(ctx context.Context, filter CardFilter) ([]StockCard, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, COALESCE(warehouse_id,0), movement, ref_type, COALESCE(ref_id,0), quantity_before, quantity_change, quantity_after, note, COALESCE(actor_id,0), transaction_at
FROM stock_cards
WHERE item_id=$1 AND transaction_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY transaction_at ASC, id ASC
LIMIT $4`, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cards := []StockCard{}
	for rows.Next() {
		var card StockCard
		if err := rows.Scan(&card.ID, &card.ItemID, &card.WarehouseID, &card.Movement, &card.RefType, &card.RefID, &card.QuantityBefore, &card.QuantityChange, &card.QuantityAfter, &card.Note, &card.ActorID, &card.TransactionAt); err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return cards, nil
}

func (tx *txLedger) GetItemForUpdate(ctx context.Context, itemID int64) (Item, error) {
	var item Item
	err := tx.tx.QueryRow(ctx, `SELECT id, sku, name, uom, current_stock, is_active, updated_at
FROM items WHERE id=$1 FOR UPDATE`, itemID).
		Scan(&item.ID, &item.SKU, &item.Name, &item.UOM, &item.CurrentStock, &item.IsActive, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (tx *txLedger) UpdateItemStock(ctx context.Context, itemID, newStock int64) error {
	_, err := tx.tx.Exec(ctx, `UPDATE items SET current_stock=$1, updated_at=NOW() WHERE id=$2`, newStock, itemID)
	return err
}

func (tx *txLedger) InsertCard(ctx context.Context, card StockCard) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO stock_cards (item_id, warehouse_id, movement, ref_type, ref_id, quantity_before, quantity_change, quantity_after, note, actor_id, transaction_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		card.ItemID, nullInt(card.WarehouseID), string(card.Movement), card.RefType, nullInt(card.RefID), card.QuantityBefore, card.QuantityChange, card.QuantityAfter, card.Note, nullInt(card.ActorID), card.TransactionAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

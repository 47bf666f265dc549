package returns

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txWriter struct {
	tx pgx.Tx
}

// NewTxWriter wraps an open transaction so other modules can create return
// drafts inside it.
func NewTxWriter(tx pgx.Tx) TxWriter {
	return &txWriter{tx: tx}
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxWriter) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txWriter{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetReturn returns the document and its lines.
func (r *Repository) GetReturn(ctx context.Context, id int64) (Return, []ReturnItem, error) {
	var ret Return
	err := r.pool.QueryRow(ctx, `SELECT id, code, COALESCE(purchase_request_id,0), COALESCE(inbound_id,0), vendor_id, reason, status, return_date, note, COALESCE(created_by,0), created_at
FROM returns WHERE id=$1`, id).
		Scan(&ret.ID, &ret.Code, &ret.PurchaseRequestID, &ret.InboundID, &ret.VendorID, &ret.Reason, &ret.Status, &ret.ReturnDate, &ret.Note, &ret.CreatedBy, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, nil, ErrNotFound
		}
		return Return{}, nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, return_id, item_id, quantity, unit_price, reason FROM return_items WHERE return_id=$1 ORDER BY id`, id)
	if err != nil {
		return Return{}, nil, err
	}
	defer rows.Close()
	var items []ReturnItem
	for rows.Next() {
		var item ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ItemID, &item.Quantity, &item.UnitPrice, &item.Reason); err != nil {
			return Return{}, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return Return{}, nil, err
	}
	return ret, items, nil
}

// UpdateStatus moves a return document to a new status.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE returns SET status=$1 WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReturns returns a page of documents plus the total count.
func (r *Repository) ListReturns(ctx context.Context, filter ListFilter) ([]Return, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM returns WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR vendor_id = $2)`, string(filter.Status), filter.VendorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, code, COALESCE(purchase_request_id,0), COALESCE(inbound_id,0), vendor_id, reason, status, return_date, note, COALESCE(created_by,0), created_at
FROM returns
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR vendor_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, string(filter.Status), filter.VendorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var rets []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.Code, &ret.PurchaseRequestID, &ret.InboundID, &ret.VendorID, &ret.Reason, &ret.Status, &ret.ReturnDate, &ret.Note, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, 0, err
		}
		rets = append(rets, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return rets, total, nil
}

func (tx *txWriter) CountInPeriod(ctx context.Context, year int, month time.Month) (int, error) {
	var count int
	err := tx.tx.QueryRow(ctx, `SELECT COUNT(*) FROM returns
WHERE EXTRACT(YEAR FROM created_at) = $1 AND EXTRACT(MONTH FROM created_at) = $2`, year, int(month)).Scan(&count)
	return count, err
}

func (tx *txWriter) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO returns (code, purchase_request_id, inbound_id, vendor_id, reason, status, return_date, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW()) RETURNING id`,
		ret.Code, nullInt(ret.PurchaseRequestID), nullInt(ret.InboundID), ret.VendorID, string(ret.Reason), string(ret.Status), ret.ReturnDate, ret.Note, nullInt(ret.CreatedBy)).Scan(&id)
	return id, err
}

func (tx *txWriter) InsertReturnItem(ctx context.Context, item ReturnItem) error {
	_, err := tx.tx.Exec(ctx, `INSERT INTO return_items (return_id, item_id, quantity, unit_price, reason) VALUES ($1,$2,$3,$4,$5)`,
		item.ReturnID, item.ItemID, item.Quantity, item.UnitPrice, item.Reason)
	return err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

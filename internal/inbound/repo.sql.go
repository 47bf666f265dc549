package inbound

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/returns"
	"github.com/lumbung-erp/lumbung-erp/internal/stock"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// txRepo satisfies TxRepository over one open transaction. The embedded
// ledger and return writers share the same pgx.Tx so every write in a
// verification or resolution pass commits together.
type txRepo struct {
	stock.LedgerTx
	returns.TxWriter
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	repo := &txRepo{LedgerTx: stock.NewTxLedger(tx), TxWriter: returns.NewTxWriter(tx), tx: tx}
	if err := fn(ctx, repo); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const inboundColumns = `id, grn_number, COALESCE(purchase_request_id,0), vendor_id, COALESCE(warehouse_id,0), COALESCE(parent_id,0), status, receive_date, COALESCE(verified_by,0), COALESCE(verified_at,'0001-01-01'), COALESCE(proof_document_url,''), note, created_at`

func scanInbound(row pgx.Row) (Inbound, error) {
	var in Inbound
	err := row.Scan(&in.ID, &in.GRNNumber, &in.PurchaseRequestID, &in.VendorID, &in.WarehouseID, &in.ParentID,
		&in.Status, &in.ReceiveDate, &in.VerifiedBy, &in.VerifiedAt, &in.ProofDocumentURL, &in.Note, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Inbound{}, ErrNotFound
		}
		return Inbound{}, err
	}
	return in, nil
}

const lineColumns = `id, inbound_id, item_id, expected_qty, received_qty, accepted_qty, rejected_qty, qty_added_to_stock, discrepancy_type, resolution, line_status, note`

func scanLine(row pgx.Row) (InboundItem, error) {
	var line InboundItem
	var resolution string
	err := row.Scan(&line.ID, &line.InboundID, &line.ItemID, &line.ExpectedQty, &line.ReceivedQty, &line.AcceptedQty,
		&line.RejectedQty, &line.QtyAddedToStock, &line.Discrepancy, &resolution, &line.LineStatus, &line.Reason)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return InboundItem{}, ErrNotFound
		}
		return InboundItem{}, err
	}
	line.Resolution, err = ParseResolution(resolution)
	if err != nil {
		return InboundItem{}, err
	}
	return line, nil
}

// GetInbound returns the header and its lines.
func (r *Repository) GetInbound(ctx context.Context, inboundID int64) (Inbound, []InboundItem, error) {
	in, err := scanInbound(r.pool.QueryRow(ctx, `SELECT `+inboundColumns+` FROM inbounds WHERE id=$1`, inboundID))
	if err != nil {
		return Inbound{}, nil, err
	}
	lines, err := queryLines(ctx, r.pool, inboundID)
	if err != nil {
		return Inbound{}, nil, err
	}
	return in, lines, nil
}

// GetLine returns one receipt line.
func (r *Repository) GetLine(ctx context.Context, lineID int64) (InboundItem, error) {
	return scanLine(r.pool.QueryRow(ctx, `SELECT `+lineColumns+` FROM inbound_items WHERE id=$1`, lineID))
}

// ListInbounds returns a page of headers plus the total count.
func (r *Repository) ListInbounds(ctx context.Context, filter ListFilter) ([]Inbound, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inbounds WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR vendor_id = $2)`,
		string(filter.Status), filter.VendorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+inboundColumns+` FROM inbounds
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR vendor_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, string(filter.Status), filter.VendorID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []Inbound
	for rows.Next() {
		in, err := scanInbound(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, in)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListChildren lists replacement inbounds by parent id, oldest first so the
// letter suffixes read in order.
func (r *Repository) ListChildren(ctx context.Context, parentID int64) ([]Inbound, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+inboundColumns+` FROM inbounds WHERE parent_id=$1 ORDER BY id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Inbound
	for rows.Next() {
		in, err := scanInbound(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, in)
	}
	return items, rows.Err()
}

// SetProofDocument stores the opaque proof URL.
func (r *Repository) SetProofDocument(ctx context.Context, inboundID int64, url string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inbounds SET proof_document_url=$1 WHERE id=$2`, url, inboundID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) GetInboundForUpdate(ctx context.Context, inboundID int64) (Inbound, error) {
	return scanInbound(t.tx.QueryRow(ctx, `SELECT `+inboundColumns+` FROM inbounds WHERE id=$1 FOR UPDATE`, inboundID))
}

func (t *txRepo) GetLines(ctx context.Context, inboundID int64) ([]InboundItem, error) {
	return queryLines(ctx, t.tx, inboundID)
}

func (t *txRepo) GetLineForUpdate(ctx context.Context, lineID int64) (InboundItem, error) {
	return scanLine(t.tx.QueryRow(ctx, `SELECT `+lineColumns+` FROM inbound_items WHERE id=$1 FOR UPDATE`, lineID))
}

func (t *txRepo) MarkVerified(ctx context.Context, inboundID, verifierID int64, at time.Time, note string, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inbounds
SET status=$1, verified_by=$2, verified_at=$3, note=CASE WHEN $4 <> '' THEN $4 ELSE note END
WHERE id=$5 AND status=$6`,
		string(status), verifierID, at, note, inboundID, string(StatusPendingVerification))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidState
	}
	return nil
}

func (t *txRepo) UpdateLine(ctx context.Context, line InboundItem) error {
	tag, err := t.tx.Exec(ctx, `UPDATE inbound_items
SET received_qty=$1, accepted_qty=$2, rejected_qty=$3, qty_added_to_stock=$4, discrepancy_type=$5, resolution=$6, line_status=$7, note=$8
WHERE id=$9`,
		line.ReceivedQty, line.AcceptedQty, line.RejectedQty, line.QtyAddedToStock,
		string(line.Discrepancy), line.Resolution.StorageValue(), string(line.LineStatus), line.Reason, line.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) InsertInbound(ctx context.Context, in Inbound) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inbounds (grn_number, purchase_request_id, vendor_id, warehouse_id, parent_id, status, receive_date, note, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING id`,
		in.GRNNumber, nullInt(in.PurchaseRequestID), in.VendorID, nullInt(in.WarehouseID), nullInt(in.ParentID),
		string(in.Status), in.ReceiveDate, in.Note).Scan(&id)
	return id, err
}

func (t *txRepo) InsertLine(ctx context.Context, line InboundItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO inbound_items (inbound_id, item_id, expected_qty, received_qty, accepted_qty, rejected_qty, qty_added_to_stock, discrepancy_type, resolution, line_status, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		line.InboundID, line.ItemID, line.ExpectedQty, line.ReceivedQty, line.AcceptedQty, line.RejectedQty,
		line.QtyAddedToStock, string(line.Discrepancy), line.Resolution.StorageValue(), string(line.LineStatus), line.Reason).Scan(&id)
	return id, err
}

func (t *txRepo) CountChildren(ctx context.Context, parentID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM inbounds WHERE parent_id=$1`, parentID).Scan(&count)
	return count, err
}

func (t *txRepo) CountInPeriodGRN(ctx context.Context, year int, month time.Month) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM inbounds
WHERE EXTRACT(YEAR FROM created_at) = $1 AND EXTRACT(MONTH FROM created_at) = $2`, year, int(month)).Scan(&count)
	return count, err
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, inboundID int64) ([]InboundItem, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM inbound_items WHERE inbound_id=$1 ORDER BY id`, inboundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []InboundItem
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

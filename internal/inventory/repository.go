package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/platform/db"
	"github.com/meridian-erp/meridian/internal/shared"
)

// Repository persists goods issues, transfers and adjustments.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error
	NextDocNumber(ctx context.Context, ex db.DBTX, prefix string) (string, error)

	CreateIssue(ctx context.Context, ex db.DBTX, is Issue) (Issue, error)
	GetIssue(ctx context.Context, id int64) (Issue, error)
	ListIssues(ctx context.Context, filters Filters) ([]Issue, int, error)
	SetIssueStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteIssue(ctx context.Context, ex db.DBTX, id int64) error

	CreateTransfer(ctx context.Context, ex db.DBTX, tr Transfer) (Transfer, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListTransfers(ctx context.Context, filters Filters) ([]Transfer, int, error)
	SetTransferStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteTransfer(ctx context.Context, ex db.DBTX, id int64) error

	CreateAdjustment(ctx context.Context, ex db.DBTX, adj Adjustment) (Adjustment, error)
	GetAdjustment(ctx context.Context, id int64) (Adjustment, error)
	ListAdjustments(ctx context.Context, filters Filters) ([]Adjustment, int, error)
	SetAdjustmentStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error
	DeleteAdjustment(ctx context.Context, ex db.DBTX, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ex(ex db.DBTX) db.DBTX {
	if ex != nil {
		return ex
	}
	return r.pool
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, db.DBTX) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

func (r *repository) NextDocNumber(ctx context.Context, ex db.DBTX, prefix string) (string, error) {
	var n int64
	if err := r.ex(ex).QueryRow(ctx, `SELECT nextval('doc_number_seq')`).Scan(&n); err != nil {
		return "", fmt.Errorf("inventory: next doc number: %w", err)
	}
	return fmt.Sprintf("%s-%06d", prefix, n), nil
}

func (r *repository) setStatus(ctx context.Context, ex db.DBTX, table, label string, id int64, from, to ledger.Status) error {
	tag, err := r.ex(ex).Exec(ctx,
		`UPDATE `+table+` SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return fmt.Errorf("inventory: update %s status: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.ex(ex).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
		}
		return fmt.Errorf("%s %d changed concurrently: %w", label, id, shared.ErrInvalidTransition)
	}
	return nil
}

func (r *repository) deleteDoc(ctx context.Context, ex db.DBTX, table, label string, id int64) error {
	tag, err := r.ex(ex).Exec(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("inventory: delete %s: %w", label, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", label, id, shared.ErrNotFound)
	}
	return nil
}

func (r *repository) CreateIssue(ctx context.Context, ex db.DBTX, is Issue) (Issue, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO goods_issues (doc_number, warehouse_id, status, reason, issue_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		is.DocNumber, is.WarehouseID, is.Status, is.Reason, is.IssueDate, is.CreatedBy,
	).Scan(&is.ID, &is.CreatedAt, &is.UpdatedAt)
	if err != nil {
		return Issue{}, fmt.Errorf("inventory: insert issue: %w", err)
	}
	for i := range is.Lines {
		l := &is.Lines[i]
		l.IssueID = is.ID
		err := run.QueryRow(ctx,
			`INSERT INTO goods_issue_lines (issue_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
			l.IssueID, l.ProductID, l.Qty,
		).Scan(&l.ID)
		if err != nil {
			return Issue{}, fmt.Errorf("inventory: insert issue line: %w", err)
		}
	}
	return is, nil
}

func (r *repository) GetIssue(ctx context.Context, id int64) (Issue, error) {
	var is Issue
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, warehouse_id, status, reason, issue_date, created_by, created_at, updated_at
		 FROM goods_issues WHERE id = $1`, id,
	).Scan(&is.ID, &is.DocNumber, &is.WarehouseID, &is.Status, &is.Reason,
		&is.IssueDate, &is.CreatedBy, &is.CreatedAt, &is.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Issue{}, fmt.Errorf("goods issue %d: %w", id, shared.ErrNotFound)
		}
		return Issue{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, issue_id, product_id, qty FROM goods_issue_lines WHERE issue_id = $1 ORDER BY id`, id)
	if err != nil {
		return Issue{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l IssueLine
		if err := rows.Scan(&l.ID, &l.IssueID, &l.ProductID, &l.Qty); err != nil {
			return Issue{}, err
		}
		is.Lines = append(is.Lines, l)
	}
	return is, rows.Err()
}

func (r *repository) ListIssues(ctx context.Context, filters Filters) ([]Issue, int, error) {
	query := `SELECT id, doc_number, warehouse_id, status, reason, issue_date, created_at FROM goods_issues WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM goods_issues WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.WarehouseID != 0 {
		argCount++
		clause := ` AND warehouse_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.WarehouseID)
	}
	if filters.Status != "" {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var issues []Issue
	for rows.Next() {
		var is Issue
		if err := rows.Scan(&is.ID, &is.DocNumber, &is.WarehouseID, &is.Status, &is.Reason, &is.IssueDate, &is.CreatedAt); err != nil {
			return nil, 0, err
		}
		issues = append(issues, is)
	}
	return issues, total, rows.Err()
}

func (r *repository) SetIssueStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "goods_issues", "goods issue", id, from, to)
}

func (r *repository) DeleteIssue(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "goods_issues", "goods issue", id)
}

func (r *repository) CreateTransfer(ctx context.Context, ex db.DBTX, tr Transfer) (Transfer, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO inventory_transfers (doc_number, src_warehouse_id, dst_warehouse_id, status, notes, transfer_date, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		tr.DocNumber, tr.SrcWarehouseID, tr.DstWarehouseID, tr.Status, tr.Notes, tr.TransferDate, tr.CreatedBy,
	).Scan(&tr.ID, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return Transfer{}, fmt.Errorf("inventory: insert transfer: %w", err)
	}
	for i := range tr.Lines {
		l := &tr.Lines[i]
		l.TransferID = tr.ID
		err := run.QueryRow(ctx,
			`INSERT INTO inventory_transfer_lines (transfer_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
			l.TransferID, l.ProductID, l.Qty,
		).Scan(&l.ID)
		if err != nil {
			return Transfer{}, fmt.Errorf("inventory: insert transfer line: %w", err)
		}
	}
	return tr, nil
}

func (r *repository) GetTransfer(ctx context.Context, id int64) (Transfer, error) {
	var tr Transfer
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, src_warehouse_id, dst_warehouse_id, status, notes, transfer_date, created_by, created_at, updated_at
		 FROM inventory_transfers WHERE id = $1`, id,
	).Scan(&tr.ID, &tr.DocNumber, &tr.SrcWarehouseID, &tr.DstWarehouseID, &tr.Status,
		&tr.Notes, &tr.TransferDate, &tr.CreatedBy, &tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, fmt.Errorf("inventory transfer %d: %w", id, shared.ErrNotFound)
		}
		return Transfer{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, transfer_id, product_id, qty FROM inventory_transfer_lines WHERE transfer_id = $1 ORDER BY id`, id)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l TransferLine
		if err := rows.Scan(&l.ID, &l.TransferID, &l.ProductID, &l.Qty); err != nil {
			return Transfer{}, err
		}
		tr.Lines = append(tr.Lines, l)
	}
	return tr, rows.Err()
}

func (r *repository) ListTransfers(ctx context.Context, filters Filters) ([]Transfer, int, error) {
	query := `SELECT id, doc_number, src_warehouse_id, dst_warehouse_id, status, transfer_date, created_at FROM inventory_transfers WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM inventory_transfers WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.WarehouseID != 0 {
		argCount++
		clause := fmt.Sprintf(` AND (src_warehouse_id = $%d OR dst_warehouse_id = $%d)`, argCount, argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.WarehouseID)
	}
	if filters.Status != "" {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var transfers []Transfer
	for rows.Next() {
		var tr Transfer
		if err := rows.Scan(&tr.ID, &tr.DocNumber, &tr.SrcWarehouseID, &tr.DstWarehouseID, &tr.Status, &tr.TransferDate, &tr.CreatedAt); err != nil {
			return nil, 0, err
		}
		transfers = append(transfers, tr)
	}
	return transfers, total, rows.Err()
}

func (r *repository) SetTransferStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "inventory_transfers", "inventory transfer", id, from, to)
}

func (r *repository) DeleteTransfer(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "inventory_transfers", "inventory transfer", id)
}

func (r *repository) CreateAdjustment(ctx context.Context, ex db.DBTX, adj Adjustment) (Adjustment, error) {
	run := r.ex(ex)
	err := run.QueryRow(ctx,
		`INSERT INTO stock_adjustments (doc_number, warehouse_id, status, reason, created_by)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		adj.DocNumber, adj.WarehouseID, adj.Status, adj.Reason, adj.CreatedBy,
	).Scan(&adj.ID, &adj.CreatedAt, &adj.UpdatedAt)
	if err != nil {
		return Adjustment{}, fmt.Errorf("inventory: insert adjustment: %w", err)
	}
	for i := range adj.Lines {
		l := &adj.Lines[i]
		l.AdjustmentID = adj.ID
		err := run.QueryRow(ctx,
			`INSERT INTO stock_adjustment_lines (adjustment_id, product_id, qty) VALUES ($1, $2, $3) RETURNING id`,
			l.AdjustmentID, l.ProductID, l.Qty,
		).Scan(&l.ID)
		if err != nil {
			return Adjustment{}, fmt.Errorf("inventory: insert adjustment line: %w", err)
		}
	}
	return adj, nil
}

func (r *repository) GetAdjustment(ctx context.Context, id int64) (Adjustment, error) {
	var adj Adjustment
	err := r.pool.QueryRow(ctx,
		`SELECT id, doc_number, warehouse_id, status, reason, created_by, created_at, updated_at
		 FROM stock_adjustments WHERE id = $1`, id,
	).Scan(&adj.ID, &adj.DocNumber, &adj.WarehouseID, &adj.Status, &adj.Reason,
		&adj.CreatedBy, &adj.CreatedAt, &adj.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Adjustment{}, fmt.Errorf("stock adjustment %d: %w", id, shared.ErrNotFound)
		}
		return Adjustment{}, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, adjustment_id, product_id, qty FROM stock_adjustment_lines WHERE adjustment_id = $1 ORDER BY id`, id)
	if err != nil {
		return Adjustment{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l AdjustmentLine
		if err := rows.Scan(&l.ID, &l.AdjustmentID, &l.ProductID, &l.Qty); err != nil {
			return Adjustment{}, err
		}
		adj.Lines = append(adj.Lines, l)
	}
	return adj, rows.Err()
}

func (r *repository) ListAdjustments(ctx context.Context, filters Filters) ([]Adjustment, int, error) {
	query := `SELECT id, doc_number, warehouse_id, status, reason, created_at FROM stock_adjustments WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM stock_adjustments WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	if filters.WarehouseID != 0 {
		argCount++
		clause := ` AND warehouse_id = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.WarehouseID)
	}
	if filters.Status != "" {
		argCount++
		clause := ` AND status = $` + strconv.Itoa(argCount)
		query += clause
		countQuery += clause
		args = append(args, filters.Status)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(` ORDER BY id DESC LIMIT %d OFFSET %d`, limit, filters.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var adjustments []Adjustment
	for rows.Next() {
		var adj Adjustment
		if err := rows.Scan(&adj.ID, &adj.DocNumber, &adj.WarehouseID, &adj.Status, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, 0, err
		}
		adjustments = append(adjustments, adj)
	}
	return adjustments, total, rows.Err()
}

func (r *repository) SetAdjustmentStatus(ctx context.Context, ex db.DBTX, id int64, from, to ledger.Status) error {
	return r.setStatus(ctx, ex, "stock_adjustments", "stock adjustment", id, from, to)
}

func (r *repository) DeleteAdjustment(ctx context.Context, ex db.DBTX, id int64) error {
	return r.deleteDoc(ctx, ex, "stock_adjustments", "stock adjustment", id)
}

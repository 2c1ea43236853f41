package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads audit_logs.
type Repository interface {
	Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	query := `SELECT id, actor_id, action, entity, entity_id, meta, occurred_at FROM audit_logs WHERE 1=1`
	args := []interface{}{}
	argCount := 0

	add := func(clause string, val interface{}) {
		argCount++
		query += ` AND ` + clause + ` $` + strconv.Itoa(argCount)
		args = append(args, val)
	}
	if filters.ActorID != 0 {
		add(`actor_id =`, filters.ActorID)
	}
	if filters.Action != "" {
		add(`action =`, filters.Action)
	}
	if filters.Entity != "" {
		add(`entity =`, filters.Entity)
	}
	if filters.EntityID != "" {
		add(`entity_id =`, filters.EntityID)
	}
	if !filters.From.IsZero() {
		add(`occurred_at >=`, filters.From)
	}
	if !filters.To.IsZero() {
		add(`occurred_at <=`, filters.To)
	}
	query += fmt.Sprintf(` ORDER BY occurred_at DESC, id DESC LIMIT %d OFFSET %d`, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.ID, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta, &row.At); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

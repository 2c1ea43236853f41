package audit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	rows []TimelineRow
}

func (m *memoryRepo) Timeline(_ context.Context, filters TimelineFilters, limit, offset int) ([]TimelineRow, error) {
	var matched []TimelineRow
	for _, row := range m.rows {
		if filters.ActorID != 0 && row.ActorID != filters.ActorID {
			continue
		}
		if filters.Action != "" && row.Action != filters.Action {
			continue
		}
		if filters.Entity != "" && row.Entity != filters.Entity {
			continue
		}
		if filters.EntityID != "" && row.EntityID != filters.EntityID {
			continue
		}
		if !filters.From.IsZero() && row.At.Before(filters.From) {
			continue
		}
		if !filters.To.IsZero() && row.At.After(filters.To) {
			continue
		}
		matched = append(matched, row)
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func newTestService(rows []TimelineRow) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(&memoryRepo{rows: rows}, logger)
}

func seedRows(n int) []TimelineRow {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]TimelineRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, TimelineRow{
			ID:       int64(n - i),
			ActorID:  int64(i%2 + 1),
			Action:   "stock.posted",
			Entity:   "GOODS_ISSUE",
			EntityID: "1",
			At:       base.Add(-time.Duration(i) * time.Minute),
		})
	}
	return rows
}

func TestTimelinePaging(t *testing.T) {
	svc := newTestService(seedRows(25))

	first, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, first.Rows, 10)
	assert.True(t, first.Paging.HasNext)
	assert.Equal(t, 2, first.Paging.NextPage)
	assert.Zero(t, first.Paging.PrevPage)

	last, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, last.Rows, 5)
	assert.False(t, last.Paging.HasNext)
	assert.Equal(t, 2, last.Paging.PrevPage)
	assert.Zero(t, last.Paging.NextPage)
}

func TestTimelinePageSizeClamped(t *testing.T) {
	svc := newTestService(seedRows(60))

	res, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 50)
	assert.Equal(t, 50, res.Paging.PageSize)
	assert.Equal(t, 1, res.Paging.Page)

	res, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.Len(t, res.Rows, 20)
	assert.Equal(t, 20, res.Paging.PageSize)
}

func TestTimelineFilters(t *testing.T) {
	rows := seedRows(4)
	rows[1].ActorID = 42
	rows[2].Action = "stock.retracted"
	svc := newTestService(rows)

	res, err := svc.Timeline(context.Background(), TimelineFilters{ActorID: 42})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, int64(42), res.Rows[0].ActorID)

	res, err = svc.Timeline(context.Background(), TimelineFilters{Action: "stock.retracted"})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "stock.retracted", res.Rows[0].Action)
}

func TestTimelineEmpty(t *testing.T) {
	svc := newTestService(nil)

	res, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Empty(t, res.Rows)
	assert.False(t, res.Paging.HasNext)
}

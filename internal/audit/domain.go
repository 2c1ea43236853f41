// Package audit serves the read side of the audit trail. Every posting,
// retraction and deletion recorded by the engine lands in audit_logs; this
// package answers "why did stock change" after a retraction removed the
// ledger rows themselves.
package audit

import "time"

// TimelineRow is one audit event.
type TimelineRow struct {
	ID       int64          `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Meta     map[string]any `json:"meta"`
	At       time.Time      `json:"at"`
}

// TimelineFilters narrows the audit timeline.
type TimelineFilters struct {
	ActorID  int64
	Action   string
	Entity   string
	EntityID string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// PagingInfo reports cursorless paging state.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result bundles timeline rows with paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

package ledger

import (
	"fmt"

	"github.com/meridian-erp/meridian/internal/shared"
)

// Common status values shared across machines.
const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusInTransit Status = "IN_TRANSIT"
	StatusDelivered Status = "DELIVERED"
	StatusReceived  Status = "RECEIVED"
	StatusIssued    Status = "ISSUED"
	StatusCompleted Status = "COMPLETED"
	StatusApproved  Status = "APPROVED"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"

	StatusSubmitted  Status = "SUBMITTED"
	StatusRejected   Status = "REJECTED"
	StatusConverted  Status = "CONVERTED"
	StatusProcessing Status = "PROCESSING"
	StatusClosed     Status = "CLOSED"
	StatusPosted     Status = "POSTED"
	StatusPaid       Status = "PAID"
	StatusVoid       Status = "VOID"
	StatusApproval   Status = "APPROVAL"
)

// Machine declares the valid statuses and transitions of one document
// variant. Trigger is the single status whose entry causes ledger posting;
// billing documents carry an empty Trigger and never post.
type Machine struct {
	Doc         DocType
	Initial     Status
	Trigger     Status
	Transitions map[Status][]Status
}

// machines is the transaction catalogue. Reaching the trigger from any other
// declared status posts; leaving it retracts.
var machines = map[DocType]Machine{
	DocTypeDelivery: {
		Doc:     DocTypeDelivery,
		Initial: StatusDraft,
		Trigger: StatusDelivered,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusConfirmed, StatusCancelled},
			StatusConfirmed: {StatusInTransit, StatusDraft, StatusCancelled},
			StatusInTransit: {StatusDelivered, StatusConfirmed, StatusCancelled},
			StatusDelivered: {StatusInTransit, StatusCancelled},
		},
	},
	DocTypeGoodsReceipt: {
		Doc:     DocTypeGoodsReceipt,
		Initial: StatusDraft,
		Trigger: StatusReceived,
		Transitions: map[Status][]Status{
			StatusDraft:    {StatusReceived, StatusCancelled},
			StatusReceived: {StatusDraft, StatusCancelled},
		},
	},
	DocTypeGoodsReceiptPO: {
		Doc:     DocTypeGoodsReceiptPO,
		Initial: StatusDraft,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusCompleted, StatusCancelled},
			StatusCompleted: {StatusDraft, StatusCancelled},
		},
	},
	DocTypeGoodsIssue: {
		Doc:     DocTypeGoodsIssue,
		Initial: StatusDraft,
		Trigger: StatusIssued,
		Transitions: map[Status][]Status{
			StatusDraft:  {StatusIssued, StatusCancelled},
			StatusIssued: {StatusDraft, StatusCancelled},
		},
	},
	DocTypeSalesReturn: {
		Doc:     DocTypeSalesReturn,
		Initial: StatusPending,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusPending:   {StatusCompleted, StatusCancelled},
			StatusCompleted: {StatusPending, StatusCancelled},
		},
	},
	DocTypePurchaseReturn: {
		Doc:     DocTypePurchaseReturn,
		Initial: StatusPending,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusPending:   {StatusCompleted, StatusCancelled},
			StatusCompleted: {StatusPending, StatusCancelled},
		},
	},
	DocTypeTransfer: {
		Doc:     DocTypeTransfer,
		Initial: StatusDraft,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusInTransit, StatusCompleted, StatusCancelled},
			StatusInTransit: {StatusCompleted, StatusDraft, StatusCancelled},
			StatusCompleted: {StatusInTransit, StatusCancelled},
		},
	},
	DocTypeProductionReceipt: {
		Doc:     DocTypeProductionReceipt,
		Initial: StatusDraft,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusCompleted, StatusCancelled},
			StatusCompleted: {StatusDraft, StatusCancelled},
		},
	},
	DocTypeStockAdjustment: {
		Doc:     DocTypeStockAdjustment,
		Initial: StatusDraft,
		Trigger: StatusApproved,
		Transitions: map[Status][]Status{
			StatusDraft:    {StatusApproved, StatusCancelled},
			StatusApproved: {StatusDraft, StatusCancelled},
		},
	},
	DocTypeQuickSale: {
		Doc:     DocTypeQuickSale,
		Initial: StatusDraft,
		Trigger: StatusCompleted,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusCompleted, StatusCancelled},
			StatusCompleted: {StatusDraft, StatusCancelled},
		},
	},

	// Billing documents are declared without a trigger so "never posts" is an
	// explicit property rather than an absence.
	DocTypeSalesQuotation: {
		Doc:     DocTypeSalesQuotation,
		Initial: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:     {StatusSubmitted, StatusCancelled},
			StatusSubmitted: {StatusApproved, StatusRejected},
			StatusApproved:  {StatusConverted, StatusCancelled},
		},
	},
	DocTypeSalesOrder: {
		Doc:     DocTypeSalesOrder,
		Initial: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:      {StatusConfirmed, StatusCancelled},
			StatusConfirmed:  {StatusProcessing, StatusCancelled},
			StatusProcessing: {StatusClosed, StatusCancelled},
		},
	},
	DocTypeSalesInvoice: {
		Doc:     DocTypeSalesInvoice,
		Initial: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:  {StatusPosted, StatusVoid},
			StatusPosted: {StatusPaid, StatusVoid},
		},
	},
	DocTypePurchaseOrder: {
		Doc:     DocTypePurchaseOrder,
		Initial: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:    {StatusApproval, StatusCancelled},
			StatusApproval: {StatusApproved, StatusDraft, StatusCancelled},
			StatusApproved: {StatusClosed, StatusCancelled},
		},
	},
	DocTypeAPInvoice: {
		Doc:     DocTypeAPInvoice,
		Initial: StatusDraft,
		Transitions: map[Status][]Status{
			StatusDraft:  {StatusPosted, StatusVoid},
			StatusPosted: {StatusPaid, StatusVoid},
		},
	},
}

// MachineFor returns the state machine declared for a document type.
func MachineFor(t DocType) (Machine, error) {
	m, ok := machines[t]
	if !ok {
		return Machine{}, fmt.Errorf("ledger: unknown document type %q: %w", t, shared.ErrNotFound)
	}
	return m, nil
}

// StockAffecting reports whether the variant ever posts to the ledger.
func (m Machine) StockAffecting() bool {
	return m.Trigger != ""
}

// Has reports whether s is a declared status of the machine.
func (m Machine) Has(s Status) bool {
	if _, ok := m.Transitions[s]; ok {
		return true
	}
	for _, targets := range m.Transitions {
		for _, t := range targets {
			if t == s {
				return true
			}
		}
	}
	return false
}

// Validate rejects any status change not present in the transition table.
func (m Machine) Validate(from, to Status) error {
	for _, t := range m.Transitions[from] {
		if t == to {
			return nil
		}
	}
	return fmt.Errorf("ledger: %s cannot move %s -> %s: %w", m.Doc, from, to, shared.ErrInvalidTransition)
}

// IsPosting reports whether the transition enters the trigger status.
func (m Machine) IsPosting(from, to Status) bool {
	return m.Trigger != "" && to == m.Trigger && from != m.Trigger
}

// IsRetraction reports whether the transition leaves the trigger status.
func (m Machine) IsRetraction(from, to Status) bool {
	return m.Trigger != "" && from == m.Trigger && to != m.Trigger
}

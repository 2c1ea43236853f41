package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/shared"
)

func TestTriggerCatalogue(t *testing.T) {
	cases := []struct {
		docType DocType
		trigger Status
	}{
		{DocTypeDelivery, StatusDelivered},
		{DocTypeGoodsReceipt, StatusReceived},
		{DocTypeGoodsReceiptPO, StatusCompleted},
		{DocTypeSalesReturn, StatusCompleted},
		{DocTypePurchaseReturn, StatusCompleted},
		{DocTypeGoodsIssue, StatusIssued},
		{DocTypeTransfer, StatusCompleted},
		{DocTypeProductionReceipt, StatusCompleted},
		{DocTypeStockAdjustment, StatusApproved},
		{DocTypeQuickSale, StatusCompleted},
	}
	for _, tc := range cases {
		m, err := MachineFor(tc.docType)
		require.NoError(t, err, tc.docType)
		require.Equal(t, tc.trigger, m.Trigger, tc.docType)
		require.True(t, m.StockAffecting(), tc.docType)
	}
}

func TestBillingDocumentsNeverPost(t *testing.T) {
	for _, docType := range []DocType{DocTypeSalesQuotation, DocTypeSalesOrder, DocTypeSalesInvoice, DocTypePurchaseOrder, DocTypeAPInvoice} {
		m, err := MachineFor(docType)
		require.NoError(t, err, docType)
		require.False(t, m.StockAffecting(), docType)
		for from, targets := range m.Transitions {
			for _, to := range targets {
				require.False(t, m.IsPosting(from, to), "%s %s->%s", docType, from, to)
				require.False(t, m.IsRetraction(from, to), "%s %s->%s", docType, from, to)
			}
		}
	}
}

func TestValidateRejectsUndeclaredTransition(t *testing.T) {
	m, err := MachineFor(DocTypeDelivery)
	require.NoError(t, err)

	require.NoError(t, m.Validate(StatusDraft, StatusConfirmed))
	require.NoError(t, m.Validate(StatusInTransit, StatusDelivered))

	err = m.Validate(StatusDraft, StatusDelivered)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	err = m.Validate(StatusCancelled, StatusDraft)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPostingAndRetractionEdges(t *testing.T) {
	m, err := MachineFor(DocTypeGoodsReceipt)
	require.NoError(t, err)

	require.True(t, m.IsPosting(StatusDraft, StatusReceived))
	require.False(t, m.IsPosting(StatusReceived, StatusReceived))
	require.True(t, m.IsRetraction(StatusReceived, StatusDraft))
	require.True(t, m.IsRetraction(StatusReceived, StatusCancelled))
	require.False(t, m.IsRetraction(StatusDraft, StatusCancelled))
}

func TestMachineForUnknownType(t *testing.T) {
	_, err := MachineFor(DocType("WISHLIST"))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

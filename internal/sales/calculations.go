package sales

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// CalculateLineTotals derives discount, tax and line total for one item.
func CalculateLineTotals(qty float64, unitPrice, discountPercent, taxPercent decimal.Decimal) (discountAmount, taxAmount, lineTotal decimal.Decimal) {
	gross := unitPrice.Mul(decimal.NewFromFloat(qty))
	discountAmount = gross.Mul(discountPercent.Div(hundred))
	net := gross.Sub(discountAmount)
	taxAmount = net.Mul(taxPercent.Div(hundred))
	lineTotal = net.Add(taxAmount)
	return
}

// DocumentTotals recomputes header totals from line items. Successor
// documents always recalculate; totals are never copied from a predecessor.
type DocumentTotals struct {
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Tax        decimal.Decimal
	GrandTotal decimal.Decimal
}

type totalsLine interface {
	amounts() (qty float64, unitPrice, discountPercent, taxPercent decimal.Decimal)
}

func (l QuotationLine) amounts() (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return l.Qty, l.UnitPrice, l.DiscountPercent, l.TaxPercent
}

func (l OrderLine) amounts() (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return l.Qty, l.UnitPrice, l.DiscountPercent, l.TaxPercent
}

func (l InvoiceLine) amounts() (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return l.Qty, l.UnitPrice, decimal.Zero, decimal.Zero
}

func (l ReturnLine) amounts() (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return l.Qty, l.UnitPrice, decimal.Zero, decimal.Zero
}

func (l QuickSaleLine) amounts() (float64, decimal.Decimal, decimal.Decimal, decimal.Decimal) {
	return l.Qty, l.UnitPrice, decimal.Zero, decimal.Zero
}

func totalsOf[L totalsLine](lines []L) DocumentTotals {
	var t DocumentTotals
	for _, l := range lines {
		qty, price, discPct, taxPct := l.amounts()
		discount, tax, lineTotal := CalculateLineTotals(qty, price, discPct, taxPct)
		t.Subtotal = t.Subtotal.Add(price.Mul(decimal.NewFromFloat(qty)))
		t.Discount = t.Discount.Add(discount)
		t.Tax = t.Tax.Add(tax)
		t.GrandTotal = t.GrandTotal.Add(lineTotal)
	}
	return t
}

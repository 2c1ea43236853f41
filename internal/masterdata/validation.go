package masterdata

import (
	"errors"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanText trims whitespace and normalizes the string to NFC so that
// visually identical codes entered on different platforms compare equal.
func cleanText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func normalizeProduct(p *Product) {
	p.Code = strings.ToUpper(cleanText(p.Code))
	p.Name = cleanText(p.Name)
	p.UOM = cleanText(p.UOM)
}

func normalizeWarehouse(w *Warehouse) {
	w.Code = strings.ToUpper(cleanText(w.Code))
	w.Name = cleanText(w.Name)
}

func normalizeSupplier(s *Supplier) {
	s.Code = strings.ToUpper(cleanText(s.Code))
	s.Name = cleanText(s.Name)
	s.Email = cleanText(s.Email)
	s.Phone = cleanText(s.Phone)
	s.Address = cleanText(s.Address)
}

func validateProduct(p Product) error {
	if p.Code == "" {
		return errors.New("product code is required")
	}
	if p.Name == "" {
		return errors.New("product name is required")
	}
	if p.UOM == "" {
		return errors.New("product unit of measure is required")
	}
	if p.PurchasePrice.IsNegative() || p.SellingPrice.IsNegative() {
		return errors.New("product prices must not be negative")
	}
	if p.MinimumStock < 0 {
		return errors.New("minimum stock must not be negative")
	}
	return nil
}

func validateWarehouse(w Warehouse) error {
	if w.Code == "" {
		return errors.New("warehouse code is required")
	}
	if w.Name == "" {
		return errors.New("warehouse name is required")
	}
	return nil
}

func validateSupplier(s Supplier) error {
	if s.Code == "" {
		return errors.New("supplier code is required")
	}
	if s.Name == "" {
		return errors.New("supplier name is required")
	}
	return nil
}

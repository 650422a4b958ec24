package entity

import (
	"fmt"
	"strings"
)

// Invoice represents one extracted vendor invoice entering a processing cycle
type Invoice struct {
	InvoiceID  string        `json:"invoiceId"`
	Vendor     string        `json:"vendor"`
	Fields     InvoiceFields `json:"fields"`
	Confidence float64       `json:"confidence"` // extraction confidence, 0..1
	RawText    string        `json:"rawText"`
}

// InvoiceFields holds the structured fields extracted from an invoice.
// Optional string fields are empty when the extractor did not find them.
type InvoiceFields struct {
	InvoiceNumber string     `json:"invoiceNumber"`
	InvoiceDate   string     `json:"invoiceDate"`
	ServiceDate   string     `json:"serviceDate,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	PONumber      string     `json:"poNumber,omitempty"`
	NetTotal      float64    `json:"netTotal"`
	TaxRate       float64    `json:"taxRate"`
	TaxTotal      float64    `json:"taxTotal"`
	GrossTotal    float64    `json:"grossTotal"`
	LineItems     []LineItem `json:"lineItems"`
	DiscountTerms string     `json:"discountTerms,omitempty"`
}

// LineItem represents a single invoice position
type LineItem struct {
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description,omitempty"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unitPrice"`
}

// PurchaseOrder is reference data an invoice may be matched against
type PurchaseOrder struct {
	PONumber  string      `json:"poNumber"`
	Vendor    string      `json:"vendor"`
	Date      string      `json:"date"`
	LineItems []OrderLine `json:"lineItems"`
}

// OrderLine is a SKU-level purchase order position
type OrderLine struct {
	SKU       string  `json:"sku"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unitPrice"`
}

// DeliveryNote is reference data describing goods delivered against a purchase order
type DeliveryNote struct {
	DNNumber  string          `json:"dnNumber"`
	Vendor    string          `json:"vendor"`
	PONumber  string          `json:"poNumber"`
	Date      string          `json:"date"`
	LineItems []DeliveredLine `json:"lineItems"`
}

// DeliveredLine is a SKU-level delivery note position
type DeliveredLine struct {
	SKU          string  `json:"sku"`
	QtyDelivered float64 `json:"qtyDelivered"`
}

// Validate checks the identity fields every processing cycle relies on
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.InvoiceID) == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrInvalidInvoice)
	}
	if strings.TrimSpace(inv.Vendor) == "" {
		return fmt.Errorf("%w: vendor is required", ErrInvalidInvoice)
	}
	if inv.Confidence < 0 || inv.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1, got %.2f", ErrInvalidInvoice, inv.Confidence)
	}
	return nil
}

// Clone returns a deep copy so normalization never mutates the input invoice
func (f InvoiceFields) Clone() InvoiceFields {
	out := f
	if f.LineItems != nil {
		out.LineItems = make([]LineItem, len(f.LineItems))
		copy(out.LineItems, f.LineItems)
	}
	return out
}

// SKUs returns the non-empty SKUs of all line items
func (f *InvoiceFields) SKUs() []string {
	skus := make([]string, 0, len(f.LineItems))
	for _, item := range f.LineItems {
		if item.SKU != "" {
			skus = append(skus, item.SKU)
		}
	}
	return skus
}

// HasSKU reports whether the order contains a line with the given SKU
func (po *PurchaseOrder) HasSKU(sku string) bool {
	for _, line := range po.LineItems {
		if line.SKU == sku {
			return true
		}
	}
	return false
}

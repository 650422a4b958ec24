package service

import (
	"testing"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestMatchPurchaseOrder(t *testing.T) {
	const vendor = "Freight & Co"

	order := func(number, date, sku string) entity.PurchaseOrder {
		return entity.PurchaseOrder{
			PONumber:  number,
			Vendor:    vendor,
			Date:      date,
			LineItems: []entity.OrderLine{{SKU: sku, Qty: 1, UnitPrice: 1000}},
		}
	}
	unrelated := order("PO-C-800", "2024-03-20", "PALLET")
	otherVendor := entity.PurchaseOrder{
		PONumber:  "PO-A-050",
		Vendor:    "Supplier GmbH",
		Date:      "2024-03-20",
		LineItems: []entity.OrderLine{{SKU: "FREIGHT", Qty: 1, UnitPrice: 1000}},
	}

	tests := []struct {
		name        string
		invoiceDate string
		orders      []entity.PurchaseOrder
		expected    string
	}{
		{
			name:        "PO 30 days before invoice matches",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{order("PO-C-900", "2024-03-01", "FREIGHT"), unrelated},
			expected:    "PO-C-900",
		},
		{
			name:        "PO 31 days before invoice is outside the window",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{order("PO-C-900", "2024-02-29", "FREIGHT"), unrelated},
		},
		{
			name:        "PO dated after invoice is ignored",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{order("PO-C-900", "2024-04-02", "FREIGHT"), unrelated},
		},
		{
			name:        "PO on invoice date matches",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{unrelated, order("PO-C-900", "2024-03-31", "FREIGHT")},
			expected:    "PO-C-900",
		},
		{
			name:        "first qualifying PO wins",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{order("PO-C-901", "2024-03-15", "FREIGHT"), order("PO-C-900", "2024-03-01", "FREIGHT")},
			expected:    "PO-C-901",
		},
		{
			name:        "no qualifying PO among several",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{unrelated, order("PO-C-801", "2024-03-25", "CRATE"), otherVendor},
		},
		{
			name:        "lone vendor PO is the fallback",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{order("PO-C-700", "2023-11-01", "PALLET"), otherVendor},
			expected:    "PO-C-700",
		},
		{
			name:        "unparseable invoice date falls back to lone PO",
			invoiceDate: "sometime in March",
			orders:      []entity.PurchaseOrder{order("PO-C-900", "2024-03-01", "FREIGHT")},
			expected:    "PO-C-900",
		},
		{
			name:        "unparseable invoice date with several POs",
			invoiceDate: "sometime in March",
			orders:      []entity.PurchaseOrder{order("PO-C-900", "2024-03-01", "FREIGHT"), unrelated},
		},
		{
			name:        "no orders for the vendor",
			invoiceDate: "2024-03-31",
			orders:      []entity.PurchaseOrder{otherVendor},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := &entity.InvoiceFields{
				InvoiceDate: tt.invoiceDate,
				LineItems:   []entity.LineItem{{SKU: "FREIGHT", Description: "Seefracht", Qty: 1, UnitPrice: 1000}},
			}

			matched := matchPurchaseOrder(vendor, fields, tt.orders, 30)

			if tt.expected == "" {
				assert.Nil(t, matched)
				return
			}
			if assert.NotNil(t, matched) {
				assert.Equal(t, tt.expected, matched.PONumber)
			}
		})
	}
}

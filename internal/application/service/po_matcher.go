package service

import (
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// matchPurchaseOrder picks the first vendor PO dated within windowDays before the
// invoice that shares a SKU with it. If none qualifies and the vendor has exactly
// one PO, that PO is returned. An unparseable invoice date skips the date match.
func matchPurchaseOrder(vendor string, fields *entity.InvoiceFields, orders []entity.PurchaseOrder, windowDays int) *entity.PurchaseOrder {
	var vendorOrders []*entity.PurchaseOrder
	for i := range orders {
		if orders[i].Vendor == vendor {
			vendorOrders = append(vendorOrders, &orders[i])
		}
	}
	if len(vendorOrders) == 0 {
		return nil
	}

	if invoiceDate, err := entity.ParseInvoiceDate(fields.InvoiceDate); err == nil {
		skus := fields.SKUs()
		for _, po := range vendorOrders {
			poDate, err := entity.ParseInvoiceDate(po.Date)
			if err != nil {
				continue
			}
			days := entity.DaysBetween(invoiceDate, poDate)
			if days < 0 || days > float64(windowDays) {
				continue
			}
			if sharesSKU(po, skus) {
				return po
			}
		}
	}

	if len(vendorOrders) == 1 {
		return vendorOrders[0]
	}
	return nil
}

func sharesSKU(po *entity.PurchaseOrder, skus []string) bool {
	for _, sku := range skus {
		if po.HasSKU(sku) {
			return true
		}
	}
	return false
}

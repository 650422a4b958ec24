package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
)

// FieldName identifies a top-level invoice field
type FieldName string

const (
	FieldInvoiceNumber FieldName = "invoiceNumber"
	FieldInvoiceDate   FieldName = "invoiceDate"
	FieldServiceDate   FieldName = "serviceDate"
	FieldCurrency      FieldName = "currency"
	FieldPONumber      FieldName = "poNumber"
	FieldNetTotal      FieldName = "netTotal"
	FieldTaxRate       FieldName = "taxRate"
	FieldTaxTotal      FieldName = "taxTotal"
	FieldGrossTotal    FieldName = "grossTotal"
	FieldDiscountTerms FieldName = "discountTerms"
	FieldLineItems     FieldName = "lineItems"
)

// LineItemField identifies a field inside a line item
type LineItemField string

const (
	LineItemSKU         LineItemField = "sku"
	LineItemDescription LineItemField = "description"
	LineItemQty         LineItemField = "qty"
	LineItemUnitPrice   LineItemField = "unitPrice"
)

var scalarFields = map[FieldName]bool{
	FieldInvoiceNumber: true,
	FieldInvoiceDate:   true,
	FieldServiceDate:   true,
	FieldCurrency:      true,
	FieldPONumber:      true,
	FieldNetTotal:      true,
	FieldTaxRate:       true,
	FieldTaxTotal:      true,
	FieldGrossTotal:    true,
	FieldDiscountTerms: true,
}

var lineItemPathRe = regexp.MustCompile(`^lineItems\[(\d+)\]\.(sku|description|qty|unitPrice)$`)

// FieldPath is a validated reference to one scalar inside InvoiceFields,
// either a top-level field ("currency") or a line item field ("lineItems[0].sku").
type FieldPath struct {
	field FieldName
	index int
	sub   LineItemField
}

// ParseFieldPath validates a dotted path expression
func ParseFieldPath(s string) (FieldPath, error) {
	if scalarFields[FieldName(s)] {
		return FieldPath{field: FieldName(s), index: -1}, nil
	}
	m := lineItemPathRe.FindStringSubmatch(s)
	if m == nil {
		return FieldPath{}, fmt.Errorf("%w: %q", ErrInvalidFieldPath, s)
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil {
		return FieldPath{}, fmt.Errorf("%w: %q", ErrInvalidFieldPath, s)
	}
	return FieldPath{field: FieldLineItems, index: idx, sub: LineItemField(m[2])}, nil
}

// MustParseFieldPath is ParseFieldPath for compile-time constants
func MustParseFieldPath(s string) FieldPath {
	p, err := ParseFieldPath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Field returns the top-level field the path starts at
func (p FieldPath) Field() FieldName { return p.field }

// LineItem returns the line item index and sub-field for line item paths
func (p FieldPath) LineItem() (int, LineItemField, bool) {
	if p.field != FieldLineItems {
		return 0, "", false
	}
	return p.index, p.sub, true
}

// IsZero reports whether the path was never parsed
func (p FieldPath) IsZero() bool { return p.field == "" }

func (p FieldPath) String() string {
	if p.field == FieldLineItems {
		return fmt.Sprintf("lineItems[%d].%s", p.index, p.sub)
	}
	return string(p.field)
}

// Get reads the value at the path. Empty strings read as null.
// The boolean is false when a line item index is out of range.
func (p FieldPath) Get(f *InvoiceFields) (FieldValue, bool) {
	switch p.field {
	case FieldInvoiceNumber:
		return stringOrNull(f.InvoiceNumber), true
	case FieldInvoiceDate:
		return stringOrNull(f.InvoiceDate), true
	case FieldServiceDate:
		return stringOrNull(f.ServiceDate), true
	case FieldCurrency:
		return stringOrNull(f.Currency), true
	case FieldPONumber:
		return stringOrNull(f.PONumber), true
	case FieldDiscountTerms:
		return stringOrNull(f.DiscountTerms), true
	case FieldNetTotal:
		return NumberValue(f.NetTotal), true
	case FieldTaxRate:
		return NumberValue(f.TaxRate), true
	case FieldTaxTotal:
		return NumberValue(f.TaxTotal), true
	case FieldGrossTotal:
		return NumberValue(f.GrossTotal), true
	case FieldLineItems:
		if p.index < 0 || p.index >= len(f.LineItems) {
			return NullValue(), false
		}
		item := f.LineItems[p.index]
		switch p.sub {
		case LineItemSKU:
			return stringOrNull(item.SKU), true
		case LineItemDescription:
			return stringOrNull(item.Description), true
		case LineItemQty:
			return NumberValue(item.Qty), true
		case LineItemUnitPrice:
			return NumberValue(item.UnitPrice), true
		}
	}
	return NullValue(), false
}

// Set writes a value at the path. String fields accept strings or null,
// numeric fields accept numbers only.
func (p FieldPath) Set(f *InvoiceFields, v FieldValue) error {
	switch p.field {
	case FieldInvoiceNumber:
		return setString(&f.InvoiceNumber, p, v)
	case FieldInvoiceDate:
		return setString(&f.InvoiceDate, p, v)
	case FieldServiceDate:
		return setString(&f.ServiceDate, p, v)
	case FieldCurrency:
		return setString(&f.Currency, p, v)
	case FieldPONumber:
		return setString(&f.PONumber, p, v)
	case FieldDiscountTerms:
		return setString(&f.DiscountTerms, p, v)
	case FieldNetTotal:
		return setNumber(&f.NetTotal, p, v)
	case FieldTaxRate:
		return setNumber(&f.TaxRate, p, v)
	case FieldTaxTotal:
		return setNumber(&f.TaxTotal, p, v)
	case FieldGrossTotal:
		return setNumber(&f.GrossTotal, p, v)
	case FieldLineItems:
		if p.index < 0 || p.index >= len(f.LineItems) {
			return fmt.Errorf("%w: %s is out of range (%d line items)", ErrInvalidFieldPath, p, len(f.LineItems))
		}
		item := &f.LineItems[p.index]
		switch p.sub {
		case LineItemSKU:
			return setString(&item.SKU, p, v)
		case LineItemDescription:
			return setString(&item.Description, p, v)
		case LineItemQty:
			return setNumber(&item.Qty, p, v)
		case LineItemUnitPrice:
			return setNumber(&item.UnitPrice, p, v)
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidFieldPath, p)
}

// MarshalJSON encodes the path as its string form
func (p FieldPath) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON parses and validates the path
func (p *FieldPath) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFieldPath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func stringOrNull(s string) FieldValue {
	if s == "" {
		return NullValue()
	}
	return StringValue(s)
}

func setString(dst *string, p FieldPath, v FieldValue) error {
	if v.IsNull() {
		*dst = ""
		return nil
	}
	s, ok := v.AsString()
	if !ok {
		return fmt.Errorf("%s expects a string, got %s", p, v)
	}
	*dst = s
	return nil
}

func setNumber(dst *float64, p FieldPath, v FieldValue) error {
	n, ok := v.AsNumber()
	if !ok {
		return fmt.Errorf("%s expects a number, got %s", p, v)
	}
	*dst = n
	return nil
}

package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFields() InvoiceFields {
	return InvoiceFields{
		InvoiceNumber: "INV-1",
		InvoiceDate:   "2024-01-12",
		Currency:      "EUR",
		NetTotal:      100,
		TaxRate:       0.19,
		TaxTotal:      19,
		GrossTotal:    119,
		LineItems: []LineItem{
			{SKU: "WIDGET-001", Description: "Widget", Qty: 4, UnitPrice: 25},
			{Description: "Transport charges", Qty: 1, UnitPrice: 10},
		},
	}
}

func TestParseFieldPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "top-level string field", input: "currency", want: "currency"},
		{name: "top-level number field", input: "grossTotal", want: "grossTotal"},
		{name: "line item sku", input: "lineItems[0].sku", want: "lineItems[0].sku"},
		{name: "line item unit price", input: "lineItems[12].unitPrice", want: "lineItems[12].unitPrice"},
		{name: "unknown field", input: "vendorName", wantErr: true},
		{name: "line items without index", input: "lineItems.sku", wantErr: true},
		{name: "unknown line item field", input: "lineItems[0].color", wantErr: true},
		{name: "negative index", input: "lineItems[-1].sku", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseFieldPath(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidFieldPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestFieldPath_Get(t *testing.T) {
	fields := sampleFields()

	tests := []struct {
		path   string
		want   FieldValue
		wantOK bool
	}{
		{"currency", StringValue("EUR"), true},
		{"serviceDate", NullValue(), true},
		{"grossTotal", NumberValue(119), true},
		{"lineItems[0].sku", StringValue("WIDGET-001"), true},
		{"lineItems[1].sku", NullValue(), true},
		{"lineItems[1].qty", NumberValue(1), true},
		{"lineItems[5].sku", NullValue(), false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := MustParseFieldPath(tt.path).Get(&fields)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestFieldPath_Set(t *testing.T) {
	t.Run("sets string field", func(t *testing.T) {
		fields := sampleFields()
		require.NoError(t, MustParseFieldPath("poNumber").Set(&fields, StringValue("PO-1")))
		assert.Equal(t, "PO-1", fields.PONumber)
	})

	t.Run("null clears string field", func(t *testing.T) {
		fields := sampleFields()
		require.NoError(t, MustParseFieldPath("currency").Set(&fields, NullValue()))
		assert.Empty(t, fields.Currency)
	})

	t.Run("sets line item sku", func(t *testing.T) {
		fields := sampleFields()
		require.NoError(t, MustParseFieldPath("lineItems[1].sku").Set(&fields, StringValue("FREIGHT")))
		assert.Equal(t, "FREIGHT", fields.LineItems[1].SKU)
	})

	t.Run("rejects wrong type", func(t *testing.T) {
		fields := sampleFields()
		err := MustParseFieldPath("netTotal").Set(&fields, StringValue("abc"))
		assert.Error(t, err)
		assert.Equal(t, 100.0, fields.NetTotal)
	})

	t.Run("rejects out of range index", func(t *testing.T) {
		fields := sampleFields()
		err := MustParseFieldPath("lineItems[3].sku").Set(&fields, StringValue("X"))
		assert.ErrorIs(t, err, ErrInvalidFieldPath)
	})
}

func TestFieldPath_JSON(t *testing.T) {
	var p FieldPath
	require.NoError(t, json.Unmarshal([]byte(`"lineItems[2].description"`), &p))
	assert.Equal(t, "lineItems[2].description", p.String())

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `"lineItems[2].description"`, string(data))

	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &p))
}

func TestFieldValue_JSON(t *testing.T) {
	tests := []struct {
		raw  string
		want FieldValue
	}{
		{`null`, NullValue()},
		{`"EUR"`, StringValue("EUR")},
		{`2380`, NumberValue(2380)},
		{`true`, BoolValue(true)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var v FieldValue
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &v))
			assert.True(t, tt.want.Equal(v))

			out, err := json.Marshal(v)
			require.NoError(t, err)
			assert.JSONEq(t, tt.raw, string(out))
		})
	}

	var v FieldValue
	assert.Error(t, json.Unmarshal([]byte(`{"a":1}`), &v))
}

func TestFieldValue_Equal(t *testing.T) {
	assert.True(t, StringValue("a").Equal(StringValue("a")))
	assert.False(t, StringValue("1").Equal(NumberValue(1)))
	assert.False(t, NullValue().Equal(StringValue("")))
	assert.True(t, NullValue().Equal(FieldValue{}))
	assert.Equal(t, "2016.81", NumberValue(2016.81).String())
	assert.Equal(t, "null", NullValue().String())
}

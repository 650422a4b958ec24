package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePatternKind(t *testing.T) {
	tests := []struct {
		patternType PatternType
		key         string
		want        PatternKind
	}{
		{PatternTypeFieldMapping, PatternKeyServiceDate, KindServiceDateMapping},
		{PatternTypeFieldMapping, PatternKeyCurrencyFromText, KindCurrencyFromText},
		{PatternTypeFieldMapping, "invoiceDate", KindUnknown},
		{PatternTypeTaxBehavior, PatternKeyVatIncluded, KindVatIncluded},
		{PatternTypeTaxBehavior, "reverse_charge", KindUnknown},
		{PatternTypeDiscountTerms, PatternKeySkonto, KindDiscountTerms},
		{PatternTypeDiscountTerms, "anything", KindDiscountTerms},
		{PatternTypeSkuMapping, SkuPatternKey("FREIGHT"), KindSkuMapping},
		{PatternType("other"), "x", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(string(tt.patternType)+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePatternKind(tt.patternType, tt.key))
		})
	}
}

func TestDecodePatternValue(t *testing.T) {
	t.Run("service date mapping", func(t *testing.T) {
		v, err := DecodePatternValue(PatternTypeFieldMapping, PatternKeyServiceDate,
			[]byte(`{"source":"Leistungsdatum","target":"serviceDate","example":"2024-01-01"}`))
		require.NoError(t, err)
		m, ok := v.(ServiceDateMapping)
		require.True(t, ok)
		assert.Equal(t, "Leistungsdatum", m.Source)
		assert.Equal(t, "2024-01-01", m.Example)
	})

	t.Run("sku mapping", func(t *testing.T) {
		v, err := DecodePatternValue(PatternTypeSkuMapping, SkuPatternKey("FREIGHT"),
			[]byte(`{"description":"Seefracht / Shipping","sku":"FREIGHT"}`))
		require.NoError(t, err)
		assert.Equal(t, SkuMapping{Description: "Seefracht / Shipping", SKU: "FREIGHT"}, v)
	})

	t.Run("unknown pattern", func(t *testing.T) {
		_, err := DecodePatternValue(PatternType("other"), "x", []byte(`{}`))
		assert.ErrorIs(t, err, ErrUnknownPattern)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodePatternValue(PatternTypeTaxBehavior, PatternKeyVatIncluded, []byte(`[`))
		assert.Error(t, err)
	})

	t.Run("encoded value decodes to the same variant", func(t *testing.T) {
		original := VatIncluded{
			Behavior:      "vat_already_included",
			Indicators:    []string{"incl", "inkl", "included"},
			Recalculation: "gross_to_net",
		}
		raw, err := json.Marshal(original)
		require.NoError(t, err)
		v, err := DecodePatternValue(PatternTypeTaxBehavior, PatternKeyVatIncluded, raw)
		require.NoError(t, err)
		assert.Equal(t, original, v)
	})
}

func TestReinforcedConfidence(t *testing.T) {
	assert.InDelta(t, 0.73, ReinforcedConfidence(0.7, true), 1e-9)
	assert.InDelta(t, 0.55, ReinforcedConfidence(0.7, false), 1e-9)
	assert.Equal(t, MaxConfidenceScore, ReinforcedConfidence(0.95, true))
	assert.Equal(t, MinReinforcedConfidence, ReinforcedConfidence(0.2, false))
}

func TestReinforcedConfidence_StaysInBounds(t *testing.T) {
	sequences := [][]bool{
		{true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true, true},
		{false, false, false, false, false, false, false, false},
		{true, false, true, false, false, true, true, true, false, true, false, false, false, true},
	}
	starts := []float64{0.1, 0.3, 0.6, 0.95}

	for _, start := range starts {
		for _, seq := range sequences {
			c := start
			for _, ok := range seq {
				c = ReinforcedConfidence(c, ok)
				assert.GreaterOrEqual(t, c, MinReinforcedConfidence)
				assert.LessOrEqual(t, c, MaxConfidenceScore)
			}
		}
	}
}

func TestParsePatternFamily(t *testing.T) {
	f, err := ParsePatternFamily("vendor")
	require.NoError(t, err)
	assert.Equal(t, FamilyVendor, f)

	f, err = ParsePatternFamily("correction_memory")
	require.NoError(t, err)
	assert.Equal(t, FamilyCorrection, f)

	_, err = ParsePatternFamily(CollectionResolutions)
	assert.Error(t, err)
}

func TestCorrectionEnvelope(t *testing.T) {
	cond := FieldEquals{Path: MustParseFieldPath("currency"), Value: StringValue("€")}
	raw, err := EncodeCondition(cond)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"field_equals","payload":{"field":"currency","value":"€"}}`, string(raw))

	decoded, err := DecodeCondition(raw)
	require.NoError(t, err)
	assert.Equal(t, cond, decoded)

	action := MatchByVendorDateItems{MaxDaysDiff: 30}
	raw, err = EncodeAction(action)
	require.NoError(t, err)
	decodedAction, err := DecodeAction(raw)
	require.NoError(t, err)
	assert.Equal(t, action, decodedAction)

	_, err = DecodeCondition([]byte(`{"kind":"regex","payload":{}}`))
	assert.Error(t, err)
}

func TestFieldEqualsAndSetField(t *testing.T) {
	fields := sampleFields()
	fields.Currency = "€"

	cond := FieldEquals{Path: MustParseFieldPath("currency"), Value: StringValue("€")}
	assert.True(t, cond.Matches(&fields))

	msg, err := SetField{Path: MustParseFieldPath("currency"), Value: StringValue("EUR")}.Apply(&fields)
	require.NoError(t, err)
	assert.Equal(t, "Set currency to EUR", msg)
	assert.Equal(t, "EUR", fields.Currency)
	assert.False(t, cond.Matches(&fields))
}

func TestCorrectionPattern_MarshalJSON(t *testing.T) {
	p := CorrectionPattern{
		ID:               "c1",
		CorrectionType:   CorrectionTypePOMatching,
		Condition:        MissingPO{MissingPO: true, HasLineItems: true},
		Action:           MatchByVendorDateItems{MaxDaysDiff: 30},
		Confidence:       0.65,
		SourceInvoiceIDs: []string{"INV-1"},
		CreatedAt:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Nil(t, out["vendor"])
	assert.Equal(t, "po_matching", out["correctionType"])
	cond := out["condition"].(map[string]interface{})
	assert.Equal(t, "missing_po", cond["kind"])
	action := out["correctionAction"].(map[string]interface{})
	assert.Equal(t, "match_by_vendor_date_items", action["kind"])
}

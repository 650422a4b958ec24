package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// PatternType is the pattern_type column of vendor memory
type PatternType string

const (
	PatternTypeFieldMapping  PatternType = "field_mapping"
	PatternTypeTaxBehavior   PatternType = "tax_behavior"
	PatternTypeDiscountTerms PatternType = "discount_terms"
	PatternTypeSkuMapping    PatternType = "sku_mapping"
)

// Well-known pattern keys
const (
	PatternKeyServiceDate      = "serviceDate"
	PatternKeyCurrencyFromText = "currency_from_text"
	PatternKeyVatIncluded      = "vat_included"
	PatternKeySkonto           = "skonto"

	skuPatternKeyPrefix = "desc_to_sku_"
)

// SkuPatternKey builds the key of a SKU mapping pattern for the destination SKU
func SkuPatternKey(sku string) string {
	return skuPatternKeyPrefix + sku
}

// PatternKind names the handler a vendor pattern dispatches to
type PatternKind string

const (
	KindUnknown            PatternKind = ""
	KindServiceDateMapping PatternKind = "service_date_mapping"
	KindVatIncluded        PatternKind = "vat_included"
	KindCurrencyFromText   PatternKind = "currency_from_text"
	KindDiscountTerms      PatternKind = "discount_terms"
	KindSkuMapping         PatternKind = "sku_mapping"
)

// ResolvePatternKind maps a (pattern_type, pattern_key) pair to exactly one handler kind.
// Discount and SKU patterns dispatch on type alone.
func ResolvePatternKind(t PatternType, key string) PatternKind {
	switch t {
	case PatternTypeFieldMapping:
		switch key {
		case PatternKeyServiceDate:
			return KindServiceDateMapping
		case PatternKeyCurrencyFromText:
			return KindCurrencyFromText
		}
	case PatternTypeTaxBehavior:
		if key == PatternKeyVatIncluded {
			return KindVatIncluded
		}
	case PatternTypeDiscountTerms:
		return KindDiscountTerms
	case PatternTypeSkuMapping:
		return KindSkuMapping
	}
	return KindUnknown
}

// PatternValue is the typed payload of a vendor pattern
type PatternValue interface {
	Kind() PatternKind
}

// ServiceDateMapping says the vendor labels the service date with Source in raw text
type ServiceDateMapping struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Example string `json:"example,omitempty"`
}

func (ServiceDateMapping) Kind() PatternKind { return KindServiceDateMapping }

// VatIncluded says the vendor states totals with VAT already included
type VatIncluded struct {
	Behavior      string   `json:"behavior"`
	Indicators    []string `json:"indicators"`
	Recalculation string   `json:"recalculation"`
}

func (VatIncluded) Kind() PatternKind { return KindVatIncluded }

// CurrencyFromText says the currency can be recovered from the raw text
type CurrencyFromText struct {
	Currency string `json:"currency"`
	Pattern  string `json:"pattern"`
}

func (CurrencyFromText) Kind() PatternKind { return KindCurrencyFromText }

// DiscountTerms carries the vendor's canonical discount phrasing
type DiscountTerms struct {
	Terms     string `json:"terms"`
	Detection string `json:"detection"`
}

func (DiscountTerms) Kind() PatternKind { return KindDiscountTerms }

// SkuMapping maps a free-text line description to a SKU
type SkuMapping struct {
	Description string `json:"description"`
	SKU         string `json:"sku"`
}

func (SkuMapping) Kind() PatternKind { return KindSkuMapping }

// DecodePatternValue decodes a stored pattern_value for the given type and key
func DecodePatternValue(t PatternType, key string, raw []byte) (PatternValue, error) {
	var (
		value PatternValue
		err   error
	)
	switch ResolvePatternKind(t, key) {
	case KindServiceDateMapping:
		var v ServiceDateMapping
		err = json.Unmarshal(raw, &v)
		value = v
	case KindVatIncluded:
		var v VatIncluded
		err = json.Unmarshal(raw, &v)
		value = v
	case KindCurrencyFromText:
		var v CurrencyFromText
		err = json.Unmarshal(raw, &v)
		value = v
	case KindDiscountTerms:
		var v DiscountTerms
		err = json.Unmarshal(raw, &v)
		value = v
	case KindSkuMapping:
		var v SkuMapping
		err = json.Unmarshal(raw, &v)
		value = v
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnknownPattern, t, key)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s/%s pattern value: %w", t, key, err)
	}
	return value, nil
}

// PatternKey is the unique identity of a vendor pattern
type PatternKey struct {
	Vendor string
	Type   PatternType
	Key    string
}

func (k PatternKey) String() string {
	return fmt.Sprintf("%s:%s/%s", k.Vendor, k.Type, k.Key)
}

// VendorPattern is a learned, vendor-specific field mapping or behavior rule
type VendorPattern struct {
	ID              string       `json:"id"`
	Vendor          string       `json:"vendor"`
	Type            PatternType  `json:"patternType"`
	Key             string       `json:"patternKey"`
	Value           PatternValue `json:"patternValue"`
	Confidence      float64      `json:"confidence"`
	TimesApplied    int          `json:"timesApplied"`
	TimesSuccessful int          `json:"timesSuccessful"`
	TimesFailed     int          `json:"timesFailed"`
	Version         int          `json:"version"`
	LastAppliedAt   *time.Time   `json:"lastAppliedAt,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// PatternKey returns the unique key of the pattern
func (p *VendorPattern) PatternKey() PatternKey {
	return PatternKey{Vendor: p.Vendor, Type: p.Type, Key: p.Key}
}

// Kind returns the handler kind the pattern dispatches to
func (p *VendorPattern) Kind() PatternKind {
	return ResolvePatternKind(p.Type, p.Key)
}

// PatternFamily selects the memory a reinforcement applies to
type PatternFamily string

const (
	FamilyVendor     PatternFamily = "vendor_memory"
	FamilyCorrection PatternFamily = "correction_memory"
)

// Collections that are recalled but are not pattern families
const (
	CollectionResolutions       = "resolution_memory"
	CollectionProcessedInvoices = "processed_invoices"
)

// ParsePatternFamily accepts the table name or its short form
func ParsePatternFamily(s string) (PatternFamily, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vendor", string(FamilyVendor):
		return FamilyVendor, nil
	case "correction", string(FamilyCorrection):
		return FamilyCorrection, nil
	}
	return "", fmt.Errorf("unknown pattern family %q", s)
}

// ReinforcedConfidence applies one reinforcement outcome to a confidence value.
// Success moves a tenth of the way toward 1 capped at MaxConfidenceScore;
// failure subtracts a flat penalty floored at MinReinforcedConfidence.
func ReinforcedConfidence(confidence float64, successful bool) float64 {
	if successful {
		return math.Min(MaxConfidenceScore, confidence+ReinforceSuccessRate*(1-confidence))
	}
	return math.Max(MinReinforcedConfidence, confidence-ReinforceFailurePenalty)
}

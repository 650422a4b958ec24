package service

import (
	"context"
	"testing"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecisionEngine_ServiceDateFromLearnedLabel(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Supplier GmbH", entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
		entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate", Example: "2024-01-01"}, 0.7)

	invoice := supplierInvoice()
	result, err := s.decisions.ProcessInvoice(context.Background(), invoice, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "2024-01-15", result.NormalizedInvoice.ServiceDate)
	assert.Equal(t, []string{"Set serviceDate from Leistungsdatum: 2024-01-15"}, result.ProposedCorrections)
	assert.Empty(t, invoice.Fields.ServiceDate, "input invoice must not be mutated")

	assert.InDelta(t, 0.8, result.ConfidenceScore, 1e-9)
	assert.False(t, result.RequiresHumanReview)
	assert.Contains(t, result.Reasoning, `Applied learned pattern: serviceDate from "Leistungsdatum" (confidence: 0.70)`)
	assert.Contains(t, result.Reasoning, "Auto-accepted with learned corrections.")
	assert.Equal(t, 1, s.metrics.count("applied:"+string(entity.KindServiceDateMapping)))
}

func TestDecisionEngine_VatIncludedRecalculation(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Parts AG", entity.PatternTypeTaxBehavior, entity.PatternKeyVatIncluded,
		entity.VatIncluded{Behavior: "vat_already_included", Indicators: []string{"incl", "inkl", "included"}, Recalculation: "gross_to_net"}, 0.7)

	result, err := s.decisions.ProcessInvoice(context.Background(), partsInvoice(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 2016.81, result.NormalizedInvoice.NetTotal)
	assert.Equal(t, 383.19, result.NormalizedInvoice.TaxTotal)
	assert.Equal(t, 2400.0, result.NormalizedInvoice.GrossTotal)
	assert.Equal(t, []string{"Recalculated VAT (included in total): net=2016.81, tax=383.19"}, result.ProposedCorrections)
}

func TestDecisionEngine_NoLearnedPatterns(t *testing.T) {
	s := newTestStack(t)

	result, err := s.decisions.ProcessInvoice(context.Background(), supplierInvoice(), nil, nil)
	require.NoError(t, err)

	assert.Empty(t, result.ProposedCorrections)
	assert.True(t, result.RequiresHumanReview)
	assert.Equal(t, "No learned patterns applied. Requires human review.", result.Reasoning)
	assert.Equal(t, 1, s.metrics.count("decision:"+OutcomeNoLearnedPatterns))
}

func TestDecisionEngine_DuplicateShortCircuits(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()
	s.seedVendorPattern(t, "Supplier GmbH", entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
		entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate"}, 0.7)

	_, err := s.invoices.ProcessInvoice(ctx, supplierInvoice(), nil, nil)
	require.NoError(t, err)

	tests := []struct {
		name          string
		invoiceNumber string
		invoiceDate   string
		wantDuplicate bool
	}{
		{name: "same number within window", invoiceNumber: "INV-2024-001", invoiceDate: "2024-01-24", wantDuplicate: true},
		{name: "same number dotted date", invoiceNumber: "INV-2024-001", invoiceDate: "18.01.2024", wantDuplicate: true},
		{name: "same number outside window", invoiceNumber: "INV-2024-001", invoiceDate: "2024-02-20", wantDuplicate: false},
		{name: "different number", invoiceNumber: "INV-2024-002", invoiceDate: "2024-01-20", wantDuplicate: false},
		{name: "unparseable date", invoiceNumber: "INV-2024-001", invoiceDate: "sometime in January", wantDuplicate: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := supplierInvoice()
			candidate.InvoiceID = "INV-A-099"
			candidate.Fields.InvoiceNumber = tt.invoiceNumber
			candidate.Fields.InvoiceDate = tt.invoiceDate

			result, err := s.decisions.ProcessInvoice(ctx, candidate, nil, nil)
			require.NoError(t, err)

			if tt.wantDuplicate {
				assert.True(t, result.RequiresHumanReview)
				assert.Zero(t, result.ConfidenceScore)
				assert.Empty(t, result.ProposedCorrections)
				assert.Contains(t, result.Reasoning, "DUPLICATE DETECTED: Invoice INV-2024-001 from Supplier GmbH")
				last := result.AuditTrail[len(result.AuditTrail)-1]
				assert.Equal(t, entity.AuditStepDecide, last.Step)
				assert.Equal(t, "duplicate_detected", last.Operation)
			} else {
				assert.NotContains(t, result.Reasoning, "DUPLICATE DETECTED")
			}
		})
	}
}

func TestDecisionEngine_ReprocessingSameInvoiceIsNotDuplicate(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.invoices.ProcessInvoice(ctx, supplierInvoice(), nil, nil)
	require.NoError(t, err)

	result, err := s.decisions.ProcessInvoice(ctx, supplierInvoice(), nil, nil)
	require.NoError(t, err)
	assert.NotContains(t, result.Reasoning, "DUPLICATE DETECTED")
}

func TestDecisionEngine_ConfidenceIsCapped(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Supplier GmbH", entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
		entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate"}, 0.95)

	invoice := supplierInvoice()
	invoice.Confidence = 1.0

	result, err := s.decisions.ProcessInvoice(context.Background(), invoice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, entity.MaxConfidenceScore, result.ConfidenceScore)
}

func TestDecisionEngine_SkuMappingEnablesPOMatch(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Freight & Co", entity.PatternTypeDiscountTerms, entity.PatternKeySkonto,
		entity.DiscountTerms{Terms: "2% Skonto within 10 days", Detection: "rawText_pattern"}, 0.75)
	s.seedVendorPattern(t, "Freight & Co", entity.PatternTypeSkuMapping, entity.SkuPatternKey("FREIGHT"),
		entity.SkuMapping{Description: "Seefracht / Shipping", SKU: "FREIGHT"}, 0.7)

	result, err := s.decisions.ProcessInvoice(context.Background(), freightInvoice(), freightOrders(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Added discount terms: 2% Skonto within 10 days",
		`Mapped "Seefracht / Shipping" to SKU FREIGHT`,
		"Matched to PO: PO-C-900",
	}, result.ProposedCorrections)
	assert.Equal(t, "FREIGHT", result.NormalizedInvoice.LineItems[0].SKU)
	assert.Equal(t, "PO-C-900", result.NormalizedInvoice.PONumber)
	assert.Equal(t, "2% Skonto within 10 days", result.NormalizedInvoice.DiscountTerms)
	assert.InDelta(t, 0.7625, result.ConfidenceScore, 1e-9)
	assert.False(t, result.RequiresHumanReview)
}

func TestDecisionEngine_CurrencyRecoveredLeavesNoIssues(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Parts AG", entity.PatternTypeFieldMapping, entity.PatternKeyCurrencyFromText,
		entity.CurrencyFromText{Currency: "EUR", Pattern: "text_extraction"}, 0.5)

	invoice := partsInvoice()
	invoice.Fields.Currency = ""
	invoice.RawText = "Invoice PA-7790\nCurrency: eur\nTotal 1190.00"

	result, err := s.decisions.ProcessInvoice(context.Background(), invoice, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "EUR", result.NormalizedInvoice.Currency)
	assert.Equal(t, []string{"Recovered currency from text: EUR"}, result.ProposedCorrections)
	assert.True(t, result.RequiresHumanReview)
	assert.Contains(t, result.Reasoning, "Confidence 0.70 below threshold 0.75. Requires human review.")
}

func TestDecisionEngine_MissingFieldsFlagged(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Supplier GmbH", entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
		entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate"}, 0.9)

	invoice := supplierInvoice()
	invoice.Fields.Currency = ""

	result, err := s.decisions.ProcessInvoice(context.Background(), invoice, nil, nil)
	require.NoError(t, err)

	assert.True(t, result.RequiresHumanReview)
	assert.Contains(t, result.Reasoning, "Flagged for review: Missing critical fields or validation issues detected.")
}

func TestDecisionEngine_AppliesEvaluableCorrectionRules(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.store.InsertCorrectionPattern(ctx, &entity.CorrectionPattern{
		Vendor:         entity.VendorPtr("Supplier GmbH"),
		CorrectionType: entity.CorrectionTypeSetField,
		Condition: entity.FieldEquals{
			Path:  entity.MustParseFieldPath("poNumber"),
			Value: entity.StringValue("PO-A-050"),
		},
		Action: entity.SetField{
			Path:  entity.MustParseFieldPath("discountTerms"),
			Value: entity.StringValue("Net 30"),
		},
		Confidence: 0.8,
	})
	require.NoError(t, err)
	_, err = s.store.InsertCorrectionPattern(ctx, &entity.CorrectionPattern{
		CorrectionType: entity.CorrectionTypePOMatching,
		Condition:      entity.MissingPO{MissingPO: true, HasLineItems: true},
		Action:         entity.MatchByVendorDateItems{MaxDaysDiff: 30},
		Confidence:     0.65,
	})
	require.NoError(t, err)

	result, err := s.decisions.ProcessInvoice(ctx, supplierInvoice(), nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Set discountTerms to Net 30"}, result.ProposedCorrections)
	assert.Equal(t, "Net 30", result.NormalizedInvoice.DiscountTerms)
	assert.Contains(t, result.Reasoning, "Applied correction pattern: set_field (confidence: 0.80)")
}

func TestDecisionEngine_GlobalCorrectionRuleAppliesToEveryVendor(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	_, err := s.store.InsertCorrectionPattern(ctx, &entity.CorrectionPattern{
		CorrectionType: entity.CorrectionTypeSetField,
		Condition: entity.FieldEquals{
			Path:  entity.MustParseFieldPath("currency"),
			Value: entity.StringValue("EUR"),
		},
		Action: entity.SetField{
			Path:  entity.MustParseFieldPath("discountTerms"),
			Value: entity.StringValue("Net 14"),
		},
		Confidence:       0.8,
		SourceInvoiceIDs: []string{"INV-A-001"},
	})
	require.NoError(t, err)
	_, err = s.store.InsertCorrectionPattern(ctx, &entity.CorrectionPattern{
		Vendor:         entity.VendorPtr("Supplier GmbH"),
		CorrectionType: entity.CorrectionTypeSetField,
		Condition: entity.FieldEquals{
			Path:  entity.MustParseFieldPath("currency"),
			Value: entity.StringValue("EUR"),
		},
		Action: entity.SetField{
			Path:  entity.MustParseFieldPath("poNumber"),
			Value: entity.StringValue("PO-A-999"),
		},
		Confidence: 0.8,
	})
	require.NoError(t, err)

	result, err := s.decisions.ProcessInvoice(ctx, partsInvoice(), nil, nil)
	require.NoError(t, err)

	assert.Contains(t, result.ProposedCorrections, "Set discountTerms to Net 14")
	assert.Equal(t, "Net 14", result.NormalizedInvoice.DiscountTerms)
	assert.Equal(t, "PO-B-110", result.NormalizedInvoice.PONumber)
	assert.Contains(t, result.Reasoning, "Applied correction pattern: set_field (confidence: 0.80)")
}

func TestDecisionEngine_RecallFailureDegrades(t *testing.T) {
	base := newTestStack(t).mem
	base.VendorPatterns = &mockVendorPatternRepo{
		VendorPatternRepository: base.VendorPatterns,
		listByVendorFunc: func(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error) {
			return nil, errStoreDown
		},
	}
	s := newTestStackWith(t, base)

	result, err := s.decisions.ProcessInvoice(context.Background(), supplierInvoice(), nil, nil)
	require.NoError(t, err)

	assert.True(t, result.RequiresHumanReview)
	assert.Empty(t, result.ProposedCorrections)
	assert.Equal(t, 1, s.metrics.count("recall_failure:"+string(entity.FamilyVendor)))
}

func TestDecisionEngine_AuditTrailOrder(t *testing.T) {
	s := newTestStack(t)
	s.seedVendorPattern(t, "Supplier GmbH", entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
		entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate"}, 0.7)

	result, err := s.decisions.ProcessInvoice(context.Background(), supplierInvoice(), nil, nil)
	require.NoError(t, err)

	var ops []string
	for _, e := range result.AuditTrail {
		ops = append(ops, string(e.Step)+"/"+e.Operation)
	}
	assert.Equal(t, []string{
		"recall/start_processing",
		"recall/vendor_memory",
		"apply/" + string(entity.KindServiceDateMapping),
		"recall/correction_memory",
		"decide/final_decision",
	}, ops)
}

func TestDecisionEngine_RejectsInvalidInvoice(t *testing.T) {
	s := newTestStack(t)
	invoice := supplierInvoice()
	invoice.Vendor = ""

	_, err := s.decisions.ProcessInvoice(context.Background(), invoice, nil, nil)
	assert.ErrorIs(t, err, entity.ErrInvalidInvoice)
}

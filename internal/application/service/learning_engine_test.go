package service

import (
	"context"
	"testing"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearningEngine_CurrencyFromText(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	invoice := partsInvoice()
	invoice.InvoiceID = "INV-B-003"
	invoice.Fields.Currency = ""
	correction := &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "currency", From: entity.NullValue(), To: entity.StringValue("EUR"), Reason: "Currency stated in raw text"},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}

	updates, err := s.learning.LearnFromCorrection(ctx, invoice, correction, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Learned: Parts AG currency can be recovered from rawText"}, updates)

	snapshot, err := s.store.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snapshot.VendorPatterns, 1)
	p := snapshot.VendorPatterns[0]
	assert.Equal(t, entity.PatternTypeFieldMapping, p.Type)
	assert.Equal(t, entity.PatternKeyCurrencyFromText, p.Key)
	assert.Equal(t, 0.6, p.Confidence)
	require.IsType(t, entity.CurrencyFromText{}, p.Value)
	assert.Equal(t, "EUR", p.Value.(entity.CurrencyFromText).Currency)

	require.Len(t, snapshot.Resolutions, 1)
	assert.Equal(t, entity.IssueMissingField, snapshot.Resolutions[0].IssueType)
	assert.Equal(t, "currency", snapshot.Resolutions[0].IssueDescription)
	assert.Equal(t, entity.FinalDecisionApproved, snapshot.Resolutions[0].HumanAction)
	assert.Empty(t, snapshot.CorrectionPatterns)
}

func TestLearningEngine_RuleTable(t *testing.T) {
	tests := []struct {
		name        string
		invoice     *entity.Invoice
		correction  entity.FieldCorrection
		wantUpdates []string
		wantType    entity.PatternType
		wantKey     string
		wantValue   entity.PatternValue
		wantConf    float64
	}{
		{
			name:        "service date from label",
			invoice:     supplierInvoice(),
			correction:  entity.FieldCorrection{Field: "serviceDate", From: entity.NullValue(), To: entity.StringValue("2024-01-01"), Reason: "Leistungsdatum present"},
			wantUpdates: []string{`Learned: Supplier GmbH uses "Leistungsdatum" for serviceDate`},
			wantType:    entity.PatternTypeFieldMapping,
			wantKey:     entity.PatternKeyServiceDate,
			wantValue:   entity.ServiceDateMapping{Source: "Leistungsdatum", Target: "serviceDate", Example: "2024-01-01"},
			wantConf:    0.7,
		},
		{
			name:        "vat included in gross total",
			invoice:     partsInvoice(),
			correction:  entity.FieldCorrection{Field: "grossTotal", From: entity.NumberValue(2400), To: entity.NumberValue(2380), Reason: "Raw text says VAT included"},
			wantUpdates: []string{"Learned: Parts AG includes VAT in stated totals"},
			wantType:    entity.PatternTypeTaxBehavior,
			wantKey:     entity.PatternKeyVatIncluded,
			wantValue:   entity.VatIncluded{Behavior: "vat_already_included", Indicators: []string{"incl", "inkl", "included"}, Recalculation: "gross_to_net"},
			wantConf:    0.7,
		},
		{
			name:        "discount terms from raw text",
			invoice:     freightInvoice(),
			correction:  entity.FieldCorrection{Field: "discountTerms", From: entity.NullValue(), To: entity.StringValue("2% Skonto within 10 days"), Reason: "Skonto noted"},
			wantUpdates: []string{"Learned: Freight & Co discount terms pattern"},
			wantType:    entity.PatternTypeDiscountTerms,
			wantKey:     entity.PatternKeySkonto,
			wantValue:   entity.DiscountTerms{Terms: "2% Skonto if paid within 10 days", Detection: "rawText_pattern"},
			wantConf:    0.75,
		},
		{
			name:        "sku from description",
			invoice:     freightInvoice(),
			correction:  entity.FieldCorrection{Field: "lineItems[0].sku", From: entity.NullValue(), To: entity.StringValue("FREIGHT"), Reason: "Seefracht is freight"},
			wantUpdates: []string{"Learned: SKU mapping for Freight & Co"},
			wantType:    entity.PatternTypeSkuMapping,
			wantKey:     entity.SkuPatternKey("FREIGHT"),
			wantValue:   entity.SkuMapping{Description: "Seefracht / Shipping", SKU: "FREIGHT"},
			wantConf:    0.7,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStack(t)
			ctx := context.Background()

			updates, err := s.learning.LearnFromCorrection(ctx, tt.invoice, &entity.HumanCorrection{
				InvoiceID:     tt.invoice.InvoiceID,
				Vendor:        tt.invoice.Vendor,
				Corrections:   []entity.FieldCorrection{tt.correction},
				FinalDecision: entity.FinalDecisionApproved,
			}, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantUpdates, updates)

			stored := s.store.RecallVendorPatternsOfType(ctx, tt.invoice.Vendor, tt.wantType)
			require.Len(t, stored, 1)
			assert.Equal(t, tt.wantKey, stored[0].Key)
			assert.Equal(t, tt.wantValue, stored[0].Value)
			assert.Equal(t, tt.wantConf, stored[0].Confidence)
			assert.Equal(t, 0, stored[0].TimesApplied)
			assert.Equal(t, 1, stored[0].TimesSuccessful)
		})
	}
}

func TestLearningEngine_POCorrectionAddsGlobalRule(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	invoice := freightInvoice()
	updates, err := s.learning.LearnFromCorrection(ctx, invoice, &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "poNumber", From: entity.NullValue(), To: entity.StringValue("PO-C-901"), Reason: "Matched manually"},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Learned: PO matching pattern for Freight & Co"}, updates)

	rules := s.store.RecallCorrectionPatterns(ctx, "Some Other Vendor")
	require.Len(t, rules, 1)
	assert.True(t, rules[0].IsGlobal())
	assert.Equal(t, entity.CorrectionTypePOMatching, rules[0].CorrectionType)
	assert.Equal(t, 0.65, rules[0].Confidence)
	assert.Equal(t, entity.MissingPO{MissingPO: true, HasLineItems: true}, rules[0].Condition)
	assert.Equal(t, entity.MatchByVendorDateItems{MaxDaysDiff: 30}, rules[0].Action)
	assert.Equal(t, []string{invoice.InvoiceID}, rules[0].SourceInvoiceIDs)

	history := s.store.RecallResolutionHistory(ctx, invoice.Vendor, "")
	require.Len(t, history, 1)
	assert.Equal(t, entity.IssuePOMatching, history[0].IssueType)
}

func TestLearningEngine_RelearningMergesCounters(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	invoice := supplierInvoice()
	correction := &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "serviceDate", From: entity.NullValue(), To: entity.StringValue("2024-01-01")},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}

	for i := 0; i < 3; i++ {
		_, err := s.learning.LearnFromCorrection(ctx, invoice, correction, nil)
		require.NoError(t, err)
	}

	patterns := s.store.RecallVendorPatterns(ctx, invoice.Vendor)
	require.Len(t, patterns, 1)
	assert.Equal(t, 3, patterns[0].TimesSuccessful)
	assert.Equal(t, 0.7, patterns[0].Confidence)
	assert.NotNil(t, patterns[0].LastAppliedAt)
	assert.Len(t, s.store.RecallResolutionHistory(ctx, invoice.Vendor, ""), 3)
}

func TestLearningEngine_ResolutionCapturesPriorDecision(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	invoice := partsInvoice()
	prior := &entity.ProcessingResult{
		ConfidenceScore:     0.45,
		ProposedCorrections: []string{"Recalculated VAT (included in total): net=2016.81, tax=383.19"},
	}
	_, err := s.learning.LearnFromCorrection(ctx, invoice, &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "grossTotal", From: entity.NumberValue(2400), To: entity.NumberValue(2380), Reason: "Raw text indicates totals already include VAT; extractor overestimated"},
			{Field: "taxTotal", From: entity.NumberValue(400), To: entity.NumberValue(380), Reason: "Recalculated from grossTotal and taxRate"},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}, prior)
	require.NoError(t, err)

	history := s.store.RecallResolutionHistory(ctx, invoice.Vendor, entity.IssueTaxCalculation)
	require.Len(t, history, 1)
	assert.Equal(t, "grossTotal, taxTotal", history[0].IssueDescription)
	assert.Equal(t, 0.45, history[0].Context.PriorConfidence)
	assert.Equal(t, prior.ProposedCorrections, history[0].Context.PriorProposedCorrections)
	assert.Len(t, history[0].CorrectionApplied, 2)

	// "already include VAT" does not contain the "vat included" trigger
	assert.Empty(t, s.store.RecallVendorPatterns(ctx, invoice.Vendor))

	trail, err := s.mem.Audit.ListByInvoice(ctx, invoice.InvoiceID)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "processing_correction", trail[0].Operation)
	assert.Equal(t, "stored_learnings", trail[1].Operation)
}

func TestLearningEngine_SkipsSkuWithoutLineItem(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	invoice := freightInvoice()
	updates, err := s.learning.LearnFromCorrection(ctx, invoice, &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "lineItems[5].sku", From: entity.NullValue(), To: entity.StringValue("FREIGHT")},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, updates)

	history := s.store.RecallResolutionHistory(ctx, invoice.Vendor, "")
	require.Len(t, history, 1)
	assert.Equal(t, entity.IssueLineItemMapping, history[0].IssueType)
}

func TestLearningEngine_WriteFailureAborts(t *testing.T) {
	base := newTestStack(t).mem
	base.VendorPatterns = &mockVendorPatternRepo{
		VendorPatternRepository: base.VendorPatterns,
		createFunc: func(ctx context.Context, pattern *entity.VendorPattern) error {
			return errStoreDown
		},
	}
	s := newTestStackWith(t, base)
	ctx := context.Background()

	invoice := supplierInvoice()
	_, err := s.learning.LearnFromCorrection(ctx, invoice, &entity.HumanCorrection{
		InvoiceID: invoice.InvoiceID,
		Vendor:    invoice.Vendor,
		Corrections: []entity.FieldCorrection{
			{Field: "serviceDate", From: entity.NullValue(), To: entity.StringValue("2024-01-01")},
		},
		FinalDecision: entity.FinalDecisionApproved,
	}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrStoreUnavailable)
	assert.ErrorIs(t, err, errStoreDown)
	assert.Empty(t, s.store.RecallResolutionHistory(ctx, invoice.Vendor, ""))
}

func TestCategorizeIssue(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   entity.IssueType
	}{
		{name: "tax field", fields: []string{"taxTotal"}, want: entity.IssueTaxCalculation},
		{name: "total field wins over service date", fields: []string{"serviceDate", "grossTotal"}, want: entity.IssueTaxCalculation},
		{name: "service date", fields: []string{"serviceDate"}, want: entity.IssueMissingField},
		{name: "currency", fields: []string{"currency"}, want: entity.IssueMissingField},
		{name: "po number", fields: []string{"poNumber"}, want: entity.IssuePOMatching},
		{name: "line item", fields: []string{"lineItems[0].sku"}, want: entity.IssueLineItemMapping},
		{name: "po wins over line item", fields: []string{"lineItems[0].sku", "poNumber"}, want: entity.IssuePOMatching},
		{name: "other", fields: []string{"discountTerms"}, want: entity.IssueGeneralCorrection},
		{name: "case sensitive total", fields: []string{"total"}, want: entity.IssueGeneralCorrection},
		{name: "empty", fields: nil, want: entity.IssueGeneralCorrection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CategorizeIssue(tt.fields))
		})
	}
}

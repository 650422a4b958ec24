package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// Initial confidences of synthesized patterns
const (
	serviceDateConfidence = 0.7
	vatIncludedConfidence = 0.7
	currencyConfidence    = 0.6
	poMatchingConfidence  = 0.65
	discountConfidence    = 0.75
	skuMappingConfidence  = 0.7
)

const serviceDateSourceLabel = "Leistungsdatum"

var (
	skontoTermsRe = regexp.MustCompile(`\d+%\s*[Ss]konto.*?\d+\s*days`)
	skuPathRe     = regexp.MustCompile(`^lineItems\[(\d+)\]\.sku$`)
)

// LearningEngine turns a reviewer's corrections into vendor patterns and rules
type LearningEngine interface {
	// LearnFromCorrection returns human-readable summaries of what was learned.
	// prior may be nil when the reviewed decision is not available.
	LearnFromCorrection(ctx context.Context, invoice *entity.Invoice, correction *entity.HumanCorrection, prior *entity.ProcessingResult) ([]string, error)
}

type learningEngineImpl struct {
	store   PatternStore
	audit   port.AuditSink
	metrics port.MemoryMetrics
	logger  Logger
}

// NewLearningEngine creates a new LearningEngine
func NewLearningEngine(store PatternStore, audit port.AuditSink, metrics port.MemoryMetrics, logger Logger) LearningEngine {
	return &learningEngineImpl{
		store:   store,
		audit:   audit,
		metrics: metricsOrNop(metrics),
		logger:  logger,
	}
}

// LearnFromCorrection tests each correction against every learning rule; one
// correction may synthesize several patterns. A resolution record is always appended.
func (e *learningEngineImpl) LearnFromCorrection(ctx context.Context, invoice *entity.Invoice, correction *entity.HumanCorrection, prior *entity.ProcessingResult) ([]string, error) {
	if err := correction.Validate(); err != nil {
		return nil, err
	}

	e.audit.Record(ctx, invoice.InvoiceID, entity.AuditStepLearn, "processing_correction", map[string]interface{}{
		"vendor":          correction.Vendor,
		"correctionCount": len(correction.Corrections),
		"decision":        correction.FinalDecision,
	})

	updates := []string{}
	for _, corr := range correction.Corrections {
		learned, err := e.learnFrom(ctx, invoice, correction.Vendor, corr)
		if err != nil {
			e.logger.Error("Learning aborted", "invoice_id", invoice.InvoiceID, "field", corr.Field, "error", err)
			return nil, fmt.Errorf("learn from %s correction: %w", corr.Field, err)
		}
		updates = append(updates, learned...)
	}

	record := &entity.ResolutionRecord{
		InvoiceID:         invoice.InvoiceID,
		Vendor:            correction.Vendor,
		IssueType:         CategorizeIssue(correction.FieldNames()),
		IssueDescription:  strings.Join(correction.FieldNames(), ", "),
		HumanAction:       correction.FinalDecision,
		CorrectionApplied: correction.Corrections,
	}
	if prior != nil {
		record.Context = entity.ResolutionContext{
			PriorConfidence:          prior.ConfidenceScore,
			PriorProposedCorrections: prior.ProposedCorrections,
		}
	}
	if _, err := e.store.InsertResolutionRecord(ctx, record); err != nil {
		return nil, fmt.Errorf("store resolution record: %w", err)
	}

	e.audit.Record(ctx, invoice.InvoiceID, entity.AuditStepLearn, "stored_learnings", map[string]interface{}{
		"updateCount": len(updates),
		"updates":     updates,
		"issueType":   string(record.IssueType),
	})

	e.logger.Info("Learned from human correction",
		"invoice_id", invoice.InvoiceID,
		"vendor", correction.Vendor,
		"corrections", len(correction.Corrections),
		"updates", len(updates))

	return updates, nil
}

// learnFrom applies the non-exclusive rule table to one correction
func (e *learningEngineImpl) learnFrom(ctx context.Context, invoice *entity.Invoice, vendor string, corr entity.FieldCorrection) ([]string, error) {
	var updates []string
	reason := strings.ToLower(corr.Reason)

	if corr.Field == string(entity.FieldServiceDate) && corr.From.IsNull() {
		err := e.upsert(ctx, invoice.Vendor, entity.PatternTypeFieldMapping, entity.PatternKeyServiceDate,
			entity.ServiceDateMapping{
				Source:  serviceDateSourceLabel,
				Target:  string(entity.FieldServiceDate),
				Example: literal(corr.To),
			}, serviceDateConfidence)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Learned: %s uses %q for serviceDate", vendor, serviceDateSourceLabel))
	}

	if (corr.Field == string(entity.FieldTaxTotal) || corr.Field == string(entity.FieldGrossTotal)) &&
		strings.Contains(reason, "vat included") {
		err := e.upsert(ctx, invoice.Vendor, entity.PatternTypeTaxBehavior, entity.PatternKeyVatIncluded,
			entity.VatIncluded{
				Behavior:      "vat_already_included",
				Indicators:    []string{"incl", "inkl", "included"},
				Recalculation: "gross_to_net",
			}, vatIncludedConfidence)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Learned: %s includes VAT in stated totals", vendor))
	}

	if corr.Field == string(entity.FieldCurrency) && corr.From.IsNull() {
		err := e.upsert(ctx, invoice.Vendor, entity.PatternTypeFieldMapping, entity.PatternKeyCurrencyFromText,
			entity.CurrencyFromText{
				Currency: literal(corr.To),
				Pattern:  "text_extraction",
			}, currencyConfidence)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Learned: %s currency can be recovered from rawText", vendor))
	}

	if corr.Field == string(entity.FieldPONumber) && corr.From.IsNull() {
		_, err := e.store.InsertCorrectionPattern(ctx, &entity.CorrectionPattern{
			CorrectionType:   entity.CorrectionTypePOMatching,
			Condition:        entity.MissingPO{MissingPO: true, HasLineItems: true},
			Action:           entity.MatchByVendorDateItems{MaxDaysDiff: entity.DefaultPOMatchWindowDays},
			Confidence:       poMatchingConfidence,
			TimesSuccessful:  1,
			SourceInvoiceIDs: []string{invoice.InvoiceID},
		})
		if err != nil {
			return nil, err
		}
		e.metrics.IncPatternLearned(string(entity.CorrectionTypePOMatching))
		updates = append(updates, fmt.Sprintf("Learned: PO matching pattern for %s", vendor))
	}

	if corr.Field == string(entity.FieldDiscountTerms) || strings.Contains(reason, "skonto") {
		terms := skontoTermsRe.FindString(invoice.RawText)
		if terms == "" {
			terms = literal(corr.To)
		}
		err := e.upsert(ctx, invoice.Vendor, entity.PatternTypeDiscountTerms, entity.PatternKeySkonto,
			entity.DiscountTerms{
				Terms:     terms,
				Detection: "rawText_pattern",
			}, discountConfidence)
		if err != nil {
			return nil, err
		}
		updates = append(updates, fmt.Sprintf("Learned: %s discount terms pattern", vendor))
	}

	if m := skuPathRe.FindStringSubmatch(corr.Field); m != nil {
		learned, err := e.learnSkuMapping(ctx, invoice, m[1], corr)
		if err != nil {
			return nil, err
		}
		if learned {
			updates = append(updates, fmt.Sprintf("Learned: SKU mapping for %s", vendor))
		}
	}

	return updates, nil
}

// learnSkuMapping skips items that are missing or have no description
func (e *learningEngineImpl) learnSkuMapping(ctx context.Context, invoice *entity.Invoice, index string, corr entity.FieldCorrection) (bool, error) {
	i, err := strconv.Atoi(index)
	if err != nil || i < 0 || i >= len(invoice.Fields.LineItems) {
		return false, nil
	}
	item := invoice.Fields.LineItems[i]
	sku := literal(corr.To)
	if item.Description == "" || sku == "" {
		return false, nil
	}

	err = e.upsert(ctx, invoice.Vendor, entity.PatternTypeSkuMapping, entity.SkuPatternKey(sku),
		entity.SkuMapping{
			Description: item.Description,
			SKU:         sku,
		}, skuMappingConfidence)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e *learningEngineImpl) upsert(ctx context.Context, vendor string, patternType entity.PatternType, key string, value entity.PatternValue, confidence float64) error {
	_, err := e.store.UpsertVendorPattern(ctx, &entity.VendorPattern{
		Vendor:          vendor,
		Type:            patternType,
		Key:             key,
		Value:           value,
		Confidence:      confidence,
		TimesSuccessful: 1,
	})
	if err != nil {
		return err
	}
	e.metrics.IncPatternLearned(string(value.Kind()))
	return nil
}

// CategorizeIssue derives the issue category from corrected field names.
// The first matching category in priority order wins.
func CategorizeIssue(fields []string) entity.IssueType {
	anyField := func(match func(string) bool) bool {
		for _, f := range fields {
			if match(f) {
				return true
			}
		}
		return false
	}

	switch {
	case anyField(func(f string) bool { return strings.Contains(f, "tax") || strings.Contains(f, "Total") }):
		return entity.IssueTaxCalculation
	case anyField(func(f string) bool { return f == string(entity.FieldServiceDate) }):
		return entity.IssueMissingField
	case anyField(func(f string) bool { return f == string(entity.FieldCurrency) }):
		return entity.IssueMissingField
	case anyField(func(f string) bool { return f == string(entity.FieldPONumber) }):
		return entity.IssuePOMatching
	case anyField(func(f string) bool { return strings.Contains(f, string(entity.FieldLineItems)) }):
		return entity.IssueLineItemMapping
	default:
		return entity.IssueGeneralCorrection
	}
}

// literal renders a corrected value as the string stored in pattern payloads
func literal(v entity.FieldValue) string {
	if v.IsNull() {
		return ""
	}
	if s, ok := v.AsString(); ok {
		return s
	}
	return v.String()
}

package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
)

// Decision outcomes, also used as metric labels
const (
	OutcomeAutoAccepted      = "auto_accepted"
	OutcomeDuplicate         = "duplicate"
	OutcomeValidationIssues  = "validation_issues"
	OutcomeNoLearnedPatterns = "no_learned_patterns"
	OutcomeBelowThreshold    = "below_threshold"
)

// DecisionConfig holds the decision policy parameters
type DecisionConfig struct {
	AutoAcceptThreshold float64
	MaxConfidence       float64
	POMatchWindowDays   int
	POMatchConfidence   float64
}

// DefaultDecisionConfig returns default configuration
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		AutoAcceptThreshold: entity.DefaultAutoAcceptThreshold,
		MaxConfidence:       entity.MaxConfidenceScore,
		POMatchWindowDays:   entity.DefaultPOMatchWindowDays,
		POMatchConfidence:   entity.DefaultPOMatchConfidence,
	}
}

// DecisionEngine normalizes an invoice with learned memory and decides whether
// it can be auto-accepted
type DecisionEngine interface {
	ProcessInvoice(ctx context.Context, invoice *entity.Invoice, purchaseOrders []entity.PurchaseOrder, deliveryNotes []entity.DeliveryNote) (*entity.ProcessingResult, error)
}

type decisionEngineImpl struct {
	store    PatternStore
	audit    port.AuditSink
	metrics  port.MemoryMetrics
	config   DecisionConfig
	handlers map[entity.PatternKind]patternHandler
	logger   Logger
}

// NewDecisionEngine creates a new DecisionEngine
func NewDecisionEngine(store PatternStore, audit port.AuditSink, metrics port.MemoryMetrics, config DecisionConfig, logger Logger) DecisionEngine {
	return &decisionEngineImpl{
		store:    store,
		audit:    audit,
		metrics:  metricsOrNop(metrics),
		config:   config,
		handlers: defaultPatternHandlers(),
		logger:   logger,
	}
}

// decisionRun accumulates the trace of one processing pass
type decisionRun struct {
	ctx       context.Context
	invoiceID string
	result    *entity.ProcessingResult
	reasons   []string
	samples   []float64
}

func (r *decisionRun) applied(corrections []string, reasoning string, confidence float64) {
	r.result.ProposedCorrections = append(r.result.ProposedCorrections, corrections...)
	r.reasons = append(r.reasons, reasoning)
	r.samples = append(r.samples, confidence)
}

func (e *decisionEngineImpl) record(run *decisionRun, step entity.AuditStep, operation string, details map[string]interface{}) {
	entry := e.audit.Record(run.ctx, run.invoiceID, step, operation, details)
	run.result.AuditTrail = append(run.result.AuditTrail, entry)
}

// ProcessInvoice runs the decision pipeline. The input invoice is never mutated.
func (e *decisionEngineImpl) ProcessInvoice(ctx context.Context, invoice *entity.Invoice, purchaseOrders []entity.PurchaseOrder, deliveryNotes []entity.DeliveryNote) (*entity.ProcessingResult, error) {
	if err := invoice.Validate(); err != nil {
		return nil, err
	}

	run := &decisionRun{
		ctx:       ctx,
		invoiceID: invoice.InvoiceID,
		result: &entity.ProcessingResult{
			NormalizedInvoice:   invoice.Fields.Clone(),
			ProposedCorrections: []string{},
			RequiresHumanReview: true,
			ConfidenceScore:     invoice.Confidence,
			MemoryUpdates:       []string{},
			AuditTrail:          []entity.AuditEntry{},
		},
		samples: []float64{invoice.Confidence},
	}
	fields := &run.result.NormalizedInvoice

	e.record(run, entity.AuditStepRecall, "start_processing", map[string]interface{}{
		"vendor":         invoice.Vendor,
		"invoiceNumber":  invoice.Fields.InvoiceNumber,
		"purchaseOrders": len(purchaseOrders),
		"deliveryNotes":  len(deliveryNotes),
	})

	if duplicate := e.store.DetectDuplicate(ctx, invoice); duplicate != nil {
		run.result.ConfidenceScore = 0
		run.result.Reasoning = fmt.Sprintf(
			"DUPLICATE DETECTED: Invoice %s from %s appears to be a duplicate. Similar invoice already processed.",
			invoice.Fields.InvoiceNumber, invoice.Vendor)
		e.record(run, entity.AuditStepDecide, "duplicate_detected", map[string]interface{}{
			"original": duplicate.InvoiceID,
		})
		e.metrics.IncDuplicateDetected()
		e.metrics.ObserveDecision(OutcomeDuplicate, 0)
		e.logger.Info("Duplicate invoice detected",
			"invoice_id", invoice.InvoiceID, "original_invoice_id", duplicate.InvoiceID)
		return run.result, nil
	}

	e.applyVendorPatterns(run, invoice, fields)

	if fields.PONumber == "" {
		if po := matchPurchaseOrder(invoice.Vendor, fields, purchaseOrders, e.config.POMatchWindowDays); po != nil {
			fields.PONumber = po.PONumber
			run.applied(
				[]string{fmt.Sprintf("Matched to PO: %s", po.PONumber)},
				fmt.Sprintf("Auto-matched to purchase order %s based on vendor, date proximity, and line items", po.PONumber),
				e.config.POMatchConfidence,
			)
			e.record(run, entity.AuditStepApply, "po_match", map[string]interface{}{"poNumber": po.PONumber})
		}
	}

	e.applyCorrectionRules(run, invoice, fields)

	score := clampConfidence(mean(run.samples), e.config.MaxConfidence)
	run.result.ConfidenceScore = score

	issues := detectIssues(fields)
	outcome := e.decide(run, score, issues)
	run.result.Reasoning = strings.Join(run.reasons, " | ")

	e.record(run, entity.AuditStepDecide, "final_decision", map[string]interface{}{
		"requiresReview": run.result.RequiresHumanReview,
		"confidence":     score,
		"corrections":    len(run.result.ProposedCorrections),
		"issues":         issues,
	})
	e.metrics.ObserveDecision(outcome, score)

	e.logger.Info("Invoice processed",
		"invoice_id", invoice.InvoiceID,
		"vendor", invoice.Vendor,
		"outcome", outcome,
		"confidence", score,
		"corrections", len(run.result.ProposedCorrections))

	return run.result, nil
}

func (e *decisionEngineImpl) applyVendorPatterns(run *decisionRun, invoice *entity.Invoice, fields *entity.InvoiceFields) {
	patterns := e.store.RecallVendorPatterns(run.ctx, invoice.Vendor)

	types := make([]string, 0, len(patterns))
	for _, p := range patterns {
		types = append(types, string(p.Type))
	}
	e.record(run, entity.AuditStepRecall, "vendor_memory", map[string]interface{}{
		"count":    len(patterns),
		"patterns": types,
	})

	for _, p := range patterns {
		kind := p.Kind()
		handler, ok := e.handlers[kind]
		if !ok {
			continue
		}
		outcome, applied := handler(invoice, p, fields)
		if !applied {
			continue
		}

		run.applied(outcome.corrections, outcome.reasoning, p.Confidence)
		e.record(run, entity.AuditStepApply, string(kind), map[string]interface{}{
			"patternId":  p.ID,
			"patternKey": p.Key,
			"confidence": p.Confidence,
		})
		e.metrics.IncPatternApplied(string(kind))
	}
}

func (e *decisionEngineImpl) applyCorrectionRules(run *decisionRun, invoice *entity.Invoice, fields *entity.InvoiceFields) {
	rules := e.store.RecallCorrectionPatterns(run.ctx, invoice.Vendor)
	e.record(run, entity.AuditStepRecall, "correction_memory", map[string]interface{}{
		"count": len(rules),
	})

	for _, rule := range rules {
		predicate, ok := rule.Condition.(entity.FieldPredicate)
		if !ok || !predicate.Matches(fields) {
			continue
		}
		mutation, ok := rule.Action.(entity.FieldMutation)
		if !ok {
			continue
		}
		correction, err := mutation.Apply(fields)
		if err != nil {
			e.logger.Warn("Correction rule not applicable",
				"invoice_id", invoice.InvoiceID, "rule_id", rule.ID, "error", err)
			continue
		}

		run.applied(
			[]string{correction},
			fmt.Sprintf("Applied correction pattern: %s (confidence: %.2f)", rule.CorrectionType, rule.Confidence),
			rule.Confidence,
		)
		e.record(run, entity.AuditStepApply, "correction_rule", map[string]interface{}{
			"ruleId":     rule.ID,
			"correction": correction,
			"confidence": rule.Confidence,
		})
		e.metrics.IncPatternApplied(string(rule.CorrectionType))
	}
}

// decide applies the decision policy, first matching rule wins
func (e *decisionEngineImpl) decide(run *decisionRun, score float64, issues []string) string {
	threshold := e.config.AutoAcceptThreshold
	corrections := len(run.result.ProposedCorrections)

	switch {
	case score >= threshold && len(issues) == 0 && corrections > 0:
		run.result.RequiresHumanReview = false
		run.reasons = append(run.reasons, fmt.Sprintf(
			"Confidence %.2f exceeds threshold %s. Auto-accepted with learned corrections.", score, formatAmount(threshold)))
		return OutcomeAutoAccepted
	case len(issues) > 0:
		run.reasons = append(run.reasons, "Flagged for review: Missing critical fields or validation issues detected.")
		return OutcomeValidationIssues
	case corrections == 0:
		run.reasons = append(run.reasons, "No learned patterns applied. Requires human review.")
		return OutcomeNoLearnedPatterns
	default:
		run.reasons = append(run.reasons, fmt.Sprintf(
			"Confidence %.2f below threshold %s. Requires human review.", score, formatAmount(threshold)))
		return OutcomeBelowThreshold
	}
}

// detectIssues lists the missing required fields
func detectIssues(fields *entity.InvoiceFields) []string {
	issues := []string{}
	if fields.Currency == "" {
		issues = append(issues, "missing currency")
	}
	if fields.InvoiceNumber == "" {
		issues = append(issues, "missing invoiceNumber")
	}
	if fields.InvoiceDate == "" {
		issues = append(issues, "missing invoiceDate")
	}
	if len(fields.LineItems) == 0 {
		issues = append(issues, "no line items")
	}
	return issues
}

func mean(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	return sum / float64(len(samples))
}

func clampConfidence(v, ceiling float64) float64 {
	return math.Min(ceiling, math.Max(0, v))
}

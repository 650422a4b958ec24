package entity

import (
	"encoding/json"
	"time"
)

// AuditStep is the phase of the memory loop an audit entry belongs to
type AuditStep string

const (
	AuditStepRecall AuditStep = "recall"
	AuditStepApply  AuditStep = "apply"
	AuditStepDecide AuditStep = "decide"
	AuditStepLearn  AuditStep = "learn"
)

// AuditEntry is one append-only audit trail row
type AuditEntry struct {
	ID        string          `json:"id"`
	InvoiceID string          `json:"invoiceId"`
	Step      AuditStep       `json:"step"`
	Operation string          `json:"operation"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ProcessingResult is the outcome of one decision pass over an invoice
type ProcessingResult struct {
	NormalizedInvoice   InvoiceFields `json:"normalizedInvoice"`
	ProposedCorrections []string      `json:"proposedCorrections"`
	RequiresHumanReview bool          `json:"requiresHumanReview"`
	Reasoning           string        `json:"reasoning"`
	ConfidenceScore     float64       `json:"confidenceScore"`
	MemoryUpdates       []string      `json:"memoryUpdates"`
	AuditTrail          []AuditEntry  `json:"auditTrail"`
}

// ProcessedInvoice is the orchestrator's durable record of the latest decision on an invoice
type ProcessedInvoice struct {
	InvoiceID           string          `json:"invoiceId"`
	Vendor              string          `json:"vendor"`
	Original            Invoice         `json:"originalData"`
	Normalized          InvoiceFields   `json:"normalizedData"`
	ProposedCorrections []string        `json:"proposedCorrections"`
	RequiresHumanReview bool            `json:"requiresHumanReview"`
	Reasoning           string          `json:"reasoning"`
	ConfidenceScore     float64         `json:"confidenceScore"`
	FinalDecision       string          `json:"finalDecision,omitempty"`
	PurchaseOrders      []PurchaseOrder `json:"purchaseOrders,omitempty"`
	DeliveryNotes       []DeliveryNote  `json:"deliveryNotes,omitempty"`
	ProcessedAt         time.Time       `json:"processedAt"` // first processing, kept across reprocessing
	UpdatedAt           time.Time       `json:"updatedAt"`   // latest decision or final decision
}

// NewProcessedInvoice builds the record persisted after a decision pass
func NewProcessedInvoice(inv *Invoice, result *ProcessingResult, pos []PurchaseOrder, dns []DeliveryNote, now time.Time) *ProcessedInvoice {
	return &ProcessedInvoice{
		InvoiceID:           inv.InvoiceID,
		Vendor:              inv.Vendor,
		Original:            *inv,
		Normalized:          result.NormalizedInvoice,
		ProposedCorrections: result.ProposedCorrections,
		RequiresHumanReview: result.RequiresHumanReview,
		Reasoning:           result.Reasoning,
		ConfidenceScore:     result.ConfidenceScore,
		PurchaseOrders:      pos,
		DeliveryNotes:       dns,
		ProcessedAt:         now,
		UpdatedAt:           now,
	}
}

// Result reconstructs the processing result the record was built from
func (p *ProcessedInvoice) Result() *ProcessingResult {
	return &ProcessingResult{
		NormalizedInvoice:   p.Normalized,
		ProposedCorrections: p.ProposedCorrections,
		RequiresHumanReview: p.RequiresHumanReview,
		Reasoning:           p.Reasoning,
		ConfidenceScore:     p.ConfidenceScore,
		MemoryUpdates:       []string{},
		AuditTrail:          []AuditEntry{},
	}
}

// ReviewStatus summarizes where the invoice stands in the review loop
func (p *ProcessedInvoice) ReviewStatus() string {
	switch {
	case p.FinalDecision != "":
		return ReviewStatusResolved
	case p.RequiresHumanReview:
		return ReviewStatusPendingReview
	default:
		return ReviewStatusAutoAccepted
	}
}

package entity

import (
	"fmt"
	"strings"
	"time"
)

// IssueType categorizes the problem a human resolved
type IssueType string

const (
	IssueTaxCalculation    IssueType = "tax_calculation"
	IssueMissingField      IssueType = "missing_field"
	IssuePOMatching        IssueType = "po_matching"
	IssueLineItemMapping   IssueType = "line_item_mapping"
	IssueGeneralCorrection IssueType = "general_correction"
)

// FieldCorrection is one atomic change a reviewer made
type FieldCorrection struct {
	Field  string     `json:"field"`
	From   FieldValue `json:"from"`
	To     FieldValue `json:"to"`
	Reason string     `json:"reason"`
}

// HumanCorrection is a reviewer's correction batch for one invoice
type HumanCorrection struct {
	InvoiceID     string            `json:"invoiceId"`
	Vendor        string            `json:"vendor"`
	Corrections   []FieldCorrection `json:"corrections"`
	FinalDecision string            `json:"finalDecision"`
}

// Validate checks the batch identifies an invoice and vendor
func (c *HumanCorrection) Validate() error {
	if strings.TrimSpace(c.InvoiceID) == "" {
		return fmt.Errorf("%w: invoiceId is required", ErrInvalidCorrection)
	}
	if strings.TrimSpace(c.Vendor) == "" {
		return fmt.Errorf("%w: vendor is required", ErrInvalidCorrection)
	}
	for i, corr := range c.Corrections {
		if strings.TrimSpace(corr.Field) == "" {
			return fmt.Errorf("%w: corrections[%d].field is required", ErrInvalidCorrection, i)
		}
	}
	return nil
}

// FieldNames returns the corrected field names in batch order
func (c *HumanCorrection) FieldNames() []string {
	names := make([]string, 0, len(c.Corrections))
	for _, corr := range c.Corrections {
		names = append(names, corr.Field)
	}
	return names
}

// ResolutionContext snapshots the decision the reviewer saw
type ResolutionContext struct {
	PriorConfidence          float64  `json:"confidence"`
	PriorProposedCorrections []string `json:"proposedCorrections"`
}

// ResolutionRecord is an append-only log entry of a human decision
type ResolutionRecord struct {
	ID                string            `json:"id"`
	InvoiceID         string            `json:"invoiceId"`
	Vendor            string            `json:"vendor"`
	IssueType         IssueType         `json:"issueType"`
	IssueDescription  string            `json:"issueDescription"`
	HumanAction       string            `json:"humanAction"`
	CorrectionApplied []FieldCorrection `json:"correctionApplied"`
	Context           ResolutionContext `json:"context"`
	CreatedAt         time.Time         `json:"createdAt"`
}

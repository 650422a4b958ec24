package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// CorrectionType is the correction_type column of correction memory
type CorrectionType string

const (
	CorrectionTypePOMatching CorrectionType = "po_matching"
	CorrectionTypeSetField   CorrectionType = "set_field"
)

// ConditionKind tags a stored rule condition
type ConditionKind string

const (
	ConditionFieldEquals ConditionKind = "field_equals"
	ConditionMissingPO   ConditionKind = "missing_po"
)

// ActionKind tags a stored rule action
type ActionKind string

const (
	ActionSetField               ActionKind = "set_field"
	ActionMatchByVendorDateItems ActionKind = "match_by_vendor_date_items"
)

// Condition is the predicate side of a correction rule
type Condition interface {
	ConditionKind() ConditionKind
}

// Action is the effect side of a correction rule
type Action interface {
	ActionKind() ActionKind
}

// FieldPredicate is a condition that can be evaluated against invoice fields
type FieldPredicate interface {
	Condition
	Matches(f *InvoiceFields) bool
}

// FieldMutation is an action that can be applied to invoice fields.
// Apply returns the human-readable correction it made.
type FieldMutation interface {
	Action
	Apply(f *InvoiceFields) (string, error)
}

// FieldEquals holds when the field at Path equals Value exactly
type FieldEquals struct {
	Path  FieldPath  `json:"field"`
	Value FieldValue `json:"value"`
}

func (FieldEquals) ConditionKind() ConditionKind { return ConditionFieldEquals }

// Matches evaluates the predicate against the current fields
func (c FieldEquals) Matches(f *InvoiceFields) bool {
	if c.Path.IsZero() {
		return false
	}
	current, ok := c.Path.Get(f)
	return ok && current.Equal(c.Value)
}

// MissingPO describes a rule learned from a missing purchase order number.
// It is not evaluated; PO matching runs as its own decision step.
type MissingPO struct {
	MissingPO    bool `json:"missing_po"`
	HasLineItems bool `json:"has_line_items"`
}

func (MissingPO) ConditionKind() ConditionKind { return ConditionMissingPO }

// SetField writes Value to the field at Path
type SetField struct {
	Path  FieldPath  `json:"set_field"`
	Value FieldValue `json:"value"`
}

func (SetField) ActionKind() ActionKind { return ActionSetField }

// Apply sets the field and returns the correction message
func (a SetField) Apply(f *InvoiceFields) (string, error) {
	if a.Path.IsZero() {
		return "", fmt.Errorf("%w: empty set_field path", ErrInvalidFieldPath)
	}
	if err := a.Path.Set(f, a.Value); err != nil {
		return "", err
	}
	return fmt.Sprintf("Set %s to %s", a.Path, a.Value), nil
}

// MatchByVendorDateItems describes the PO matching strategy. Descriptive only.
type MatchByVendorDateItems struct {
	MaxDaysDiff int `json:"max_days_diff"`
}

func (MatchByVendorDateItems) ActionKind() ActionKind { return ActionMatchByVendorDateItems }

type taggedPayload struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeCondition serializes a condition into its tagged envelope
func EncodeCondition(c Condition) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("nil condition")
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode condition: %w", err)
	}
	return json.Marshal(taggedPayload{Kind: string(c.ConditionKind()), Payload: payload})
}

// DecodeCondition parses a tagged condition envelope
func DecodeCondition(raw []byte) (Condition, error) {
	var env taggedPayload
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode condition envelope: %w", err)
	}
	switch ConditionKind(env.Kind) {
	case ConditionFieldEquals:
		var c FieldEquals
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return nil, fmt.Errorf("decode field_equals condition: %w", err)
		}
		return c, nil
	case ConditionMissingPO:
		var c MissingPO
		if err := json.Unmarshal(env.Payload, &c); err != nil {
			return nil, fmt.Errorf("decode missing_po condition: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown condition kind %q", env.Kind)
}

// EncodeAction serializes an action into its tagged envelope
func EncodeAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("nil action")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode action: %w", err)
	}
	return json.Marshal(taggedPayload{Kind: string(a.ActionKind()), Payload: payload})
}

// DecodeAction parses a tagged action envelope
func DecodeAction(raw []byte) (Action, error) {
	var env taggedPayload
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode action envelope: %w", err)
	}
	switch ActionKind(env.Kind) {
	case ActionSetField:
		var a SetField
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, fmt.Errorf("decode set_field action: %w", err)
		}
		return a, nil
	case ActionMatchByVendorDateItems:
		var a MatchByVendorDateItems
		if err := json.Unmarshal(env.Payload, &a); err != nil {
			return nil, fmt.Errorf("decode match_by_vendor_date_items action: %w", err)
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown action kind %q", env.Kind)
}

// CorrectionPattern is a learned conditional rule, vendor-scoped or global (Vendor nil)
type CorrectionPattern struct {
	ID               string         `json:"id"`
	Vendor           *string        `json:"vendor"`
	CorrectionType   CorrectionType `json:"correctionType"`
	Condition        Condition      `json:"-"`
	Action           Action         `json:"-"`
	Confidence       float64        `json:"confidence"`
	TimesApplied     int            `json:"timesApplied"`
	TimesSuccessful  int            `json:"timesSuccessful"`
	TimesFailed      int            `json:"timesFailed"`
	SourceInvoiceIDs []string       `json:"sourceInvoiceIds"`
	Version          int            `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// IsGlobal reports whether the rule applies to every vendor
func (p *CorrectionPattern) IsGlobal() bool {
	return p.Vendor == nil
}

// MarshalJSON renders condition and action as tagged envelopes
func (p CorrectionPattern) MarshalJSON() ([]byte, error) {
	type plain CorrectionPattern
	out := struct {
		plain
		Condition json.RawMessage `json:"condition,omitempty"`
		Action    json.RawMessage `json:"correctionAction,omitempty"`
	}{plain: plain(p)}

	if p.Condition != nil {
		raw, err := EncodeCondition(p.Condition)
		if err != nil {
			return nil, err
		}
		out.Condition = raw
	}
	if p.Action != nil {
		raw, err := EncodeAction(p.Action)
		if err != nil {
			return nil, err
		}
		out.Action = raw
	}
	return json.Marshal(out)
}

// VendorPtr returns a pointer to a copy of vendor for vendor-scoped rules
func VendorPtr(vendor string) *string {
	return &vendor
}

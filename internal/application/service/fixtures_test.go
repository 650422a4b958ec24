package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/require"
)

var errStoreDown = errors.New("store down")

// testStack wires the memory loop over an in-process store
type testStack struct {
	mem       port.MemoryStore
	metrics   *countingMetrics
	store     PatternStore
	audit     port.AuditSink
	decisions DecisionEngine
	learning  LearningEngine
	invoices  InvoiceService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	return newTestStackWith(t, memory.NewStore().MemoryStore())
}

func newTestStackWith(t *testing.T, mem port.MemoryStore) *testStack {
	t.Helper()

	metrics := &countingMetrics{counts: map[string]int{}}
	logger := NopLogger()
	store := NewPatternStore(mem, DefaultPatternStoreConfig(), metrics, logger)
	audit := NewAuditRecorder(mem.Audit, logger)
	decisions := NewDecisionEngine(store, audit, metrics, DefaultDecisionConfig(), logger)
	learning := NewLearningEngine(store, audit, metrics, logger)

	return &testStack{
		mem:       mem,
		metrics:   metrics,
		store:     store,
		audit:     audit,
		decisions: decisions,
		learning:  learning,
		invoices:  NewInvoiceService(decisions, learning, store, mem.ProcessedInvoices, mem.Audit, logger),
	}
}

// seedVendorPattern stores a pattern through the pattern store and returns it
func (s *testStack) seedVendorPattern(t *testing.T, vendor string, patternType entity.PatternType, key string, value entity.PatternValue, confidence float64) *entity.VendorPattern {
	t.Helper()
	p, err := s.store.UpsertVendorPattern(context.Background(), &entity.VendorPattern{
		Vendor:     vendor,
		Type:       patternType,
		Key:        key,
		Value:      value,
		Confidence: confidence,
	})
	require.NoError(t, err)
	return p
}

func supplierInvoice() *entity.Invoice {
	return &entity.Invoice{
		InvoiceID:  "INV-A-001",
		Vendor:     "Supplier GmbH",
		Confidence: 0.9,
		RawText:    "Rechnungsnr: INV-2024-001\nLeistungsdatum: 15.01.2024\nWidget 100 x 20,00 EUR",
		Fields: entity.InvoiceFields{
			InvoiceNumber: "INV-2024-001",
			InvoiceDate:   "2024-01-20",
			Currency:      "EUR",
			PONumber:      "PO-A-050",
			NetTotal:      2000,
			TaxRate:       0.19,
			TaxTotal:      380,
			GrossTotal:    2380,
			LineItems: []entity.LineItem{
				{SKU: "WIDGET-001", Description: "Widget", Qty: 100, UnitPrice: 20},
			},
		},
	}
}

func partsInvoice() *entity.Invoice {
	return &entity.Invoice{
		InvoiceID:  "INV-B-001",
		Vendor:     "Parts AG",
		Confidence: 0.9,
		RawText:    "Invoice PA-7781\nPrices incl. VAT (MwSt. inkl.)\nTotal: 2400.00 EUR",
		Fields: entity.InvoiceFields{
			InvoiceNumber: "PA-7781",
			InvoiceDate:   "05-02-2024",
			Currency:      "EUR",
			PONumber:      "PO-B-110",
			NetTotal:      2000,
			TaxRate:       0.19,
			TaxTotal:      400,
			GrossTotal:    2400,
			LineItems: []entity.LineItem{
				{SKU: "BOLT-99", Description: "Bolts M8", Qty: 200, UnitPrice: 10},
			},
		},
	}
}

func freightInvoice() *entity.Invoice {
	return &entity.Invoice{
		InvoiceID:  "INV-C-002",
		Vendor:     "Freight & Co",
		Confidence: 0.9,
		RawText:    "Invoice FC-2001\nSeefracht / Shipping 1 x 1000 EUR\n2% Skonto if paid within 10 days",
		Fields: entity.InvoiceFields{
			InvoiceNumber: "FC-2001",
			InvoiceDate:   "2024-03-20",
			Currency:      "EUR",
			NetTotal:      1000,
			TaxRate:       0.19,
			TaxTotal:      190,
			GrossTotal:    1190,
			LineItems: []entity.LineItem{
				{Description: "Seefracht / Shipping", Qty: 1, UnitPrice: 1000},
			},
		},
	}
}

func freightOrders() []entity.PurchaseOrder {
	return []entity.PurchaseOrder{
		{
			PONumber:  "PO-C-900",
			Vendor:    "Freight & Co",
			Date:      "2024-03-01",
			LineItems: []entity.OrderLine{{SKU: "FREIGHT", Qty: 1, UnitPrice: 1000}},
		},
		{
			PONumber:  "PO-C-901",
			Vendor:    "Freight & Co",
			Date:      "2024-03-15",
			LineItems: []entity.OrderLine{{SKU: "FREIGHT", Qty: 1, UnitPrice: 1000}},
		},
		{
			PONumber:  "PO-A-050",
			Vendor:    "Supplier GmbH",
			Date:      "2024-03-10",
			LineItems: []entity.OrderLine{{SKU: "FREIGHT", Qty: 1, UnitPrice: 1000}},
		},
	}
}

// countingMetrics records every metric call by name and label
type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) inc(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
}

func (m *countingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func (m *countingMetrics) ObserveDecision(outcome string, _ float64) { m.inc("decision:" + outcome) }
func (m *countingMetrics) IncPatternApplied(kind string)            { m.inc("applied:" + kind) }
func (m *countingMetrics) IncPatternLearned(kind string)            { m.inc("learned:" + kind) }
func (m *countingMetrics) IncRecallFailure(family string)           { m.inc("recall_failure:" + family) }
func (m *countingMetrics) IncDuplicateDetected()                    { m.inc("duplicate") }
func (m *countingMetrics) IncVersionConflict(family string)         { m.inc("conflict:" + family) }

// mockVendorPatternRepo overrides selected calls of a backing repository
type mockVendorPatternRepo struct {
	port.VendorPatternRepository
	listByVendorFunc func(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error)
	createFunc       func(ctx context.Context, pattern *entity.VendorPattern) error
	updateFunc       func(ctx context.Context, pattern *entity.VendorPattern) error
}

func (m *mockVendorPatternRepo) ListByVendor(ctx context.Context, vendor string, patternType entity.PatternType, minConfidence float64) ([]*entity.VendorPattern, error) {
	if m.listByVendorFunc != nil {
		return m.listByVendorFunc(ctx, vendor, patternType, minConfidence)
	}
	return m.VendorPatternRepository.ListByVendor(ctx, vendor, patternType, minConfidence)
}

func (m *mockVendorPatternRepo) Create(ctx context.Context, pattern *entity.VendorPattern) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, pattern)
	}
	return m.VendorPatternRepository.Create(ctx, pattern)
}

func (m *mockVendorPatternRepo) Update(ctx context.Context, pattern *entity.VendorPattern) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, pattern)
	}
	return m.VendorPatternRepository.Update(ctx, pattern)
}

// mockProcessedInvoiceRepo overrides selected calls of a backing repository
type mockProcessedInvoiceRepo struct {
	port.ProcessedInvoiceRepository
	listByVendorFunc   func(ctx context.Context, vendor, excludeInvoiceID string) ([]*entity.ProcessedInvoice, error)
	getByInvoiceIDFunc func(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error)
}

func (m *mockProcessedInvoiceRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*entity.ProcessedInvoice, error) {
	if m.getByInvoiceIDFunc != nil {
		return m.getByInvoiceIDFunc(ctx, invoiceID)
	}
	return m.ProcessedInvoiceRepository.GetByInvoiceID(ctx, invoiceID)
}

func (m *mockProcessedInvoiceRepo) ListByVendor(ctx context.Context, vendor, excludeInvoiceID string) ([]*entity.ProcessedInvoice, error) {
	if m.listByVendorFunc != nil {
		return m.listByVendorFunc(ctx, vendor, excludeInvoiceID)
	}
	return m.ProcessedInvoiceRepository.ListByVendor(ctx, vendor, excludeInvoiceID)
}

// mockResolutionRepo overrides selected calls of a backing repository
type mockResolutionRepo struct {
	port.ResolutionRepository
	listRecentFunc func(ctx context.Context, vendor string, issueType entity.IssueType, limit int) ([]*entity.ResolutionRecord, error)
}

func (m *mockResolutionRepo) ListRecent(ctx context.Context, vendor string, issueType entity.IssueType, limit int) ([]*entity.ResolutionRecord, error) {
	if m.listRecentFunc != nil {
		return m.listRecentFunc(ctx, vendor, issueType, limit)
	}
	return m.ResolutionRepository.ListRecent(ctx, vendor, issueType, limit)
}

// mockReportStore keeps saved reports in memory
type mockReportStore struct {
	saved map[string][]byte
}

func (m *mockReportStore) Save(ctx context.Context, name string, content []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = content
	return "/reports/" + name, nil
}

func (m *mockReportStore) Read(ctx context.Context, name string) ([]byte, error) {
	content, ok := m.saved[name]
	if !ok {
		return nil, entity.ErrNotFound
	}
	return content, nil
}

func (m *mockReportStore) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.saved))
	for name := range m.saved {
		names = append(names, name)
	}
	return names, nil
}

// setClock replaces the invoice service clock
func (s *testStack) setClock(now func() time.Time) {
	s.invoices.(*invoiceServiceImpl).now = now
}

package container

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/garyjia/invoice-memory/internal/domain/entity"
	"github.com/garyjia/invoice-memory/pkg/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(t *testing.T, driver string) *Config {
	cfg := DefaultConfig()
	cfg.Database.Driver = driver
	cfg.Database.Path = filepath.Join(t.TempDir(), "memory.db")
	cfg.ReportDir = filepath.Join(t.TempDir(), "reports")
	cfg.Metrics.Enabled = false
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Database.Driver = "mysql"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestContainer_Lifecycle(t *testing.T) {
	for _, driver := range []string{database.DriverSQLite, DriverMemory} {
		t.Run(driver, func(t *testing.T) {
			c, err := NewContainer(testConfig(t, driver), zap.NewNop())
			require.NoError(t, err)
			ctx := context.Background()

			assert.False(t, c.Health(ctx).Overall)

			require.NoError(t, c.Start(ctx, true))
			assert.True(t, c.Ready())
			assert.Error(t, c.Start(ctx, true))

			health := c.Health(ctx)
			assert.True(t, health.Overall)
			assert.True(t, health.Components["workers"].Healthy)

			invoice := &entity.Invoice{
				InvoiceID:  "INV-A-001",
				Vendor:     "Supplier GmbH",
				Confidence: 0.9,
				Fields: entity.InvoiceFields{
					InvoiceNumber: "INV-2024-001",
					InvoiceDate:   "12.01.2024",
					Currency:      "EUR",
					NetTotal:      2500,
					TaxRate:       0.19,
					TaxTotal:      475,
					GrossTotal:    2975,
					LineItems:     []entity.LineItem{{SKU: "WIDGET-001", Qty: 100, UnitPrice: 25}},
				},
			}
			_, err = c.Services().Invoices.ProcessInvoice(ctx, invoice, nil, nil)
			require.NoError(t, err)

			record, err := c.Store().ProcessedInvoices.GetByInvoiceID(ctx, "INV-A-001")
			require.NoError(t, err)
			assert.Equal(t, "Supplier GmbH", record.Vendor)

			require.NoError(t, c.Close())
			assert.False(t, c.Ready())
			assert.Error(t, c.Close())
		})
	}
}

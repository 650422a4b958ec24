package repository

import (
	"github.com/garyjia/invoice-memory/internal/application/port"
	"github.com/garyjia/invoice-memory/internal/infrastructure/persistence/sqldb"
	"go.uber.org/zap"
)

// NewMemoryStore wires the SQL repositories sharing one database handle
func NewMemoryStore(db *sqldb.DB, logger *zap.Logger) port.MemoryStore {
	return port.MemoryStore{
		VendorPatterns:     NewVendorPatternRepository(db, logger),
		CorrectionPatterns: NewCorrectionPatternRepository(db, logger),
		Resolutions:        NewResolutionRepository(db, logger),
		ProcessedInvoices:  NewProcessedInvoiceRepository(db, logger),
		Audit:              NewAuditRepository(db, logger),
		Tx:                 db,
	}
}

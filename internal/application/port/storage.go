package port

import "context"

// ReportStore persists generated memory reports
type ReportStore interface {
	// Save writes content under name and returns the stored location
	Save(ctx context.Context, name string, content []byte) (string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

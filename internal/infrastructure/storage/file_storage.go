package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/garyjia/invoice-memory/internal/application/port"
	"go.uber.org/zap"
)

// LocalReportStore implements port.ReportStore on the local filesystem
type LocalReportStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalReportStore creates a report store rooted at baseDir
func NewLocalReportStore(baseDir string, logger *zap.Logger) port.ReportStore {
	return &LocalReportStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Save writes a report file, creating the base directory on first use
func (s *LocalReportStore) Save(ctx context.Context, name string, content []byte) (string, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create report directory",
			zap.String("path", filepath.Dir(fullPath)),
			zap.Error(err))
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write report",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	s.logger.Debug("Report saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))

	return fullPath, nil
}

// Read returns a previously saved report
func (s *LocalReportStore) Read(ctx context.Context, name string) ([]byte, error) {
	fullPath, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		s.logger.Error("Failed to read report",
			zap.String("path", fullPath),
			zap.Error(err))
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return content, nil
}

// List returns saved report names in lexical order
func (s *LocalReportStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// resolve joins name to the base directory and rejects paths that escape it
func (s *LocalReportStore) resolve(name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("report name is required")
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, name))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes report directory: %s", name)
	}
	return absPath, nil
}

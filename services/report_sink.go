package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"unplug/models"

	"go.uber.org/zap"
)

// ReportSink receives the final health report on shutdown
type ReportSink interface {
	SaveHealthReport(ctx context.Context, report *models.HealthReport) error
}

// FileReportSink writes health reports as indented JSON to a local file
type FileReportSink struct {
	path   string
	logger *zap.Logger
}

func NewFileReportSink(path string, logger *zap.Logger) *FileReportSink {
	return &FileReportSink{path: path, logger: logger}
}

func (f *FileReportSink) SaveHealthReport(_ context.Context, report *models.HealthReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("error encoding health report: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("error writing health report: %w", err)
	}

	f.logger.Info("Health report saved", zap.String("path", f.path))
	return nil
}

// MultiReportSink saves to every sink and returns the first error
type MultiReportSink []ReportSink

func (m MultiReportSink) SaveHealthReport(ctx context.Context, report *models.HealthReport) error {
	var firstErr error
	for _, sink := range m {
		if err := sink.SaveHealthReport(ctx, report); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

package services

import (
	"context"
	"fmt"
	"time"

	"unplug/config"
	"unplug/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	analyticsReportsPath = "analytics-reports"
	healthReportsPath    = "health-reports"
)

// FirebaseService persists analytics reports and health reports in the Realtime Database
type FirebaseService struct {
	client *db.Client
	config *config.Config
	logger *zap.Logger
}

func NewFirebaseService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*FirebaseService, error) {
	conf := &firebase.Config{
		DatabaseURL: cfg.FirebaseDbUrl,
	}

	opt := option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	fs := &FirebaseService{
		client: client,
		config: cfg,
		logger: logger,
	}

	if err := fs.testConnection(ctx); err != nil {
		logger.Error("Firebase connection test failed", zap.Error(err))
		return nil, fmt.Errorf("firebase connection test failed: %w", err)
	}

	return fs, nil
}

// testConnection tests Firebase connection with retry logic
func (fs *FirebaseService) testConnection(ctx context.Context) error {
	maxRetries := 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		fs.logger.Info("Testing Firebase connection", zap.Int("attempt", attempt), zap.Int("max_retries", maxRetries))

		var data map[string]any
		err := fs.client.NewRef(healthReportsPath).OrderByKey().LimitToLast(1).Get(ctx, &data)
		if err == nil {
			fs.logger.Info("Firebase connection successful")
			return nil
		}

		fs.logger.Warn("Firebase connection failed",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}

	return fmt.Errorf("failed to connect to Firebase after %d attempts", maxRetries)
}

// recordKey orders children chronologically and stays unique across producers
func recordKey(ts time.Time) string {
	return fmt.Sprintf("%s_%s", ts.UTC().Format("20060102T150405000"), uuid.NewString()[:8])
}

// WriteBatch writes a batch of analytics reports in a single multi-path update
func (fs *FirebaseService) WriteBatch(ctx context.Context, reports []models.AnalyticsReport) error {
	if len(reports) == 0 {
		return nil
	}

	updates := make(map[string]any, len(reports))
	for _, r := range reports {
		updates[r.EntityID+"/"+recordKey(r.Timestamp)] = r
	}

	if err := fs.client.NewRef(analyticsReportsPath).Update(ctx, updates); err != nil {
		return fmt.Errorf("error writing analytics batch: %w", err)
	}

	fs.logger.Debug("Analytics batch written", zap.Int("batch_size", len(reports)))
	return nil
}

// SaveHealthReport stores a health report under health-reports/
func (fs *FirebaseService) SaveHealthReport(ctx context.Context, report *models.HealthReport) error {
	key := recordKey(report.ReportTimestamp)
	if err := fs.client.NewRef(healthReportsPath).Child(key).Set(ctx, report); err != nil {
		return fmt.Errorf("error saving health report: %w", err)
	}

	fs.logger.Info("Health report saved to Firebase", zap.String("key", key), zap.String("report_id", report.ID))
	return nil
}

// LatestHealthReport retrieves the most recently stored health report
func (fs *FirebaseService) LatestHealthReport(ctx context.Context) (*models.HealthReport, error) {
	var data map[string]models.HealthReport
	if err := fs.client.NewRef(healthReportsPath).OrderByKey().LimitToLast(1).Get(ctx, &data); err != nil {
		return nil, fmt.Errorf("error getting health report: %w", err)
	}

	for _, report := range data {
		return &report, nil
	}
	return nil, fmt.Errorf("no health report found")
}

// Close closes the Firebase connection
func (fs *FirebaseService) Close() error {
	fs.logger.Info("Closing Firebase service")
	// Firebase client doesn't require explicit closing but we log it
	return nil
}

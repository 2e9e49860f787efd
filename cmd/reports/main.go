package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"unplug/config"
	"unplug/services"

	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.FirebaseServiceAccountJSON == "" {
		logger.Fatal("FIREBASE_SERVICE_ACCOUNT_JSON environment variable is not set")
	}
	if cfg.FirebaseDbUrl == "" {
		logger.Fatal("FIREBASE_DB_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	firebaseService, err := services.NewFirebaseService(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Error initializing Firebase", zap.Error(err))
	}
	defer firebaseService.Close()

	report, err := firebaseService.LatestHealthReport(ctx)
	if err != nil {
		logger.Fatal("Error reading health report", zap.Error(err))
	}

	if report.Latest != nil {
		fmt.Printf("%s %s (score %.2f) at %s\n\n",
			report.Latest.SystemStatus.GetStatusEmoji(),
			report.Latest.SystemStatus,
			report.Latest.OverallHealthScore,
			report.ReportTimestamp.Format(time.RFC3339))
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		logger.Fatal("Error printing health report", zap.Error(err))
	}
}

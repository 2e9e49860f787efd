package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"unplug/models"

	"go.uber.org/zap"
)

// DeviceGatewayService delivers applied interventions to the home device gateway
type DeviceGatewayService struct {
	logger     *zap.Logger
	apiURL     string
	httpClient *http.Client
}

// DeviceGatewayPayload represents the payload sent to the device gateway API
type DeviceGatewayPayload struct {
	EntityID      string                         `json:"entity_id"`
	Timestamp     time.Time                      `json:"timestamp"`
	Interventions []models.SmartHomeIntervention `json:"interventions"`
}

// NewDeviceGatewayService creates a new device gateway client
func NewDeviceGatewayService(logger *zap.Logger, apiURL string) *DeviceGatewayService {
	return &DeviceGatewayService{
		logger: logger,
		apiURL: strings.TrimRight(apiURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Forward sends the interventions to the gateway via HTTP POST
func (g *DeviceGatewayService) Forward(ctx context.Context, entityID string, interventions []models.SmartHomeIntervention) error {
	if len(interventions) == 0 {
		return nil
	}

	payload := DeviceGatewayPayload{
		EntityID:      entityID,
		Timestamp:     time.Now(),
		Interventions: interventions,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/v1/interventions", g.apiURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Unplug-SmartHome/1.0")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Error("Failed to reach device gateway",
			zap.Error(err),
			zap.String("entity_id", entityID),
			zap.String("url", endpoint),
		)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		g.logger.Info("Interventions forwarded to device gateway",
			zap.String("entity_id", entityID),
			zap.Int("intervention_count", len(interventions)),
			zap.Int("status_code", resp.StatusCode),
		)
		return nil
	}

	g.logger.Error("Device gateway returned error",
		zap.String("entity_id", entityID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("status", resp.Status),
	)
	return fmt.Errorf("device gateway error: %s", resp.Status)
}

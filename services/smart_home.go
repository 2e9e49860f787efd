package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"unplug/config"
	"unplug/models"

	"go.uber.org/zap"
)

// InterventionForwarder pushes applied interventions to real devices
type InterventionForwarder interface {
	Forward(ctx context.Context, entityID string, interventions []models.SmartHomeIntervention) error
}

// SmartHomeService applies recommendations to the smart home devices
type SmartHomeService struct {
	config     *config.Config
	bus        Bus
	dispatcher *InterventionDispatcher
	logger     *zap.Logger
	forwarder  InterventionForwarder
	ctx        context.Context
}

func NewSmartHomeService(cfg *config.Config, bus Bus, dispatcher *InterventionDispatcher, logger *zap.Logger) *SmartHomeService {
	return &SmartHomeService{
		config:     cfg,
		bus:        bus,
		dispatcher: dispatcher,
		logger:     logger,
		ctx:        context.Background(),
	}
}

// SetForwarder enables delivery of applied interventions to a device gateway
func (s *SmartHomeService) SetForwarder(f InterventionForwarder) {
	s.forwarder = f
}

func (s *SmartHomeService) Subscribe() error {
	guard := guardHandler(s.logger, func(_ string, err error) {
		s.publishStatus(models.ComponentDegraded, "", 0, 0, 0, models.ErrorKindProcessing, err)
	}, s.handleRecommendation)

	if err := s.bus.Subscribe(s.config.TopicRecommendations, guard); err != nil {
		return fmt.Errorf("failed to subscribe to recommendations: %w", err)
	}
	return nil
}

// Start subscribes and then blocks until ctx is cancelled
func (s *SmartHomeService) Start(ctx context.Context) error {
	s.ctx = ctx
	if err := s.Subscribe(); err != nil {
		return err
	}

	s.logger.Info("Smart home controller started", zap.Strings("devices", s.dispatcher.KnownDevices()))

	<-ctx.Done()
	s.logger.Info("Smart home controller stopped")
	return nil
}

func (s *SmartHomeService) handleRecommendation(topic string, payload []byte) {
	start := time.Now()

	var rec models.BehavioralRecommendation
	if err := json.Unmarshal(payload, &rec); err != nil {
		s.logger.Warn("Failed to decode recommendation", zap.String("topic", topic), zap.Error(err))
		s.publishStatus(models.ComponentDegraded, "", 0, 0, 0, decodeFailureKind(payload), err)
		return
	}

	applied, rejected := s.Handle(&rec)
	s.publishStatus(models.ComponentHealthy, rec.EntityID, len(applied), rejected, time.Since(start), "", nil)
}

// Handle applies every intervention mapped from the recommendation's patterns
// and returns the applied ones plus the count of rejected ones.
func (s *SmartHomeService) Handle(rec *models.BehavioralRecommendation) ([]models.SmartHomeIntervention, int) {
	patterns := make([]string, 0, len(rec.PatternSeverity))
	for pattern := range rec.PatternSeverity {
		patterns = append(patterns, pattern)
	}
	sort.Strings(patterns)

	var applied []models.SmartHomeIntervention
	rejected := 0
	for _, pattern := range patterns {
		for _, iv := range s.dispatcher.InterventionsFor(pattern, rec.PatternSeverity[pattern]) {
			if err := s.dispatcher.Apply(iv); err != nil {
				rejected++
				s.logger.Warn("Intervention rejected",
					zap.String("device_id", iv.DeviceID),
					zap.String("action", iv.Action),
					zap.Error(err))
				continue
			}
			applied = append(applied, iv)
		}
	}

	if len(applied) > 0 && s.forwarder != nil {
		if err := s.forwarder.Forward(s.ctx, rec.EntityID, applied); err != nil {
			s.logger.Error("Failed to forward interventions",
				zap.String("entity_id", rec.EntityID),
				zap.Error(err))
		}
	}

	return applied, rejected
}

func (s *SmartHomeService) publishStatus(status models.ComponentStatus, entityID string, applied, rejected int, elapsed time.Duration, errorKind string, failure error) {
	msg := models.SmartHomeStatus{
		Component:     ComponentSmartHome,
		Status:        status,
		Timestamp:     time.Now(),
		EntityID:      entityID,
		Applied:       applied,
		Rejected:      rejected,
		ResponseTime:  elapsed.Seconds(),
		Interventions: s.dispatcher.Summary(s.config.InterventionSummarySize),
	}
	if failure != nil {
		msg.Error = fmt.Sprintf("%s error: %v", errorKind, failure)
		msg.ErrorKind = errorKind
	}

	if err := publishJSON(s.bus, s.config.TopicSmartHomeStatus, msg); err != nil && !errors.Is(err, ErrNotConnected) {
		s.logger.Debug("Failed to publish smart home status", zap.Error(err))
	}
}

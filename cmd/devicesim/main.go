package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"unplug/config"
	"unplug/models"
	"unplug/simulator"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	rps      = flag.Float64("rps", 0.5, "Observations per second")
	entityID = flag.String("entity", "", "Entity ID for generated observations (default from config)")
	seed     = flag.Int64("seed", 0, "Random seed (default from config)")
	broker   = flag.String("broker", "", "MQTT broker URL (default from config)")
	topic    = flag.String("topic", "", "MQTT topic to publish to (default from config)")
)

// mqttPublisher adapts a paho client to simulator.Publisher
type mqttPublisher struct {
	client mqtt.Client
}

func (p mqttPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return errors.New("publish timed out")
	}
	return token.Error()
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *entityID == "" {
		*entityID = cfg.DefaultEntityID
	}
	if *seed == 0 {
		*seed = cfg.RandomSeed
	}
	if *broker == "" {
		*broker = cfg.MQTTBroker
	}
	if *topic == "" {
		*topic = cfg.TopicTelemetry
	}
	if *rps <= 0 {
		logger.Fatal("rps must be positive", zap.Float64("rps", *rps))
	}

	logger.Info("Device simulator started",
		zap.String("entity_id", *entityID),
		zap.Float64("rps", *rps),
		zap.Int64("seed", *seed),
		zap.String("mqtt_broker", *broker),
		zap.String("mqtt_topic", *topic),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("devicesim-%s", uuid.NewString()[:8]))
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *broker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	publisher := mqttPublisher{client: client}
	interval := time.Duration(float64(time.Second) / *rps)
	sim := simulator.NewSimulator(simulator.NewGenerator(*entityID, *seed), publisher, *topic, interval, logger)

	// the simulated device reports its own status so the health monitor tracks it
	statusTopic := cfg.ComponentTopic("digitaltwin", "status")
	go func() {
		ticker := time.NewTicker(cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			report := models.ComponentReport{
				Component: "digital_twin",
				Status:    models.ComponentHealthy,
				Timestamp: time.Now(),
				EntityID:  *entityID,
			}
			if payload, err := json.Marshal(report); err == nil {
				if err := publisher.Publish(statusTopic, payload); err != nil {
					logger.Warn("Failed to publish device status", zap.Error(err))
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	startTime := time.Now()
	_ = sim.Run(ctx)

	elapsed := time.Since(startTime)
	logger.Info("🛑 Shutting down gracefully...",
		zap.Int("total_messages", sim.Sent()),
		zap.Duration("total_uptime", elapsed),
		zap.Float64("avg_rate", float64(sim.Sent())/elapsed.Seconds()),
	)
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"strings"
	"time"

	"unplug/config"
	"unplug/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	command     = flag.String("cmd", models.CommandUpdateThreshold, "Command type: update_threshold or reset_patterns")
	entityID    = flag.String("entity", "", "Target entity ID (default from config)")
	threshold   = flag.String("threshold", models.ThresholdDailyOveruse, "Threshold to update: daily_overuse or session_length")
	value       = flag.Float64("value", 0, "New threshold value in hours")
	rabbitMQURL = flag.String("rabbitmq", "", "RabbitMQ URL (default from config)")
)

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	url := cfg.RabbitMQURL
	if *rabbitMQURL != "" {
		url = *rabbitMQURL
	}
	if *entityID == "" {
		*entityID = cfg.DefaultEntityID
	}

	cmd := models.ControlCommand{
		Type:     *command,
		EntityID: *entityID,
	}
	switch cmd.Type {
	case models.CommandUpdateThreshold:
		if *value <= 0 {
			logger.Fatal("update_threshold requires a positive -value")
		}
		cmd.Threshold = *threshold
		cmd.Value = *value
	case models.CommandResetPatterns:
	default:
		logger.Fatal("Unknown command type", zap.String("cmd", cmd.Type))
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	channel, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", zap.Error(err))
	}
	defer channel.Close()

	logger.Info("Connected to RabbitMQ successfully")

	jsonData, err := json.Marshal(cmd)
	if err != nil {
		logger.Fatal("Failed to marshal control command", zap.Error(err))
	}

	// amq.topic is shared with the MQTT plugin, so the edge tier sees this on the control topic
	routingKey := strings.ReplaceAll(cfg.TopicControl, "/", ".")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = channel.PublishWithContext(ctx,
		cfg.RabbitMQExchange, // exchange
		routingKey,           // routing key
		false,                // mandatory
		false,                // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        jsonData,
			Timestamp:   time.Now(),
			AppId:       "controlctl",
		},
	)
	if err != nil {
		logger.Fatal("Failed to publish message", zap.Error(err))
	}

	logger.Info("✅ Control command published successfully",
		zap.String("type", cmd.Type),
		zap.String("entity_id", cmd.EntityID),
		zap.String("threshold", cmd.Threshold),
		zap.Float64("value", cmd.Value),
		zap.String("exchange", cfg.RabbitMQExchange),
		zap.String("routing_key", routingKey))
}

package models

import "time"

// SmartHomeIntervention is a concrete device-level action
type SmartHomeIntervention struct {
	DeviceID    string         `json:"device_id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Settings    map[string]any `json:"settings"`
}

// InterventionRecord is an immutable history entry for an applied intervention
type InterventionRecord struct {
	ID           string                `json:"id"`
	Timestamp    time.Time             `json:"timestamp"`
	Intervention SmartHomeIntervention `json:"intervention"`
}

// InterventionSummary describes the dispatcher's record keeping
type InterventionSummary struct {
	TotalInterventions int                  `json:"total_interventions"`
	DevicesWithState   int                  `json:"devices_with_state"`
	Recent             []InterventionRecord `json:"recent"`
}

// SmartHomeStatus is published after each recommendation is handled
type SmartHomeStatus struct {
	Component     string              `json:"component"`
	Status        ComponentStatus     `json:"status"`
	Timestamp     time.Time           `json:"timestamp"`
	EntityID      string              `json:"entity_id"`
	Applied       int                 `json:"applied"`
	Rejected      int                 `json:"rejected"`
	ResponseTime  float64             `json:"response_time"`
	Interventions InterventionSummary `json:"interventions"`
	Error         string              `json:"error,omitempty"`
	ErrorKind     string              `json:"error_kind,omitempty"`
}

package models

// Control command types accepted on the control topic
const (
	CommandUpdateThreshold = "update_threshold"
	CommandResetPatterns   = "reset_patterns"
)

// Threshold selectors for update_threshold
const (
	ThresholdDailyOveruse  = "daily_overuse"
	ThresholdSessionLength = "session_length"
)

// ControlCommand mutates one entity's detection state
type ControlCommand struct {
	Type      string  `json:"type"`
	EntityID  string  `json:"entity_id,omitempty"`
	Threshold string  `json:"threshold,omitempty"` // defaults to daily_overuse
	Value     float64 `json:"value,omitempty"`
}

package services

import "strings"

// TopicMatches reports whether topic matches a subscription pattern. '+' matches
// exactly one level and '#' matches any remaining levels when it is the last segment.
func TopicMatches(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patternLevels := strings.Split(pattern, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range patternLevels {
		if level == "#" {
			return i == len(patternLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(patternLevels) == len(topicLevels)
}

// Component names reported by the health monitor
const (
	ComponentDigitalTwin   = "digital_twin"
	ComponentEdgeLayer     = "edge_layer"
	ComponentCloudLayer    = "cloud_layer"
	ComponentSmartHome     = "smart_home"
	ComponentHealthMonitor = "health_monitor"
)

// componentFromTopic maps the tier segment that follows the prefix onto a component name
func componentFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	segment, _, _ := strings.Cut(rest, "/")

	switch segment {
	case "digitaltwin":
		return ComponentDigitalTwin, true
	case "edge":
		return ComponentEdgeLayer, true
	case "cloud":
		return ComponentCloudLayer, true
	case "smart_home":
		return ComponentSmartHome, true
	case "monitor", "system":
		return ComponentHealthMonitor, true
	}
	return "", false
}

// topicKind returns the last level of a topic
func topicKind(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

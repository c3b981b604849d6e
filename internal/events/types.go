package events

import (
	"time"

	"github.com/palisadehq/palisade/internal/detect"
)

// EventType identifies a hub event.
type EventType string

const (
	// EventTypeDetection is published for every completed detection.
	EventTypeDetection EventType = "detection"
	// EventTypeSystemStatus carries periodic service health snapshots.
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection announces client connects and disconnects.
	EventTypeConnection EventType = "connection"
)

// Event is the envelope sent to WebSocket clients.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	RequestID string    `json:"request_id,omitempty"`
}

// DetectionEvent summarizes one cascade run. InputPreview is only populated
// when the hub is configured to include inputs.
type DetectionEvent struct {
	RequestID       string  `json:"request_id"`
	IsInjection     bool    `json:"is_injection"`
	Confidence      float64 `json:"confidence"`
	AttackType      string  `json:"attack_type,omitempty"`
	DetectedByLayer int     `json:"detected_by_layer,omitempty"`
	LayersRun       int     `json:"layers_run"`
	TotalLatencyMS  float64 `json:"total_latency_ms"`
	Cached          bool    `json:"cached"`
	InputPreview    string  `json:"input_preview,omitempty"`
}

// NewDetectionEvent builds the event payload for a result.
func NewDetectionEvent(requestID string, result *detect.Result, cached bool) DetectionEvent {
	return DetectionEvent{
		RequestID:       requestID,
		IsInjection:     result.IsInjection,
		Confidence:      result.Confidence,
		AttackType:      result.AttackType,
		DetectedByLayer: result.DetectedByLayer,
		LayersRun:       len(result.LayerResults),
		TotalLatencyMS:  result.TotalLatencyMS,
		Cached:          cached,
	}
}

// SystemStatusEvent is a periodic health snapshot.
type SystemStatusEvent struct {
	Status           string `json:"status"`
	Uptime           string `json:"uptime"`
	TotalDetections  int64  `json:"total_detections"`
	ConnectedClients int    `json:"connected_clients"`
}

// ConnectionEvent announces client lifecycle changes.
type ConnectionEvent struct {
	Action   string `json:"action"` // connected or disconnected
	ClientID string `json:"client_id"`
}

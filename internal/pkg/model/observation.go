package model

import "time"

// Observation is the last-value view of a single reading that mirrors
// (MQTT, Redis) publish. Key identifies the source within its kind, e.g. the
// AIN of a plug or "router" for the router status.
type Observation struct {
	Kind  Kind      `json:"kind"`
	Key   string    `json:"key"`
	Value any       `json:"value"`
	At    time.Time `json:"timestamp"`
}

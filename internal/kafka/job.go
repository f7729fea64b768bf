// Package kafka carries background jobs (order emails) over a Kafka topic.
package kafka

import (
	"encoding/json"
	"time"
)

// Job is the envelope written for every queued task.
type Job struct {
	ID         string          `json:"id"`
	Event      string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
}

// Decode unmarshals the payload into dst.
func (j Job) Decode(dst any) error {
	return json.Unmarshal(j.Payload, dst)
}

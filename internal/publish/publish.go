package publish

import "time"

// Measurement is one recorded reading as published to consumers.
type Measurement struct {
	JobID          string    `json:"job_id"`
	Lux            float64   `json:"lux"`
	White          float64   `json:"white"`
	Raw            uint16    `json:"raw"`
	Gain           string    `json:"gain"`
	IntegrationMs  int       `json:"integration_ms"`
	Classification string    `json:"classification"`
	Timestamp      time.Time `json:"timestamp"`
}

type Publisher interface {
	Publish(Measurement) error
	Close() error
}

// Package queue defines the asynq task contract between the API and the
// worker.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeGenerateQR = "qr:generate"

// GeneratePayload carries one queued generation request. The upload, if
// any, has already been staged in object storage under UploadKey.
type GeneratePayload struct {
	JobID          string    `json:"job_id"`
	Text           string    `json:"text"`
	Version        int       `json:"version"`
	Level          string    `json:"level"`
	Colorized      bool      `json:"colorized"`
	Contrast       float64   `json:"contrast"`
	Brightness     float64   `json:"brightness"`
	UploadKey      string    `json:"upload_key,omitempty"`
	UploadFilename string    `json:"upload_filename,omitempty"`
	WebhookURL     string    `json:"webhook_url,omitempty"`
	RequestedAt    time.Time `json:"requested_at"`
}

func NewGenerateTask(payload GeneratePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateQR, body), nil
}

func ParseGeneratePayload(task *asynq.Task) (GeneratePayload, error) {
	var payload GeneratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GeneratePayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	return payload, nil
}

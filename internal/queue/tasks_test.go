package queue

import (
	"testing"
	"time"
)

func TestGenerateTaskRoundTrip(t *testing.T) {
	payload := GeneratePayload{
		JobID:          "job-123",
		Text:           "https://example.com",
		Version:        5,
		Level:          "H",
		Colorized:      true,
		Contrast:       1.2,
		Brightness:     0.9,
		UploadKey:      "uploads/job-123/photo.png",
		UploadFilename: "photo.png",
		RequestedAt:    time.Now().UTC(),
	}

	task, err := NewGenerateTask(payload)
	if err != nil {
		t.Fatalf("NewGenerateTask returned error: %v", err)
	}
	if task.Type() != TypeGenerateQR {
		t.Fatalf("expected task type %q, got %q", TypeGenerateQR, task.Type())
	}

	parsed, err := ParseGeneratePayload(task)
	if err != nil {
		t.Fatalf("ParseGeneratePayload returned error: %v", err)
	}

	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job_id %q, got %q", payload.JobID, parsed.JobID)
	}
	if parsed.Text != payload.Text {
		t.Fatalf("expected text %q, got %q", payload.Text, parsed.Text)
	}
	if parsed.Contrast != payload.Contrast || parsed.Brightness != payload.Brightness {
		t.Fatalf("expected enhancement factors to survive, got %+v", parsed)
	}
	if parsed.UploadKey != payload.UploadKey {
		t.Fatalf("expected upload key %q, got %q", payload.UploadKey, parsed.UploadKey)
	}
}

package domain

import (
	"errors"
	"testing"
)

func TestGenerateRequestValidate(t *testing.T) {
	const maxBytes = 10 << 20

	valid := GenerateRequest{
		Text:       "https://example.com",
		Version:    1,
		Level:      "H",
		Contrast:   1.0,
		Brightness: 1.0,
	}
	if err := valid.Validate(maxBytes); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	badLevel := valid
	badLevel.Level = "X"
	if err := badLevel.Validate(maxBytes); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for level X, got %v", err)
	}

	badVersion := valid
	badVersion.Version = 41
	if err := badVersion.Validate(maxBytes); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for version 41, got %v", err)
	}

	badContrast := valid
	badContrast.Contrast = 0
	if err := badContrast.Validate(maxBytes); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for contrast 0, got %v", err)
	}

	emptyText := valid
	emptyText.Text = "  "
	if err := emptyText.Validate(maxBytes); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for empty text, got %v", err)
	}
}

func TestGenerateRequestValidateUploadCeiling(t *testing.T) {
	req := GenerateRequest{
		Text:       "abc",
		Version:    1,
		Level:      "H",
		Contrast:   1.0,
		Brightness: 1.0,
		Upload: &Upload{
			Filename: "bg.png",
			Data:     make([]byte, 101),
		},
	}

	if err := req.Validate(100); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}

	req.Upload.Data = make([]byte, 100)
	if err := req.Validate(100); err != nil {
		t.Fatalf("expected upload at ceiling to pass, got %v", err)
	}

	req.Upload.Filename = ""
	if err := req.Validate(100); !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for missing filename, got %v", err)
	}
}

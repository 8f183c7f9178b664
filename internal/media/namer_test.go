package media

import (
	"strings"
	"testing"
)

func TestOutputNameSanitizes(t *testing.T) {
	got := OutputName("https://example.com", false)
	want := "https___example_com.png"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestOutputNameExtensionFollowsKind(t *testing.T) {
	if got := OutputName("abc", true); got != "abc.gif" {
		t.Fatalf("expected abc.gif, got %q", got)
	}
	if got := OutputName("abc", false); got != "abc.png" {
		t.Fatalf("expected abc.png, got %q", got)
	}
}

func TestOutputNameTruncatesAtFiftyChars(t *testing.T) {
	prefix := strings.Repeat("a", 50)

	first := OutputName(prefix+"-one", false)
	second := OutputName(prefix+"-two", false)

	if first != second {
		t.Fatalf("texts differing beyond char 50 should collide: %q vs %q", first, second)
	}
	if first != prefix+".png" {
		t.Fatalf("expected %q, got %q", prefix+".png", first)
	}
}

func TestOutputNameDeterministic(t *testing.T) {
	a := OutputName("hello world! ünïcödé", false)
	b := OutputName("hello world! ünïcödé", false)
	if a != b {
		t.Fatalf("expected deterministic name, got %q and %q", a, b)
	}
}

func TestOutputNameEmptyTextStillValid(t *testing.T) {
	if got := OutputName("", false); got != ".png" {
		t.Fatalf("expected bare extension for empty text, got %q", got)
	}
}

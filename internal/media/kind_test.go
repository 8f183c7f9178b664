package media

import "testing"

func TestDetectKind(t *testing.T) {
	cases := []struct {
		filename  string
		animated  bool
		supported bool
	}{
		{"photo.jpg", false, true},
		{"photo.JPEG", false, true},
		{"logo.png", false, true},
		{"scan.bmp", false, true},
		{"loop.gif", true, true},
		{"loop.GIF", true, true},
		{"modern.webp", false, false},
		{"vector.svg", false, false},
		{"noextension", false, false},
	}

	for _, tc := range cases {
		if got := IsAnimated(tc.filename); got != tc.animated {
			t.Errorf("IsAnimated(%q) = %v, want %v", tc.filename, got, tc.animated)
		}
		if got := IsSupported(tc.filename); got != tc.supported {
			t.Errorf("IsSupported(%q) = %v, want %v", tc.filename, got, tc.supported)
		}
	}
}

package slug

import (
	"errors"
	"strings"
	"testing"
)

func TestMake(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"Beans", "beans"},
		{"Crude Oil", "crude-oil"},
		{"Crude Oil (WTI)", "crude-oil-wti"},
		{"  Gold  ", "gold"},
		{"Cocoa & Coffee", "cocoa-coffee"},
		{"UPPER lower 123", "upper-lower-123"},
		{"--already--dashed--", "already-dashed"},
	}

	for _, tc := range cases {
		got, err := Make(tc.name)
		if err != nil {
			t.Fatalf("Make(%q) returned error: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("Make(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestMake_Deterministic(t *testing.T) {
	a, _ := Make("Palm Oil")
	b, _ := Make("Palm Oil")
	if a != b {
		t.Errorf("slug not deterministic: %q vs %q", a, b)
	}
}

func TestMake_EmptyInput(t *testing.T) {
	for _, name := range []string{"", "   ", "!!!", "&&&"} {
		if _, err := Make(name); !errors.Is(err, ErrEmptySlug) {
			t.Errorf("Make(%q): expected ErrEmptySlug, got %v", name, err)
		}
	}
}

func TestRandomColor_Format(t *testing.T) {
	for i := 0; i < 20; i++ {
		c := RandomColor()
		if !strings.HasPrefix(c, "hsl(") || !strings.HasSuffix(c, ", 100%, 50%)") {
			t.Fatalf("unexpected color format: %q", c)
		}
	}
}

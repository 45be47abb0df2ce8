package browser

import (
	"testing"

	"github.com/go-rod/rod/lib/proto"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in    string
		level StealthLevel
		auto  bool
	}{
		{"0", LevelHTTP, false},
		{"1", LevelHeadless, false},
		{"2", LevelHeadful, false},
		{"auto", LevelHTTP, true},
		{"", LevelHTTP, true},
	}
	for _, c := range cases {
		level, auto, err := ParseLevel(c.in)
		if err != nil {
			t.Errorf("%q: %v", c.in, err)
			continue
		}
		if level != c.level || auto != c.auto {
			t.Errorf("%q: got %v/%v, want %v/%v", c.in, level, auto, c.level, c.auto)
		}
	}
	if _, _, err := ParseLevel("3"); err == nil {
		t.Error("expected error for level 3")
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("headful"); err != nil || m != LevelHeadful {
		t.Errorf("headful: got %v, %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != LevelHeadless {
		t.Errorf("default: got %v, %v", m, err)
	}
	if _, err := ParseMode("visible"); err == nil {
		t.Error("expected error")
	}
}

func TestBlocklist(t *testing.T) {
	bl := newBlocklist([]string{"images", " Fonts", "xhr"})
	cases := map[proto.NetworkResourceType]bool{
		proto.NetworkResourceTypeImage:      true,
		proto.NetworkResourceTypeFont:       true,
		proto.NetworkResourceTypeXHR:        true,
		proto.NetworkResourceTypeStylesheet: false,
		proto.NetworkResourceTypeDocument:   false,
	}
	for typ, want := range cases {
		if got := bl.blocks(typ); got != want {
			t.Errorf("%s: got %v, want %v", typ, got, want)
		}
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.Mode != LevelHeadless || m.cfg.XvfbDisplay != ":99" || m.cfg.MemoryLimit != 1<<30 {
		t.Errorf("defaults: %+v", m.cfg)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Browser(t.Context()); err != ErrClosed {
		t.Errorf("Browser after Close: got %v, want ErrClosed", err)
	}
}

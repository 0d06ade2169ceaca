package config

import (
	"testing"
	"time"
)

func TestGetDurationAcceptsBareNumbersAndDurations(t *testing.T) {
	t.Setenv("TEST_DURATION_BARE", "15")
	t.Setenv("TEST_DURATION_SYNTAX", "90s")
	t.Setenv("TEST_DURATION_BROKEN", "soon")

	if got := GetDuration("TEST_DURATION_BARE", time.Minute, time.Hour); got != 15*time.Minute {
		t.Fatalf("expected 15m, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_SYNTAX", time.Minute, time.Hour); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_BROKEN", time.Minute, time.Hour); got != time.Hour {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := GetDuration("TEST_DURATION_UNSET", time.Minute, time.Hour); got != time.Hour {
		t.Fatalf("expected fallback for unset key, got %s", got)
	}
}

func TestLoadAPIConfigDefaults(t *testing.T) {
	t.Setenv("MAX_IMAGE_BYTES", "")
	t.Setenv("COMMENT_FEED_LISTEN", "false")
	cfg := LoadAPIConfig()
	if cfg.MaxImageBytes != 5_000_000 {
		t.Fatalf("unexpected image cap %d", cfg.MaxImageBytes)
	}
	if cfg.CommentFeedListen {
		t.Fatalf("expected listener disabled")
	}
	if cfg.BlobBackend != "local" {
		t.Fatalf("unexpected blob backend %q", cfg.BlobBackend)
	}
}

func TestGetListTrimsEntries(t *testing.T) {
	t.Setenv("TEST_LIST", " 10.0.0.0/8, ,127.0.0.1 ")
	got := GetList("TEST_LIST", nil)
	if len(got) != 2 || got[0] != "10.0.0.0/8" || got[1] != "127.0.0.1" {
		t.Fatalf("unexpected list %q", got)
	}
	if got := GetList("TEST_LIST_UNSET", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

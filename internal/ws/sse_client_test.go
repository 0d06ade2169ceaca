package ws

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
)

func TestSSEClientFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	c := NewSSEClient(rec, rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := c.SendEvent("snapshot", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("send event: %v", err)
	}
	if err := c.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := c.Send([]byte("plain")); err != nil {
		t.Fatalf("send: %v", err)
	}
	want := "event: snapshot\ndata: {\"version\":1}\n\n: ping\n\ndata: plain\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected stream:\n%q\nwant\n%q", got, want)
	}

	c.Close()
	if err := c.Send([]byte("late")); err != io.EOF {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}

package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rescale/rescale-intake/internal/events"
)

func TestSetOutputAndNamed(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger("cli", nil)
	l.SetOutput(&buf)
	if l.Output() != &buf {
		t.Fatal("Output() does not return the writer passed to SetOutput")
	}

	l.Named("uploader").Infof("sent %d files", 3)
	got := buf.String()
	if !strings.Contains(got, "sent 3 files") {
		t.Errorf("message missing from output: %q", got)
	}
	if !strings.Contains(got, "uploader") {
		t.Errorf("component missing from output: %q", got)
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	l := NewDefaultCLILogger()
	if OrNop(l) != l {
		t.Error("OrNop should return a non-nil logger unchanged")
	}
	// must not panic
	OrNop(nil).Warnf("dropped %s", "message")
}

func TestEmbeddedMirrorsWarningsToBus(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	var buf bytes.Buffer
	l := NewLogger("embedded", bus)
	l.SetOutput(&buf)

	l.Infof("not mirrored")
	l.Warnf("disk %s", "low")

	select {
	case ev := <-ch:
		le, ok := ev.(*events.LogEvent)
		if !ok {
			t.Fatalf("unexpected event %T", ev)
		}
		if le.Level != events.WarnLevel || le.Message != "disk low" {
			t.Errorf("got level=%v message=%q", le.Level, le.Message)
		}
	case <-time.After(time.Second):
		t.Fatal("warning was not published")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %+v", ev)
	default:
	}
}

func TestCLIModeDoesNotPublish(t *testing.T) {
	bus := events.NewEventBus(8)
	defer bus.Close()
	ch := bus.Subscribe(events.EventLog)

	var buf bytes.Buffer
	l := NewLogger("cli", bus)
	l.SetOutput(&buf)
	l.Errorf("boom")

	select {
	case ev := <-ch:
		t.Errorf("cli logger published %+v", ev)
	default:
	}
}

package ctxlog

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	ctx := WithLogger(context.Background(), logger)

	got := FromContext(ctx)
	if got != logger {
		t.Fatal("FromContext returned a different logger")
	}
	got.Info("hidden")
	got.Warn("shown", "formula", "xcowsay")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message logged at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "xcowsay") {
		t.Errorf("output = %q", out)
	}
}

func TestFromContextDefault(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil without a logger")
	}
	FromContext(context.Background()).Error("dropped")
}

func TestNewUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "chatty").Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("unknown level should default to info, got %q", buf.String())
	}
}

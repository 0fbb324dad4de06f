package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInit_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Format: "json"}) })

	Info().Str("alert", "a-1").Msg("alert created")

	out := buf.String()
	if !strings.Contains(out, `"alert":"a-1"`) {
		t.Errorf("expected structured field in output, got %q", out)
	}
	if !strings.Contains(out, `"message":"alert created"`) {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestInit_LevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Format: "json"}) })

	Info().Msg("hidden")
	Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be emitted at warn level")
	}
}

func TestInit_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "verbose", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Format: "json"}) })

	Debug().Msg("debug line")
	Info().Msg("info line")

	out := buf.String()
	if strings.Contains(out, "debug line") {
		t.Error("debug should be filtered when level falls back to info")
	}
	if !strings.Contains(out, "info line") {
		t.Error("info should be emitted when level falls back to info")
	}
}

func TestUseConsole_NonFileWriterIsJSON(t *testing.T) {
	if useConsole(Config{Format: "auto", Output: &bytes.Buffer{}}) {
		t.Error("auto format with a non-file writer should select json")
	}
	if !useConsole(Config{Format: "console", Output: &bytes.Buffer{}}) {
		t.Error("explicit console format should select console")
	}
}

func TestWith_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { Init(Config{Level: "info", Format: "json"}) })

	l := With("receiver")
	l.Info().Msg("started")

	if !strings.Contains(buf.String(), `"component":"receiver"`) {
		t.Errorf("expected component field, got %q", buf.String())
	}
}

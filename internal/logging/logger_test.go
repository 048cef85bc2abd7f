package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			if got := parseLevel(tt.level); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestInitialize_SilentByDefault(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "")

	if err := Initialize(""); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if GetLogger().Core().Enabled(zapcore.ErrorLevel) {
		t.Error("logger should be silent when no level is configured")
	}
}

func TestInitialize_FromEnv(t *testing.T) {
	t.Setenv(LogLevelEnvVar, "debug")
	defer func() { logger = nil }()

	if err := InitializeFromEnv(); err != nil {
		t.Fatalf("InitializeFromEnv() error = %v", err)
	}

	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		t.Error("logger should have debug enabled from environment")
	}
}

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		env    string
		frames bool
		want   string
	}{
		{"silent", "", "", false, ""},
		{"frames raise to info", "", "", true, "info"},
		{"env wins over frames", "", "error", true, "error"},
		{"flag wins over env", "debug", "error", true, "debug"},
		{"env without frames", "", "warn", false, "warn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(LogLevelEnvVar, tt.env)
			if got := ResolveLevel(tt.level, tt.frames); got != tt.want {
				t.Errorf("ResolveLevel(%q, %v) = %q, want %q", tt.level, tt.frames, got, tt.want)
			}
		})
	}
}

func TestFormatFrame(t *testing.T) {
	if got := FormatFrame("MON", DirectionIn, "*#*1##"); got != "MON <= *#*1##" {
		t.Errorf("FormatFrame() = %q", got)
	}
	if got := FormatFrame("CMD", DirectionOut, "*99*9##"); got != "CMD => *99*9##" {
		t.Errorf("FormatFrame() = %q", got)
	}
}

func TestLogConnection(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	LogConnection(zap.New(core), "192.0.2.7:51234", EventConnected)
	LogConnection(nil, "ignored", EventDisconnected)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["remote_addr"] != "192.0.2.7:51234" || fields["event"] != EventConnected {
		t.Errorf("fields = %v", fields)
	}
}

func TestLogFrame(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	LogFrame(zap.New(core), "CNF", DirectionOut, "*1001*12*0##")
	LogFrame(nil, "CNF", DirectionOut, "ignored")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Message != "CNF => *1001*12*0##" {
		t.Errorf("message = %q", entries[0].Message)
	}
	if entries[0].ContextMap()["frame"] != "*1001*12*0##" {
		t.Errorf("frame field = %v", entries[0].ContextMap()["frame"])
	}
}

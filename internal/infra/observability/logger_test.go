package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zap.DebugLevel},
		{"INFO", zap.InfoLevel},
		{"warning", zap.WarnLevel},
		{" error ", zap.ErrorLevel},
		{"chatty", zap.InfoLevel},
		{"", zap.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSetupLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "shapeq.log")
	logger, err := SetupLogger(LogConfig{
		Level:   "debug",
		Format:  "json",
		Outputs: []string{"file"},
		File:    path,
	})
	if err != nil {
		t.Fatalf("SetupLogger() error: %v", err)
	}
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Named("scheduler.sequential").Debug("task completed", zap.String("task_id", "circle-1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"logger":"scheduler.sequential"`, `"task_id":"circle-1"`, `"level":"debug"`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %q missing %s", line, want)
		}
	}
}

func TestSetupLogger_LevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapeq.log")
	logger, err := SetupLogger(LogConfig{Level: "warn", Format: "json", Outputs: []string{"file"}, File: path})
	if err != nil {
		t.Fatalf("SetupLogger() error: %v", err)
	}
	t.Cleanup(func() { zap.ReplaceGlobals(zap.NewNop()) })

	logger.Info("hidden")
	logger.Warn("shown")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("info entry written at warn level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("warn entry missing")
	}
}

func TestSetupLogger_Errors(t *testing.T) {
	if _, err := SetupLogger(LogConfig{Outputs: []string{"file"}}); err == nil {
		t.Error("file output without path: want error")
	}
	if _, err := SetupLogger(LogConfig{Outputs: []string{"syslog"}}); err == nil {
		t.Error("unknown output: want error")
	}
}

package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m3-org/ainews/pkg/utils/logging"
)

func TestNewLevels(t *testing.T) {
	testCases := []struct {
		level       string
		expectDebug bool
		expectInfo  bool
		expectWarn  bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warning", false, false, true},
		{"ERROR", false, false, false},
		{"invalid", false, true, true}, // Defaults to info
	}

	for _, tc := range testCases {
		t.Run(tc.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := logging.New(tc.level, buf)

			logger.Debug("debug message")
			logger.Info("info message")
			logger.Warn("warn message")
			logger.Error("error message")

			output := buf.String()
			gt.S(t, output).Contains("error message")
			gt.Equal(t, strings.Contains(output, "debug message"), tc.expectDebug)
			gt.Equal(t, strings.Contains(output, "info message"), tc.expectInfo)
			gt.Equal(t, strings.Contains(output, "warn message"), tc.expectWarn)
		})
	}
}

func TestNewJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.NewJSON("info", buf)

	logger.Debug("hidden")
	logger.Info("report generated", "date", "2024-01-01", "groups", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	gt.A(t, lines).Length(1)

	var entry map[string]any
	gt.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	gt.Equal(t, entry["msg"], any("report generated"))
	gt.Equal(t, entry["date"], any("2024-01-01"))
}

func TestNewWithFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logging.NewWithFormat("JSON", "info", buf).Info("json line")
	gt.S(t, buf.String()).Contains(`"msg":"json line"`)

	buf.Reset()
	logging.NewWithFormat("something", "info", buf).Info("console line")
	gt.S(t, buf.String()).Contains("console line")
	gt.S(t, buf.String()).NotContains(`"msg"`)
}

func TestWithAndFrom(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := logging.New("debug", buf).With("component", "report")
	ctx := logging.With(context.Background(), logger)

	retrieved := logging.From(ctx)
	gt.Equal(t, retrieved, logger)

	retrieved.Info("context message")
	gt.S(t, buf.String()).Contains("context message")
	gt.S(t, buf.String()).Contains("component")
}

func TestFromUsesDefault(t *testing.T) {
	original := logging.Default()
	defer logging.SetDefault(original)

	buf := &bytes.Buffer{}
	customDefault := logging.New("warn", buf)
	logging.SetDefault(customDefault)

	retrieved := logging.From(context.Background())
	gt.Equal(t, retrieved, customDefault)

	retrieved.Warn("warning from default")
	gt.S(t, buf.String()).Contains("warning from default")
}

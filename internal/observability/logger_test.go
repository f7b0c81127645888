package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/forecast-etl-service/internal/config"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.GeneralConfig{LogLevel: "info", LogFormat: "json"})

	logger.Info("writing datapoints", "count", 48)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "writing datapoints", entry["msg"])
	assert.Equal(t, "forecast-etl", entry["service"])
	assert.EqualValues(t, 48, entry["count"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, config.GeneralConfig{LogLevel: "info", LogFormat: "text"})

	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.GeneralConfig
		wantDebug bool
		wantInfo  bool
	}{
		{"info drops debug", config.GeneralConfig{LogLevel: "info"}, false, true},
		{"debug level", config.GeneralConfig{LogLevel: "debug"}, true, true},
		{"warn drops info", config.GeneralConfig{LogLevel: "warn"}, false, false},
		{"debug flag wins", config.GeneralConfig{LogLevel: "error", Debug: true}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newLogger(&buf, tt.cfg)

			logger.Debug("debug-line")
			logger.Info("info-line")

			assert.Equal(t, tt.wantDebug, bytes.Contains(buf.Bytes(), []byte("debug-line")))
			assert.Equal(t, tt.wantInfo, bytes.Contains(buf.Bytes(), []byte("info-line")))
		})
	}
}

package logger_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/speedctl/internal/errors"
	"codeberg.org/mutker/speedctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DebugLevel, logger.ParseLevel("debug"))
	assert.Equal(t, logger.InfoLevel, logger.ParseLevel("info"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel("warning"))
	assert.Equal(t, logger.ErrorLevel, logger.ParseLevel("error"))
	assert.Equal(t, logger.WarnLevel, logger.ParseLevel(""))
}

func TestErrorWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.DebugLevel)

	err := errors.New().WithData(errors.ErrInvalidParameter, "speed_percent=250")
	logger.Default().ErrorWithContext(err, "surface", "set_mode").Msg("rejected")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "surface", entry["component"])
	assert.Equal(t, "set_mode", entry["operation"])
	assert.Equal(t, "invalid_parameter", entry["error_code"])
	assert.Equal(t, "rejected", entry["message"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.WarnLevel)

	logger.Debug().Msg("hidden")
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestForTagsComponent(t *testing.T) {
	log := logger.For("actuator")

	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.DebugLevel)

	log.ErrorWithCode(errors.New().New(errors.ErrSetPWM)).Msg("write failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "actuator", entry["component"])
	assert.Equal(t, "set_pwm_failed", entry["error_code"])
}

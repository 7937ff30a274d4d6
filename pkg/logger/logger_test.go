package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("merchant_id", "m-1").Msg("payment created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payment created", line["message"])
	assert.Equal(t, "m-1", line["merchant_id"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	cases := []struct {
		level   string
		debugOK bool
		infoOK  bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"warn", false, false},
		{"error", false, false},
		{"bogus", false, true}, // unknown level falls back to info
	}
	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tc.level, &buf)

			log.Debug().Msg("d")
			assert.Equal(t, tc.debugOK, buf.Len() > 0)

			buf.Reset()
			log.Info().Msg("i")
			assert.Equal(t, tc.infoOK, buf.Len() > 0)

			buf.Reset()
			log.Error().Msg("e")
			assert.NotEmpty(t, buf.String(), "errors always pass")
		})
	}
}

func TestNop_Discards(t *testing.T) {
	log := Nop()
	log.Error().Msg("dropped") // must not panic or write anywhere
}

func TestNew_PrettyMode(t *testing.T) {
	// Pretty mode writes to stdout; just ensure construction works.
	log := New("info", true)
	log.Info().Msg("console output")
}

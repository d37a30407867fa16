package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  zerolog.Level
	}{
		{name: "debug level", input: "debug", want: zerolog.DebugLevel},
		{name: "uppercase is accepted", input: "DEBUG", want: zerolog.DebugLevel},
		{name: "trace level", input: "trace", want: zerolog.TraceLevel},
		{name: "warn level", input: "warn", want: zerolog.WarnLevel},
		{name: "error level", input: "error", want: zerolog.ErrorLevel},
		{name: "empty defaults to info", input: "", want: zerolog.InfoLevel},
		{name: "garbage defaults to info", input: "loud", want: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestInitSetsGlobalLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	Init()
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	t.Setenv("LOG_LEVEL", "info")
	Init()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"":         zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"error":    zerolog.ErrorLevel,
		"off":      zerolog.Disabled,
		"nonsense": zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestResolveLevelPrecedence(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")

	assert.Equal(t, "trace", ResolveLevel("trace", true, true))
	assert.Equal(t, "warn", ResolveLevel("", true, true))
	assert.Equal(t, "debug", ResolveLevel("", true, false))
	assert.Equal(t, "error", ResolveLevel("", false, false))

	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, "info", ResolveLevel("", false, false))
}

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, closer := New(Config{Level: "info", Format: "json", Output: path})
	logger.Info().Str("job", "ad").Msg("hello")
	logger.Debug().Msg("suppressed")
	require.NoError(t, closer())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"job":"ad"`)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.NotContains(t, string(data), "suppressed")
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithJob(WithLogger(context.Background(), logger), "vmware")
	l := FromContext(ctx)
	l.Info().Msg("x")
	assert.Contains(t, buf.String(), `"job":"vmware"`)

	nop := FromContext(context.Background())
	assert.Equal(t, zerolog.Disabled, nop.GetLevel())
}

func TestFromContextChainsWithoutLocal(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), zerolog.New(&buf))

	FromContext(ctx).Info().Str("vault", "Ops").Msg("switching vault")
	FromContext(context.Background()).Debug().Msg("dropped")

	assert.Contains(t, buf.String(), `"vault":"Ops"`)
	assert.NotContains(t, buf.String(), "dropped")
}

package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHost(t *testing.T) {
	cases := map[string]struct {
		value  string
		expect string
	}{
		"empty":        {"", "127.0.0.1:11480"},
		"only address": {"1.2.3.4", "1.2.3.4:11480"},
		"only port":    {":1234", ":1234"},
		"address+port": {"1.2.3.4:1234", "1.2.3.4:1234"},
		"hostname":     {"example.com", "example.com:11480"},
		"bad port":     {"1.2.3.4:99999", "1.2.3.4:11480"},
		"quoted":       {"\"0.0.0.0:8080\"", "0.0.0.0:8080"},
		"https":        {"https://example.com", "example.com:443"},
	}

	for name, tt := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("INFERCORE_HOST", tt.value)
			assert.Equal(t, tt.expect, Host().Host)
		})
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"1":     slog.LevelDebug,
		"true":  slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("INFERCORE_DEBUG", value)
			assert.Equal(t, expect, LogLevel())
		})
	}
}

func TestBackendDefaults(t *testing.T) {
	t.Setenv("INFERCORE_BACKEND", "")
	t.Setenv("INFERCORE_DRIVER", "")
	t.Setenv("INFERCORE_DEVICE", "")
	t.Setenv("INFERCORE_NUM_PARALLEL", "")

	assert.Equal(t, "om", Backend())
	assert.Equal(t, "sim", Driver())
	assert.Equal(t, 0, Device())
	assert.Equal(t, uint(1), NumParallel())
}

func TestIntInvalidFallsBack(t *testing.T) {
	t.Setenv("INFERCORE_DEVICE", "gpu0")
	assert.Equal(t, 0, Device())

	t.Setenv("INFERCORE_DEVICE", "-1")
	assert.Equal(t, -1, Device())
}

func TestOrigins(t *testing.T) {
	t.Setenv("INFERCORE_ORIGINS", "http://10.0.0.1,https://example.com")
	origins := AllowedOrigins()
	assert.Equal(t, "http://10.0.0.1", origins[0])
	assert.Equal(t, "https://example.com", origins[1])
	assert.Contains(t, origins, "http://localhost:*")
}

func TestValuesContainsAllKeys(t *testing.T) {
	vals := Values()
	for k := range AsMap() {
		assert.Contains(t, vals, k)
	}
}

func TestUintInvalidFallsBack(t *testing.T) {
	cases := map[string]uint{
		"":   1,
		"4":  4,
		"-2": 1,
		"x":  1,
	}

	for value, expect := range cases {
		t.Run(value, func(t *testing.T) {
			t.Setenv("INFERCORE_NUM_PARALLEL", value)
			assert.Equal(t, expect, NumParallel())
		})
	}
}

func TestAsMapDocumentsEveryVariable(t *testing.T) {
	m := AsMap()
	assert.Len(t, m, len(docs))
	for name, v := range m {
		assert.Equal(t, name, v.Name)
		assert.NotEmpty(t, v.Description, name)
	}
}

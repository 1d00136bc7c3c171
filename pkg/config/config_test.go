package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshpipe/meshpipe/pkg/domain"
)

const sampleConfig = `
pipeline:
  elements:
    - name: cache
    - name: origin
  transformers:
    - celsius_to_kelvin
logging:
  level: debug
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// testRegistry wires stub factories for the names the sample config uses.
func testRegistry() *Registry {
	reg := NewRegistry()
	reg.RegisterElement("cache", func(map[string]any) (any, error) {
		return domain.NewSinkBuilder().Accept("temp", func(context.Context, any, *domain.Context) error {
			return nil
		}, nil).Build(), nil
	})
	reg.RegisterElement("origin", func(map[string]any) (any, error) {
		return domain.NewSourceBuilder().Provide("temp", func(context.Context, domain.Query, *domain.Context) (any, error) {
			return 21.5, nil
		}, nil).Build(), nil
	})
	reg.RegisterTransformer("celsius_to_kelvin", func() (domain.Transformer, error) {
		return domain.NewTransformerBuilder().
			Register("celsius", "kelvin", domain.Typed(func(_ context.Context, c float64, _ *domain.Context) (any, error) {
				return c + 273.15, nil
			})).
			Build(), nil
	})
	return reg
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "meshpipe", cfg.Telemetry.ServiceName)
	require.Len(t, cfg.Pipeline.Elements, 2)
	assert.Equal(t, "cache", cfg.Pipeline.Elements[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MESHPIPE_LOG_LEVEL", "warn")
	t.Setenv("MESHPIPE_OTLP_ENDPOINT", "collector:4317")

	path := writeConfig(t, sampleConfig)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "collector:4317", cfg.Telemetry.OTLPEndpoint)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestValidateRejectsEmptyPipeline(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline:\n  elements: []\n"))
	require.Error(t, err)
}

func TestValidateRejectsUnnamedElement(t *testing.T) {
	_, err := Load(writeConfig(t, "pipeline:\n  elements:\n    - options: {}\n"))
	require.Error(t, err)
}

func TestValidateRejectsTelemetryWithoutEndpoint(t *testing.T) {
	content := sampleConfig + "telemetry:\n  enabled: true\n"
	_, err := Load(writeConfig(t, content))
	require.Error(t, err)
}

func TestBuildAssemblesPipeline(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	p, err := cfg.Build(testRegistry(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	v, err := p.Get(context.Background(), "temp", domain.Query{})
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)
}

func TestBuildUnknownElement(t *testing.T) {
	cfg, err := Load(writeConfig(t, "pipeline:\n  elements:\n    - name: mystery\n"))
	require.NoError(t, err)

	_, err = cfg.Build(testRegistry(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mystery")
}

func TestBuildUnknownTransformer(t *testing.T) {
	content := "pipeline:\n  elements:\n    - name: origin\n  transformers:\n    - mystery\n"
	cfg, err := Load(writeConfig(t, content))
	require.NoError(t, err)

	_, err = cfg.Build(testRegistry(), slog.New(slog.DiscardHandler))
	require.Error(t, err)
}

func TestReloaderRebuildsOnChange(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	logger := slog.New(slog.DiscardHandler)

	reloader, err := NewReloader(path, testRegistry(), logger, nil)
	require.NoError(t, err)
	defer reloader.Close()

	initial := reloader.Pipeline()
	require.NotNil(t, initial)

	// Rewrite the file; the watcher should swap in a new pipeline.
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	assert.Eventually(t, func() bool {
		return reloader.Pipeline() != initial
	}, 3*time.Second, 50*time.Millisecond)
	assert.NoError(t, reloader.LastError())
}

func TestReloaderKeepsServingOnBadConfig(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	logger := slog.New(slog.DiscardHandler)

	reloader, err := NewReloader(path, testRegistry(), logger, nil)
	require.NoError(t, err)
	defer reloader.Close()

	good := reloader.Pipeline()
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  elements: []\n"), 0o600))

	assert.Eventually(t, func() bool {
		return reloader.LastError() != nil
	}, 3*time.Second, 50*time.Millisecond)
	assert.Same(t, good, reloader.Pipeline())
}

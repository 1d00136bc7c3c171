// Package config provides configuration structures and loading logic for
// declaratively assembled pipelines.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/meshpipe/meshpipe/pkg/domain"
	"github.com/meshpipe/meshpipe/pkg/pipeline"
)

// Config holds the full declarative description of a pipeline deployment.
type Config struct {
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// PipelineConfig names the elements and transformers to assemble, in the
// order that fixes sink eligibility for each source.
type PipelineConfig struct {
	Elements     []ElementConfig `yaml:"elements"`
	Transformers []string        `yaml:"transformers"`
}

// ElementConfig describes one source or sink to construct.
type ElementConfig struct {
	// Name identifies the element factory in the registry.
	Name string `yaml:"name"`
	// Options are passed verbatim to the factory.
	Options map[string]any `yaml:"options,omitempty"`
}

// TelemetryConfig holds configuration for OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	Insecure     bool   `yaml:"insecure"`
	Environment  string `yaml:"environment"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a file and applies environment variable
// overrides. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Telemetry: TelemetryConfig{
			ServiceName: "meshpipe",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}

	if path != "" {
		//nolint:gosec // Config file path is controlled by the operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("MESHPIPE_OTLP_ENDPOINT"); val != "" {
		cfg.Telemetry.OTLPEndpoint = val
		cfg.Telemetry.Enabled = true
	}
	if val := os.Getenv("MESHPIPE_OTLP_INSECURE"); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	if val := os.Getenv("MESHPIPE_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if len(c.Pipeline.Elements) == 0 {
		return fmt.Errorf("pipeline must declare at least one element")
	}
	seen := make(map[string]int)
	for i, el := range c.Pipeline.Elements {
		if el.Name == "" {
			return fmt.Errorf("pipeline element %d has no name", i)
		}
		seen[el.Name]++
	}
	for i, name := range c.Pipeline.Transformers {
		if name == "" {
			return fmt.Errorf("pipeline transformer %d has no name", i)
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry enabled but otlp_endpoint is empty")
	}
	return nil
}

// ElementFactory constructs a source, sink, or dual-role element from its
// declared options.
type ElementFactory func(opts map[string]any) (any, error)

// TransformerFactory constructs a named transformer.
type TransformerFactory func() (domain.Transformer, error)

// Registry maps config names to the factories that realize them. The
// application seeds it before Build; the config package never guesses at
// concrete element types.
type Registry struct {
	elements     map[string]ElementFactory
	transformers map[string]TransformerFactory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{
		elements:     make(map[string]ElementFactory),
		transformers: make(map[string]TransformerFactory),
	}
}

// RegisterElement binds an element factory to its config name.
func (r *Registry) RegisterElement(name string, f ElementFactory) {
	r.elements[name] = f
}

// RegisterTransformer binds a transformer factory to its config name.
func (r *Registry) RegisterTransformer(name string, f TransformerFactory) {
	r.transformers[name] = f
}

// Build assembles the pipeline described by the configuration using the
// registry's factories. Element order in the config is preserved.
func (c *Config) Build(reg *Registry, logger *slog.Logger) (*pipeline.Pipeline, error) {
	elements := make([]any, 0, len(c.Pipeline.Elements))
	for _, el := range c.Pipeline.Elements {
		factory, ok := reg.elements[el.Name]
		if !ok {
			return nil, fmt.Errorf("unknown pipeline element %q", el.Name)
		}
		built, err := factory(el.Options)
		if err != nil {
			return nil, fmt.Errorf("build element %q: %w", el.Name, err)
		}
		elements = append(elements, built)
	}

	transformers := make([]domain.Transformer, 0, len(c.Pipeline.Transformers))
	for _, name := range c.Pipeline.Transformers {
		factory, ok := reg.transformers[name]
		if !ok {
			return nil, fmt.Errorf("unknown transformer %q", name)
		}
		built, err := factory()
		if err != nil {
			return nil, fmt.Errorf("build transformer %q: %w", name, err)
		}
		transformers = append(transformers, built)
	}

	return pipeline.New(pipeline.Config{
		Elements:     elements,
		Transformers: transformers,
		Logger:       logger,
	})
}

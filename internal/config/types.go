// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/rmgprov/rmgprov/internal/container"
	"github.com/rmgprov/rmgprov/internal/pipeline"
)

// DefaultImage is the image repository builds are tagged into when none is
// configured. Without an explicit tag, the variant name is the tag.
const DefaultImage = "rmgprov"

var (
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrUnknownVariant is returned when a variant name is not configured.
	ErrUnknownVariant = errors.New("unknown variant")
)

type (
	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// UnknownVariantError is returned when a variant name is not configured.
	UnknownVariantError struct {
		Name      string
		Available []string
	}

	// Config holds the application configuration.
	Config struct {
		// ContainerEngine is tried first; the other engine is the fallback.
		ContainerEngine container.EngineType `json:"container_engine" mapstructure:"container_engine"`
		// Image is the tag given to built images.
		Image          string                      `json:"image" mapstructure:"image"`
		DefaultVariant string                      `json:"default_variant" mapstructure:"default_variant"`
		Pipeline       pipeline.Settings           `json:"pipeline" mapstructure:"pipeline"`
		Variants       map[string]pipeline.Variant `json:"variants" mapstructure:"variants"`
		UI             UIConfig                    `json:"ui" mapstructure:"ui"`
		Telemetry      TelemetryConfig             `json:"telemetry" mapstructure:"telemetry"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// TelemetryConfig configures trace export. An empty endpoint disables it.
	TelemetryConfig struct {
		Endpoint string `json:"endpoint" mapstructure:"endpoint"`
	}
)

func (e *InvalidConfigError) Error() string {
	if len(e.FieldErrors) == 1 {
		return fmt.Sprintf("invalid config: %v", e.FieldErrors[0])
	}
	return fmt.Sprintf("invalid config: %v", errors.Join(e.FieldErrors...))
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

func (e *UnknownVariantError) Error() string {
	return fmt.Sprintf("unknown variant %q (available: %v)", e.Name, e.Available)
}

func (e *UnknownVariantError) Unwrap() error { return ErrUnknownVariant }

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: container.EngineTypePodman,
		Image:           DefaultImage,
		DefaultVariant:  pipeline.DefaultVariantName,
		Pipeline:        pipeline.DefaultSettings(),
		Variants:        pipeline.DefaultVariants(),
	}
}

// Validate checks what the CUE schema cannot express: the default variant
// exists and every variant is consistent with the pipeline settings.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Image == "" {
		errs = append(errs, errors.New("image must not be empty"))
	}
	settingsErr := c.Pipeline.Validate()
	if settingsErr != nil {
		errs = append(errs, settingsErr)
	}
	for _, name := range c.VariantNames() {
		v := c.Variants[name]
		var err error
		if settingsErr != nil {
			err = v.Validate()
		} else {
			_, err = pipeline.BuildPlan(c.Pipeline, v)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("variants.%s: %w", name, err))
		}
	}
	if _, ok := c.Variants[c.DefaultVariant]; !ok {
		errs = append(errs, &UnknownVariantError{Name: c.DefaultVariant, Available: c.VariantNames()})
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// VariantNames returns the configured variant names, sorted.
func (c *Config) VariantNames() []string {
	return slices.Sorted(maps.Keys(c.Variants))
}

// Variant returns the named variant, or the default variant for "".
func (c *Config) Variant(name string) (pipeline.Variant, error) {
	if name == "" {
		name = c.DefaultVariant
	}
	v, ok := c.Variants[name]
	if !ok {
		return pipeline.Variant{}, &UnknownVariantError{Name: name, Available: c.VariantNames()}
	}
	return v, nil
}

// ImageFor returns the tag for images of the variant: the configured image
// as is when it carries a tag, else the image tagged with the variant name.
func (c *Config) ImageFor(variant string) container.ImageTag {
	repo := c.Image
	if i := strings.LastIndexByte(repo, ':'); i > strings.LastIndexByte(repo, '/') {
		return container.ImageTag(repo)
	}
	return container.ImageTag(repo + ":" + variant)
}

// normalize fills variant names from their keys.
func (c *Config) normalize() {
	for name, v := range c.Variants {
		if v.Name == "" {
			v.Name = name
			c.Variants[name] = v
		}
	}
}

// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rmgprov/rmgprov/internal/cueutil"
	"github.com/rmgprov/rmgprov/internal/issue"
)

const (
	// AppName is the application name.
	AppName = "rmgprov"
	// ConfigFileName is the name of the user config file.
	ConfigFileName = "config.cue"
	// LocalConfigFileName is the project config file looked up in the working directory.
	LocalConfigFileName = "rmgprov.cue"
	// EnvPrefix prefixes environment overrides, e.g. RMGPROV_CONTAINER_ENGINE.
	EnvPrefix = "RMGPROV"

	schemaRoot = "#Config"
)

//go:embed config_schema.cue
var configSchema []byte

// ErrConfigNotFound is returned when an explicitly requested file does not exist.
var ErrConfigNotFound = errors.New("config file not found")

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// ConfigFilePath forces loading from a specific file when set.
		ConfigFilePath string
		// ConfigDirPath overrides the user config directory when set.
		ConfigDirPath string
		// WorkDir is where LocalConfigFileName is looked up. Defaults to ".".
		WorkDir string
	}

	// Provider loads configuration from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, string, error)
	}

	fileProvider struct{}
)

// NewProvider creates a provider that reads CUE files from disk.
func NewProvider() Provider {
	return &fileProvider{}
}

// Load returns the effective configuration and the path it was read from.
// The path is empty when only defaults apply.
func (p *fileProvider) Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	return Load(ctx, opts)
}

// ConfigDir returns the user config directory for rmgprov, following the
// platform convention ($XDG_CONFIG_HOME on Linux).
//
//nolint:revive // ConfigDir reads better than Dir at call sites
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(base, AppName), nil
}

// Load reads the first config file found in order: opts.ConfigFilePath
// (which must exist), ./rmgprov.cue, then the user config directory.
// Values not set in the file keep their defaults; RMGPROV_* environment
// variables override both.
func Load(ctx context.Context, opts LoadOptions) (*Config, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", fmt.Errorf("load config canceled: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := cueutil.DecodeMap(configSchema, []byte(GenerateCUE(DefaultConfig())), schemaRoot, cueutil.WithFilename("defaults"))
	if err != nil {
		return nil, "", err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	path, err := resolvePath(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(path).
				WithSuggestion("Check that the file contains valid CUE syntax").
				WithSuggestion("Compare it with the output of 'rmgprov config show'").
				Wrap(err).
				BuildError()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, "", fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, "", issue.NewErrorContext().
			WithOperation("validate configuration").
			WithResource(path).
			WithSuggestion("Make sure default_variant names a configured variant").
			WithSuggestion("Variants without copy_source need an absolute entry_script").
			Wrap(err).
			BuildError()
	}
	return &cfg, path, nil
}

func resolvePath(opts LoadOptions) (string, error) {
	if opts.ConfigFilePath != "" {
		if !fileExists(opts.ConfigFilePath) {
			return "", issue.NewErrorContext().
				WithOperation("load configuration").
				WithResource(opts.ConfigFilePath).
				WithSuggestion("Verify the file path is correct").
				WithSuggestion("Run 'rmgprov config init' to write the defaults").
				Wrap(fmt.Errorf("%w: %s", ErrConfigNotFound, opts.ConfigFilePath)).
				BuildError()
		}
		return opts.ConfigFilePath, nil
	}

	workDir := opts.WorkDir
	if workDir == "" {
		workDir = "."
	}
	if local := filepath.Join(workDir, LocalConfigFileName); fileExists(local) {
		return local, nil
	}

	dir := opts.ConfigDirPath
	if dir == "" {
		var err error
		if dir, err = ConfigDir(); err != nil {
			// No home directory means no user config, not a failure.
			return "", nil
		}
	}
	if user := filepath.Join(dir, ConfigFileName); fileExists(user) {
		return user, nil
	}
	return "", nil
}

// loadCUEIntoViper validates a CUE file against #Config and merges it over
// the defaults already set on v.
func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	m, err := cueutil.DecodeMap(configSchema, data, schemaRoot, cueutil.WithFilename(path))
	if err != nil {
		return err
	}
	if err := v.MergeConfigMap(m); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// WriteDefault writes the default configuration to path unless a file
// already exists there. It reports whether a file was written.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(GenerateCUE(DefaultConfig())), 0o644); err != nil {
		return false, fmt.Errorf("write config file: %w", err)
	}
	return true, nil
}

// GenerateCUE renders cfg as a config file that validates against #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// rmgprov configuration\n")
	sb.WriteString("// Values left out fall back to the built-in defaults.\n\n")
	fmt.Fprintf(&sb, "container_engine: %q\n", cfg.ContainerEngine)
	fmt.Fprintf(&sb, "image: %q\n", cfg.Image)
	fmt.Fprintf(&sb, "default_variant: %q\n", cfg.DefaultVariant)

	p := cfg.Pipeline
	sb.WriteString("\npipeline: {\n")
	writeString(&sb, 1, "base_image", p.BaseImage)
	writeList(&sb, 1, "toolchain_packages", p.ToolchainPackages)
	writeString(&sb, 1, "source_repo", p.SourceRepo)
	writeString(&sb, 1, "source_ref", p.SourceRef)
	writeString(&sb, 1, "source_path", p.SourcePath)
	writeString(&sb, 1, "toolkit_manifest", p.ToolkitManifest)
	writeString(&sb, 1, "app_manifest", p.AppManifest)
	writeString(&sb, 1, "extra_library_package", p.ExtraLibraryPackage)
	writeString(&sb, 1, "app_dir", p.AppDir)
	writeString(&sb, 1, "env_name", p.EnvName)
	writeString(&sb, 1, "python", p.Python)
	writeString(&sb, 1, "owner", p.Owner)
	writeString(&sb, 1, "toolkit_module", p.ToolkitModule)
	sb.WriteString("}\n")

	if len(cfg.Variants) > 0 {
		sb.WriteString("\nvariants: {\n")
		for _, name := range cfg.VariantNames() {
			v := cfg.Variants[name]
			fmt.Fprintf(&sb, "\t%q: {\n", name)
			writeString(&sb, 2, "description", v.Description)
			writeString(&sb, 2, "target", string(v.Target))
			fmt.Fprintf(&sb, "\t\tapp_environment: %v\n", v.AppEnvironment)
			fmt.Fprintf(&sb, "\t\textra_library: %v\n", v.ExtraLibrary)
			fmt.Fprintf(&sb, "\t\tcopy_source: %v\n", v.CopySource)
			writeString(&sb, 2, "entry_script", v.EntryScript)
			sb.WriteString("\t}\n")
		}
		sb.WriteString("}\n")
	}

	fmt.Fprintf(&sb, "\nui: {\n\tverbose: %v\n}\n", cfg.UI.Verbose)
	if cfg.Telemetry.Endpoint != "" {
		fmt.Fprintf(&sb, "\ntelemetry: {\n\tendpoint: %q\n}\n", cfg.Telemetry.Endpoint)
	}
	return sb.String()
}

// writeString omits empty values so the output stays valid against
// fields constrained to be non-empty.
func writeString(sb *strings.Builder, depth int, key, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(sb, "%s%s: %q\n", strings.Repeat("\t", depth), key, value)
}

func writeList(sb *strings.Builder, depth int, key string, values []string) {
	if len(values) == 0 {
		return
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	fmt.Fprintf(sb, "%s%s: [%s]\n", strings.Repeat("\t", depth), key, strings.Join(quoted, ", "))
}

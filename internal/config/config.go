// Package config provides configuration types, defaults and validation for
// impel.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/impel-dev/impel/internal/coordination/domain"
	"github.com/impel-dev/impel/internal/coordination/engine"
	"github.com/impel-dev/impel/internal/coordination/snapshot"
	"github.com/impel-dev/impel/internal/flags"
	"github.com/impel-dev/impel/internal/log"
	"github.com/impel-dev/impel/internal/tracing"
)

// Config holds all configuration options for impel.
type Config struct {
	// DBPath is a database file, a project directory or a .impel directory.
	// Empty resolves to ./.impel/impel.db.
	DBPath        string             `mapstructure:"db_path" yaml:"db_path"`
	Temperature   TemperatureConfig  `mapstructure:"temperature" yaml:"temperature"`
	Ranking       RankingConfig      `mapstructure:"ranking" yaml:"ranking"`
	Snapshots     SnapshotConfig     `mapstructure:"snapshots" yaml:"snapshots"`
	Commands      CommandConfig      `mapstructure:"commands" yaml:"commands"`
	Subscriptions SubscriptionConfig `mapstructure:"subscriptions" yaml:"subscriptions"`
	Agents        AgentConfig        `mapstructure:"agents" yaml:"agents"`
	Log           LogConfig          `mapstructure:"log" yaml:"log"`
	Tracing       tracing.Config     `mapstructure:"tracing" yaml:"tracing"`
	Flags         map[string]bool    `mapstructure:"flags" yaml:"flags"`
}

// TemperatureConfig holds the decay and boost coefficients. They are
// recorded in the event log, so changing them takes effect from the next
// open onward and never rewrites history.
type TemperatureConfig struct {
	HalfLife          time.Duration `mapstructure:"half_life" yaml:"half_life"`
	InitialValue      float64       `mapstructure:"initial_value" yaml:"initial_value"`
	ActivityBoost     float64       `mapstructure:"activity_boost" yaml:"activity_boost"`
	EscalationBoost   float64       `mapstructure:"escalation_boost" yaml:"escalation_boost"`
	HumanCommentBoost float64       `mapstructure:"human_comment_boost" yaml:"human_comment_boost"`
}

// Coefficients converts the section to domain coefficients.
func (t TemperatureConfig) Coefficients() domain.Coefficients {
	return domain.Coefficients{
		HalfLife:          t.HalfLife,
		InitialValue:      t.InitialValue,
		ActivityBoost:     t.ActivityBoost,
		EscalationBoost:   t.EscalationBoost,
		HumanCommentBoost: t.HumanCommentBoost,
	}
}

// RankingConfig controls available-thread ordering.
type RankingConfig struct {
	TieBreak string `mapstructure:"tie_break" yaml:"tie_break"` // "oldest" (default) or "newest"
}

// SnapshotConfig controls automatic snapshots.
type SnapshotConfig struct {
	Interval    int    `mapstructure:"interval" yaml:"interval"`       // events between snapshots, 0 disables
	Compression string `mapstructure:"compression" yaml:"compression"` // "none", "lz4" or "zstd" (default)
}

// CommandConfig tunes the command pipeline.
type CommandConfig struct {
	DedupTTL             time.Duration `mapstructure:"dedup_ttl" yaml:"dedup_ttl"`
	SlowCommandThreshold time.Duration `mapstructure:"slow_command_threshold" yaml:"slow_command_threshold"`
}

// SubscriptionConfig tunes event subscriptions.
type SubscriptionConfig struct {
	Buffer int `mapstructure:"buffer" yaml:"buffer"`
}

// AgentConfig tunes agent authentication.
type AgentConfig struct {
	TokenCacheTTL time.Duration `mapstructure:"token_cache_ttl" yaml:"token_cache_ttl"`
}

// LogConfig controls the debug log.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"` // debug, info (default), warn, error
	File  string `mapstructure:"file" yaml:"file"`   // default: debug.log in the working directory
}

// DefaultTracesFilePath returns the default trace file location.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".impel", "traces", "traces.jsonl")
	}
	return filepath.Join(home, ".config", "impel", "traces", "traces.jsonl")
}

// Defaults returns a Config with the production defaults.
func Defaults() Config {
	coeff := domain.DefaultCoefficients()
	eng := engine.DefaultConfig()
	tr := tracing.DefaultConfig()
	tr.FilePath = DefaultTracesFilePath()

	return Config{
		Temperature: TemperatureConfig{
			HalfLife:          coeff.HalfLife,
			InitialValue:      coeff.InitialValue,
			ActivityBoost:     coeff.ActivityBoost,
			EscalationBoost:   coeff.EscalationBoost,
			HumanCommentBoost: coeff.HumanCommentBoost,
		},
		Ranking: RankingConfig{TieBreak: string(eng.TieBreak)},
		Snapshots: SnapshotConfig{
			Interval:    eng.SnapshotInterval,
			Compression: eng.SnapshotCompression.String(),
		},
		Commands: CommandConfig{
			DedupTTL:             eng.DedupTTL,
			SlowCommandThreshold: eng.SlowCommandThreshold,
		},
		Subscriptions: SubscriptionConfig{Buffer: eng.SubscriberBuffer},
		Agents:        AgentConfig{TokenCacheTTL: eng.AuthCacheTTL},
		Log:           LogConfig{Level: "info"},
		Tracing:       tr,
		Flags:         flags.Defaults(),
	}
}

// Validate checks every section and returns the first problem found.
func Validate(c Config) error {
	if err := ValidateTemperature(c.Temperature); err != nil {
		return err
	}
	if err := ValidateRanking(c.Ranking); err != nil {
		return err
	}
	if err := ValidateSnapshots(c.Snapshots); err != nil {
		return err
	}
	if err := ValidateCommands(c.Commands); err != nil {
		return err
	}
	if c.Subscriptions.Buffer < 0 {
		return fmt.Errorf("subscriptions.buffer must not be negative, got %d", c.Subscriptions.Buffer)
	}
	if c.Agents.TokenCacheTTL < 0 {
		return fmt.Errorf("agents.token_cache_ttl must not be negative, got %s", c.Agents.TokenCacheTTL)
	}
	return ValidateTracing(c.Tracing)
}

// ValidateTemperature checks that the coefficients describe a usable model.
func ValidateTemperature(t TemperatureConfig) error {
	if t.HalfLife <= 0 {
		return fmt.Errorf("temperature.half_life must be positive, got %s", t.HalfLife)
	}
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"initial_value", t.InitialValue},
		{"activity_boost", t.ActivityBoost},
		{"escalation_boost", t.EscalationBoost},
		{"human_comment_boost", t.HumanCommentBoost},
	} {
		if f.value < 0 || f.value > 1 {
			return fmt.Errorf("temperature.%s must be between 0.0 and 1.0, got %v", f.name, f.value)
		}
	}
	return nil
}

// ValidateRanking checks the tie-break policy name.
func ValidateRanking(r RankingConfig) error {
	if _, err := engine.ParseTieBreak(r.TieBreak); err != nil {
		return fmt.Errorf("ranking.tie_break: %w", err)
	}
	return nil
}

// ValidateSnapshots checks the snapshot interval and compression.
func ValidateSnapshots(s SnapshotConfig) error {
	if s.Interval < 0 {
		return fmt.Errorf("snapshots.interval must not be negative, got %d", s.Interval)
	}
	if _, err := snapshot.ParseCompressionTag(s.Compression); err != nil {
		return fmt.Errorf("snapshots.compression: %w", err)
	}
	return nil
}

// ValidateCommands checks pipeline durations.
func ValidateCommands(c CommandConfig) error {
	if c.DedupTTL < 0 {
		return fmt.Errorf("commands.dedup_ttl must not be negative, got %s", c.DedupTTL)
	}
	if c.SlowCommandThreshold < 0 {
		return fmt.Errorf("commands.slow_command_threshold must not be negative, got %s", c.SlowCommandThreshold)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing tracing.Config) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// EngineConfig converts a validated Config to engine settings.
func (c Config) EngineConfig() (engine.Config, error) {
	tieBreak, err := engine.ParseTieBreak(c.Ranking.TieBreak)
	if err != nil {
		return engine.Config{}, err
	}
	compression, err := snapshot.ParseCompressionTag(c.Snapshots.Compression)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Coefficients:         c.Temperature.Coefficients(),
		KillPolicy:           flags.New(c.Flags).KillPolicy(),
		TieBreak:             tieBreak,
		DedupTTL:             c.Commands.DedupTTL,
		SlowCommandThreshold: c.Commands.SlowCommandThreshold,
		SnapshotInterval:     c.Snapshots.Interval,
		SnapshotCompression:  compression,
		SubscriberBuffer:     c.Subscriptions.Buffer,
		AuthCacheTTL:         c.Agents.TokenCacheTTL,
	}, nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Impel Configuration

# Database file, project directory or .impel directory
# (default: ./.impel/impel.db)
# db_path: /path/to/project

# Temperature model. Coefficients are recorded in the event log on open, so
# edits apply from then on without rewriting history.
temperature:
  half_life: 24h            # Time for a temperature to halve
  initial_value: 1.0        # Temperature of threads created without a priority
  activity_boost: 0.1       # Added by agent activity
  escalation_boost: 0.25    # Added when an escalation is raised about a thread
  human_comment_boost: 0.3  # Added by human comments

# Available-thread ranking
ranking:
  tie_break: oldest   # Equal temperatures: "oldest" or "newest" first

# Snapshots bound recovery time; the event log stays the source of truth
snapshots:
  interval: 500       # Events between automatic snapshots (0 disables)
  compression: zstd   # "none", "lz4" or "zstd"

# Command pipeline
commands:
  dedup_ttl: 5s                 # Reject identical commands within this window (0 disables)
  slow_command_threshold: 100ms # Log commands slower than this

subscriptions:
  buffer: 256   # Events a subscriber may fall behind before it is disconnected

agents:
  token_cache_ttl: 5m   # How long an authenticated token stays cached

# Debug log, written when --debug or IMPEL_DEBUG is set
log:
  level: info
  # file: debug.log

# Feature flags
flags:
  kill-from-any-nonterminal: true   # false: kill only from blocked or review
  verify-on-open: false             # Verify replay every time the CLI opens the database

# Distributed tracing of command execution
# tracing:
#   enabled: true
#   exporter: file      # "none", "file", "stdout" or "otlp"
#   file_path: ~/.config/impel/traces/traces.jsonl
#
# Example: Send traces to Jaeger via OTLP
# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1  # Sample 10% of traces
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}

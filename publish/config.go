package publish

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the relay-mixing and timing knobs read by the queue on every
// scheduling decision. Updating a running queue's config takes effect on the
// next decision only; delays already drawn are not recomputed.
type Config struct {
	// RelayMixingEnabled selects a random relay subset per dispatch instead
	// of publishing to every configured write relay.
	RelayMixingEnabled bool `yaml:"relay_mixing_enabled"`

	// RelaySelectionCount is the subset size used when mixing is enabled.
	RelaySelectionCount int `yaml:"relay_selection_count"`

	// MinRelaysForCritical is the floor applied to criticality-flagged
	// tasks, oversampling the subset to protect delivery reliability.
	MinRelaysForCritical int `yaml:"min_relays_for_critical"`

	// TimingObfuscationEnabled turns the queue and inter-message delays on.
	TimingObfuscationEnabled bool `yaml:"timing_obfuscation_enabled"`

	// MinQueueDelay and MaxQueueDelay bound the randomized delay applied to
	// a normal-priority task between dequeue and dispatch.
	MinQueueDelay time.Duration `yaml:"min_queue_delay"`
	MaxQueueDelay time.Duration `yaml:"max_queue_delay"`

	// MinInterMessageDelay and MaxInterMessageDelay bound the randomized
	// pause enforced after every dispatch, regardless of priority.
	MinInterMessageDelay time.Duration `yaml:"min_inter_message_delay"`
	MaxInterMessageDelay time.Duration `yaml:"max_inter_message_delay"`
}

// DefaultConfig returns the privacy defaults applied at client start.
func DefaultConfig() Config {
	return Config{
		RelayMixingEnabled:       true,
		RelaySelectionCount:      3,
		MinRelaysForCritical:     5,
		TimingObfuscationEnabled: true,
		MinQueueDelay:            1 * time.Second,
		MaxQueueDelay:            5 * time.Second,
		MinInterMessageDelay:     500 * time.Millisecond,
		MaxInterMessageDelay:     2 * time.Second,
	}
}

// LoadConfig reads a YAML config file, overlaying it on the defaults so a
// partial file only overrides the keys it names.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UnmarshalYAML decodes a config document, accepting Go duration strings
// ("500ms", "2s") for the delay fields. Keys absent from the document leave
// the receiver's current values, so overlaying on DefaultConfig yields
// partial-file semantics.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		RelayMixingEnabled       *bool   `yaml:"relay_mixing_enabled"`
		RelaySelectionCount      *int    `yaml:"relay_selection_count"`
		MinRelaysForCritical     *int    `yaml:"min_relays_for_critical"`
		TimingObfuscationEnabled *bool   `yaml:"timing_obfuscation_enabled"`
		MinQueueDelay            *string `yaml:"min_queue_delay"`
		MaxQueueDelay            *string `yaml:"max_queue_delay"`
		MinInterMessageDelay     *string `yaml:"min_inter_message_delay"`
		MaxInterMessageDelay     *string `yaml:"max_inter_message_delay"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.RelayMixingEnabled != nil {
		c.RelayMixingEnabled = *raw.RelayMixingEnabled
	}
	if raw.RelaySelectionCount != nil {
		c.RelaySelectionCount = *raw.RelaySelectionCount
	}
	if raw.MinRelaysForCritical != nil {
		c.MinRelaysForCritical = *raw.MinRelaysForCritical
	}
	if raw.TimingObfuscationEnabled != nil {
		c.TimingObfuscationEnabled = *raw.TimingObfuscationEnabled
	}

	durations := []struct {
		key  string
		raw  *string
		dest *time.Duration
	}{
		{"min_queue_delay", raw.MinQueueDelay, &c.MinQueueDelay},
		{"max_queue_delay", raw.MaxQueueDelay, &c.MaxQueueDelay},
		{"min_inter_message_delay", raw.MinInterMessageDelay, &c.MinInterMessageDelay},
		{"max_inter_message_delay", raw.MaxInterMessageDelay, &c.MaxInterMessageDelay},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		parsed, err := time.ParseDuration(*d.raw)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.key, err)
		}
		*d.dest = parsed
	}
	return nil
}

// Validate reports whether the configuration is internally consistent.
func (c Config) Validate() error {
	if c.RelaySelectionCount < 1 {
		return fmt.Errorf("%w: relay_selection_count must be at least 1", ErrInvalidConfig)
	}
	if c.MinRelaysForCritical < 1 {
		return fmt.Errorf("%w: min_relays_for_critical must be at least 1", ErrInvalidConfig)
	}
	if c.MinQueueDelay < 0 || c.MinInterMessageDelay < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	if c.MaxQueueDelay < c.MinQueueDelay {
		return fmt.Errorf("%w: max_queue_delay below min_queue_delay", ErrInvalidConfig)
	}
	if c.MaxInterMessageDelay < c.MinInterMessageDelay {
		return fmt.Errorf("%w: max_inter_message_delay below min_inter_message_delay", ErrInvalidConfig)
	}
	return nil
}

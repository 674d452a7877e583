// Package config is the explicit, by-reference configuration struct for
// the engine: no global singleton, zero-value fields fall back to
// documented defaults via WithDefaults.
package config

import (
	"os"
	"time"

	"github.com/Protocol-Lattice/memento/pkg/model"
	"gopkg.in/yaml.v3"
)

// RetrievalConfig tunes the hybrid retriever.
type RetrievalConfig struct {
	DefaultK       int                 `yaml:"default_k"`
	Weights        model.SourceWeights `yaml:"weights"`
	RRFK           float64             `yaml:"rrf_k"`
	AlignTargetMu  float64             `yaml:"align_target_mu"`
	AlignTargetSig float64             `yaml:"align_target_sigma"`
	SpreadBoost    float64             `yaml:"spread_boost"`
	SpreadTopN     int                 `yaml:"spread_top_n"`
}

// WalkConfig tunes the personalized random walk.
type WalkConfig struct {
	Steps        int     `yaml:"steps"`
	RestartAlpha float64 `yaml:"restart_alpha"`
}

// WeightConfig tunes the entity weighter.
type WeightConfig struct {
	Semantic   float64 `yaml:"semantic"`
	Memory     float64 `yaml:"memory"`
	Structural float64 `yaml:"structural"`
}

// RetryConfig controls the retry/backoff policy.
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxDelay   time.Duration `yaml:"max_delay"`
}

// Config is the complete, explicit configuration threaded by reference
// through the retriever and the consolidation pipeline.
type Config struct {
	Retrieval    RetrievalConfig `yaml:"retrieval"`
	Walk         WalkConfig      `yaml:"walk"`
	Weight       WeightConfig    `yaml:"weight"`
	Retry        RetryConfig     `yaml:"retry"`
	DefaultSpace string          `yaml:"default_space"`
	SkipPatterns []string        `yaml:"skip_patterns"`
}

// Default returns the recommended production defaults (RRF k=60, walk
// steps=10, restart alpha=0.15).
func Default() Config {
	return Config{
		Retrieval: RetrievalConfig{
			DefaultK:       10,
			Weights:        model.SourceWeights{Vector: 1, Fulltext: 1, Graph: 1},
			RRFK:           60,
			AlignTargetMu:  0.5,
			AlignTargetSig: 0.2,
			SpreadBoost:    0.05,
			SpreadTopN:     5,
		},
		Walk: WalkConfig{
			Steps:        10,
			RestartAlpha: 0.15,
		},
		Weight: WeightConfig{
			Semantic:   0.4,
			Memory:     0.3,
			Structural: 0.3,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  100 * time.Millisecond,
			MaxDelay:   2 * time.Second,
		},
		DefaultSpace: model.DefaultSpace,
	}
}

// WithDefaults returns c with zero-value fields replaced by their Default()
// values. The source weights, the align target (mu and sigma) and the
// entity weight split are replaced as a group, only when all of their
// fields are zero. Retrieval.SpreadBoost and SkipPatterns are never
// replaced, so a zero SpreadBoost stays zero and turns the
// spreading-activation boost off.
func (c Config) WithDefaults() Config {
	d := Default()
	if c.Retrieval.DefaultK == 0 {
		c.Retrieval.DefaultK = d.Retrieval.DefaultK
	}
	if c.Retrieval.Weights.Sum() == 0 {
		c.Retrieval.Weights = d.Retrieval.Weights
	}
	if c.Retrieval.RRFK == 0 {
		c.Retrieval.RRFK = d.Retrieval.RRFK
	}
	if c.Retrieval.AlignTargetMu == 0 && c.Retrieval.AlignTargetSig == 0 {
		c.Retrieval.AlignTargetMu = d.Retrieval.AlignTargetMu
		c.Retrieval.AlignTargetSig = d.Retrieval.AlignTargetSig
	}
	if c.Retrieval.SpreadTopN == 0 {
		c.Retrieval.SpreadTopN = d.Retrieval.SpreadTopN
	}
	if c.Walk.Steps == 0 {
		c.Walk.Steps = d.Walk.Steps
	}
	if c.Walk.RestartAlpha == 0 {
		c.Walk.RestartAlpha = d.Walk.RestartAlpha
	}
	if c.Weight.Semantic == 0 && c.Weight.Memory == 0 && c.Weight.Structural == 0 {
		c.Weight = d.Weight
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = d.Retry.MaxRetries
	}
	if c.Retry.BaseDelay == 0 {
		c.Retry.BaseDelay = d.Retry.BaseDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = d.Retry.MaxDelay
	}
	if c.DefaultSpace == "" {
		c.DefaultSpace = d.DefaultSpace
	}
	return c
}

// Load reads a YAML config file from path and applies WithDefaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c.WithDefaults(), nil
}

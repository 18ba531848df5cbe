// Package config loads and validates refind settings. Every knob has a
// default matching the documented resolver behavior, so a missing
// config file is never an error; running without one is the common case.
package config

import (
	"fmt"

	"github.com/standardbeagle/refind/internal/cache"
	"github.com/standardbeagle/refind/internal/classifier"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/resolver"
	"github.com/standardbeagle/refind/internal/similarity"
	"github.com/standardbeagle/refind/internal/strategy"
)

// DefaultFileName is looked up in the working directory when no
// explicit --config path is given.
const DefaultFileName = ".refind.kdl"

type Config struct {
	Version    int
	Resolver   Resolver
	Classifier Classifier
	Cache      Cache
	Archive    Archive
}

// Resolver controls the fallback chain and its scoring knobs.
type Resolver struct {
	Chain                 []string           // strategy names tried in order
	DisableBounds         bool               // drop bounds evidence everywhere
	Thresholds            map[string]float64 // per-strategy qualification overrides
	HiddenParentThreshold float64            // clickable-ancestor substitution score
	FuzzyFloor            float64            // similarity floor for fuzzy text matches
}

// Classifier controls the field significance policy.
type Classifier struct {
	ExcludeIDs   []string // glob patterns for resource ids to ignore entirely
	IDTrustFloor float64  // ids scoring below this are fuzzy-only evidence
}

// Cache bounds the analysis cache.
type Cache struct {
	MaxEntries int
}

// Archive points at the capture directory.
type Archive struct {
	Dir         string
	Pattern     string // glob over capture file names
	Watch       bool   // ingest new dumps as they appear
	Parallelism int    // concurrent ingests during bulk scans
}

// DefaultConfig returns the documented defaults. The result is freshly
// allocated; callers may mutate it.
func DefaultConfig() *Config {
	chain := strategy.DefaultChain()
	names := make([]string, len(chain))
	for i, spec := range chain {
		names[i] = spec.Kind.String()
	}
	return &Config{
		Version: 1,
		Resolver: Resolver{
			Chain:                 names,
			Thresholds:            map[string]float64{},
			HiddenParentThreshold: resolver.DefaultHiddenParentThreshold,
			FuzzyFloor:            similarity.DefaultFuzzyFloor,
		},
		Classifier: Classifier{
			IDTrustFloor: classifier.DefaultTrustFloor,
		},
		Cache: Cache{
			MaxEntries: cache.DefaultMaxEntries,
		},
		Archive: Archive{
			Dir:         "./captures",
			Pattern:     "ui_dump_*.xml",
			Parallelism: 4,
		},
	}
}

// Validate checks ranges and resolves strategy names, returning a
// config error naming the offending field.
func (c *Config) Validate() error {
	if len(c.Resolver.Chain) == 0 {
		return apperrors.NewConfigError("resolver.chain", nil, fmt.Errorf("chain cannot be empty"))
	}
	for _, name := range c.Resolver.Chain {
		kind, err := strategy.ParseKind(name)
		if err != nil {
			return apperrors.NewConfigError("resolver.chain", name, err)
		}
		if kind == strategy.Custom {
			return apperrors.NewConfigError("resolver.chain", name,
				fmt.Errorf("custom needs caller-supplied field specs and cannot run from config"))
		}
	}
	for name, th := range c.Resolver.Thresholds {
		if _, err := strategy.ParseKind(name); err != nil {
			return apperrors.NewConfigError("resolver.threshold", name, err)
		}
		if th < 0 || th > 1 {
			return apperrors.NewConfigError("resolver.threshold", fmt.Sprintf("%s %v", name, th),
				fmt.Errorf("threshold must be within [0,1]"))
		}
	}
	if t := c.Resolver.HiddenParentThreshold; t < 0 || t > 1 {
		return apperrors.NewConfigError("resolver.hidden-parent-threshold", t,
			fmt.Errorf("must be within [0,1]"))
	}
	if f := c.Resolver.FuzzyFloor; f < 0 || f > 1 {
		return apperrors.NewConfigError("resolver.fuzzy-floor", f,
			fmt.Errorf("must be within [0,1]"))
	}
	if f := c.Classifier.IDTrustFloor; f <= 0 || f > 1 {
		return apperrors.NewConfigError("classifier.id-trust-floor", f,
			fmt.Errorf("must be within (0,1]"))
	}
	if c.Cache.MaxEntries <= 0 {
		return apperrors.NewConfigError("cache.max-entries", c.Cache.MaxEntries,
			fmt.Errorf("must be positive"))
	}
	if c.Archive.Parallelism < 1 {
		return apperrors.NewConfigError("archive.parallelism", c.Archive.Parallelism,
			fmt.Errorf("must be at least 1"))
	}
	return nil
}

// Specs returns the configured chain as strategy specs with threshold
// overrides applied.
func (c *Config) Specs() ([]strategy.Spec, error) {
	return c.SpecsFor(c.Resolver.Chain)
}

// SpecsFor builds specs for an explicit list of strategy names. An
// empty list falls back to the configured chain. Unknown names are
// config errors, same as in Validate.
func (c *Config) SpecsFor(names []string) ([]strategy.Spec, error) {
	if len(names) == 0 {
		names = c.Resolver.Chain
	}
	specs := make([]strategy.Spec, 0, len(names))
	for _, name := range names {
		kind, err := strategy.ParseKind(name)
		if err != nil {
			return nil, apperrors.NewConfigError("resolver.chain", name, err)
		}
		spec := strategy.NewSpec(kind)
		if th, ok := c.Resolver.Thresholds[kind.String()]; ok {
			spec.Threshold = th
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

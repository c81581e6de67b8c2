package model

import (
	"errors"
	"fmt"
)

// FeatureKind is the closed set of feature shapes a plan can declare.
type FeatureKind string

const (
	// FeatureFlag is an on/off capability with no usage accounting.
	FeatureFlag FeatureKind = "flag"
	// FeatureMetered counts usage against an optional limit.
	FeatureMetered FeatureKind = "metered"
)

// Feature is one capability granted by a plan.
//
// Limit, Table and Cycle only apply to metered features. A metered feature
// with no limit is unlimited; a disabled feature blocks usage regardless of
// its limit.
type Feature struct {
	Kind    FeatureKind `json:"kind" yaml:"kind"`
	Slug    string      `json:"slug" yaml:"slug"`
	Name    string      `json:"name" yaml:"name"`
	Enabled bool        `json:"enabled" yaml:"enabled"`
	Limit   *int64      `json:"limit,omitempty" yaml:"limit,omitempty"`
	Table   string      `json:"table,omitempty" yaml:"table,omitempty"`
	Cycle   Interval    `json:"cycle,omitempty" yaml:"cycle,omitempty"`
}

// Unlimited reports whether the feature has no usage ceiling.
func (f Feature) Unlimited() bool {
	return f.Kind != FeatureMetered || f.Limit == nil
}

var ErrInvalidFeature = errors.New("invalid feature")

// Validate checks that the feature matches the shape of its kind.
func (f Feature) Validate() error {
	if f.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidFeature)
	}
	switch f.Kind {
	case FeatureFlag:
		if f.Limit != nil || f.Table != "" || f.Cycle != "" {
			return fmt.Errorf("%w: flag feature %q cannot declare limit, table or cycle", ErrInvalidFeature, f.Slug)
		}
	case FeatureMetered:
		if f.Limit != nil && *f.Limit < 0 {
			return fmt.Errorf("%w: feature %q has negative limit", ErrInvalidFeature, f.Slug)
		}
		if f.Cycle != "" && !f.Cycle.Valid() {
			return fmt.Errorf("%w: feature %q has unknown cycle %q", ErrInvalidFeature, f.Slug, f.Cycle)
		}
	default:
		return fmt.Errorf("%w: feature %q has unknown kind %q", ErrInvalidFeature, f.Slug, f.Kind)
	}
	return nil
}

// ValidateFeatures validates every feature and rejects duplicate slugs.
func ValidateFeatures(features []Feature) error {
	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Slug] {
			return fmt.Errorf("%w: duplicate feature %q", ErrInvalidFeature, f.Slug)
		}
		seen[f.Slug] = true
	}
	return nil
}

// Int64 returns a pointer to v, for feature limits.
func Int64(v int64) *int64 {
	return &v
}

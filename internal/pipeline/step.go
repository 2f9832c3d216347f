// Package pipeline turns raw WUP, WPP, Africapolis, WorldPop and Fathom
// inputs into the processed files the dashboard serves. Each processed
// output is produced by a registered Step; the Engine runs a selection of
// steps in registration order and records every run in the manifest.
package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

// Phase groups steps by the level of the data they produce.
type Phase int

const (
	PhaseCountry    Phase = iota + 1 // WUP tables and country exposure
	PhaseProjection                  // WUP/WPP projection panel and growth rates
	PhaseCity                        // Africapolis agglomerations
)

// String returns the phase name used on the command line.
func (p Phase) String() string {
	switch p {
	case PhaseCountry:
		return "country"
	case PhaseProjection:
		return "projection"
	case PhaseCity:
		return "city"
	default:
		return "unknown"
	}
}

// ParsePhase converts "country", "projection" or "city" into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(s) {
	case "country":
		return PhaseCountry, nil
	case "projection":
		return PhaseProjection, nil
	case "city":
		return PhaseCity, nil
	default:
		return 0, eris.Errorf("unknown phase: %q (valid: country, projection, city)", s)
	}
}

// Result holds the outcome of a step run.
type Result struct {
	// Rows is the number of rows written to the primary output.
	Rows     int64          `yaml:"rows"`
	Outputs  []string       `yaml:"outputs"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// Step defines one processing stage.
type Step interface {
	// Name returns the unique identifier, e.g. "wup_level1".
	Name() string

	// Phase returns the phase the step belongs to.
	Phase() Phase

	// Outputs lists the files the step writes, relative to the processed dir.
	Outputs() []string

	// Run reads the step inputs and writes its outputs.
	Run(ctx context.Context, env *Env) (*Result, error)
}

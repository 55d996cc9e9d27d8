package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig is the root of every configuration failure. Configuration errors are never defaulted.
	ErrConfig = errors.New("configuration error")

	// ErrArtifactNotFound is returned when a stage artifact does not exist in the store.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrPackNotFound is returned when a pack id is neither registered nor present on disk.
	ErrPackNotFound = errors.New("pack not found")

	// ErrPackInvalid is returned when a pack fails manifest validation.
	ErrPackInvalid = errors.New("pack failed validation")

	// ErrPackExists is returned when creating a pack over an existing directory without force.
	ErrPackExists = errors.New("pack already exists")

	// ErrInvalidPackID is returned for ids that are not safe directory names.
	ErrInvalidPackID = errors.New("invalid pack id")

	// ErrSmokeFailed is returned when the post-activation smoke check fails.
	// The previous configuration has already been restored when this is returned.
	ErrSmokeFailed = errors.New("smoke check failed")

	// ErrNoRollbackTarget is returned when there is neither a backup nor a previous pack.
	ErrNoRollbackTarget = errors.New("no rollback target")
)

// ConfigError describes a missing or unusable configuration entry.
type ConfigError struct {
	Path   string // Config file or rule file involved
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %s", e.Reason)
	}
	return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

// IntegrityError lists every problem found while validating a pack.
type IntegrityError struct {
	PackID   string
	Problems []string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("pack %q failed validation (%d problems): %s",
		e.PackID, len(e.Problems), strings.Join(e.Problems, "; "))
}

func (e *IntegrityError) Unwrap() error { return ErrPackInvalid }

// EnrichmentError wraps a failure in an optional stage that runs after the gate.
type EnrichmentError struct {
	Stage string
	Err   error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrichment stage %s failed: %v", e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

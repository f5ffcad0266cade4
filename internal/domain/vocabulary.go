package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidVocabulary is returned when a vocabulary has an empty category.
var ErrInvalidVocabulary = errors.New("invalid generator vocabulary")

// Vocabulary is the closed set of labels the synthetic producer draws from.
type Vocabulary struct {
	Types      []string `json:"types" yaml:"types"`
	Actions    []string `json:"actions" yaml:"actions"`
	Severities []string `json:"severities" yaml:"severities"`
}

// DefaultVocabulary returns the built-in alert vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Types: []string{
			"Suspicious Login Attempt",
			"Port Scan Detected",
			"Unauthorized Access Attempt",
			"Brute Force Attack",
			"SQL Injection Attempt",
			"XSS Attack Detected",
			"File Inclusion Attempt",
			"Command Injection Attempt",
		},
		Actions:    []string{"Blocked", "Logged", "Allowed", "Quarantined"},
		Severities: []string{"Low", "Medium", "High", "Critical"},
	}
}

// Validate reports whether every category has at least one non-empty label.
func (v Vocabulary) Validate() error {
	for name, labels := range map[string][]string{
		"types":      v.Types,
		"actions":    v.Actions,
		"severities": v.Severities,
	} {
		if len(labels) == 0 {
			return fmt.Errorf("%w: %s is empty", ErrInvalidVocabulary, name)
		}
		for _, l := range labels {
			if l == "" {
				return fmt.Errorf("%w: %s contains an empty label", ErrInvalidVocabulary, name)
			}
		}
	}
	return nil
}

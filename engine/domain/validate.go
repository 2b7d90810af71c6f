package domain

import (
	"fmt"
	"strings"
)

// ValidateSection checks a Section before it enters the pipeline.
func ValidateSection(s Section) error {
	if !ValidSectionKinds[s.Kind] {
		return NewValidationError("kind", string(s.Kind), ErrInvalidSection)
	}
	if strings.TrimSpace(s.Text) == "" {
		return NewValidationError("text", "", ErrEmptySection)
	}
	if s.Ordinal < 0 {
		return NewValidationError("ordinal", fmt.Sprint(s.Ordinal), ErrInvalidSection)
	}
	return nil
}

// ValidateEntry checks a TerminologyEntry before it is written to a store.
func ValidateEntry(e TerminologyEntry) error {
	if strings.TrimSpace(e.Source) == "" {
		return NewValidationError("source_term", e.Source, ErrInvalidEntry)
	}
	if strings.TrimSpace(e.Target) == "" {
		return NewValidationError("target_term", e.Target, ErrInvalidEntry)
	}
	if e.Weight < 0 {
		return NewValidationError("usage_weight", fmt.Sprint(e.Weight), ErrInvalidEntry)
	}
	return nil
}

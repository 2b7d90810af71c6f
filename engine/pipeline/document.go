package pipeline

import (
	"sort"
	"time"

	"github.com/WessleyAI/patentrag/engine/confidence"
	"github.com/WessleyAI/patentrag/engine/domain"
)

// State is a section's position in the per-section state machine.
type State string

const (
	StatePending     State = "PENDING"
	StateRetrieving  State = "RETRIEVING"
	StateAssembling  State = "ASSEMBLING"
	StateTranslating State = "TRANSLATING"
	StateScored      State = "SCORED"
	StateFailed      State = "FAILED"
)

// Terminal reports whether s is SCORED or FAILED.
func (s State) Terminal() bool { return s == StateScored || s == StateFailed }

// Outcome is the terminal record of one section. Result is nil when FAILED.
type Outcome struct {
	Section   domain.Section            `json:"section"`
	State     State                     `json:"state"`
	Result    *domain.TranslationResult `json:"result,omitempty"`
	Breakdown *confidence.Breakdown     `json:"breakdown,omitempty"`
	Err       error                     `json:"-"`
	Reason    string                    `json:"reason,omitempty"`
	Duration  time.Duration             `json:"duration"`
}

// Band is the display band of a scored section, empty when FAILED.
func (o Outcome) Band() string {
	if o.Result == nil {
		return ""
	}
	return confidence.Band(o.Result.Confidence)
}

// Metadata is the per-section summary line attached to the output document.
func (o Outcome) Metadata() string {
	if o.Result == nil {
		return "failed: " + o.Reason
	}
	return o.Result.MetadataLine(o.Band())
}

// Stats aggregates a document run.
type Stats struct {
	Total    int `json:"total_sections"`
	Scored   int `json:"scored"`
	Failed   int `json:"failed"`
	Degraded int `json:"degraded"`
	Examples int `json:"total_examples_used"`
	Terms    int `json:"total_terms_matched"`
}

// DocumentResult holds every section outcome ordered by ordinal.
type DocumentResult struct {
	RunID        string        `json:"run_id"`
	TermsVersion string        `json:"terms_version"`
	Outcomes     []Outcome     `json:"sections"`
	Stats        Stats         `json:"stats"`
	Duration     time.Duration `json:"duration"`
}

func newDocumentResult(runID, termsVersion string, outcomes []Outcome) *DocumentResult {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Section.Ordinal < outcomes[j].Section.Ordinal
	})
	doc := &DocumentResult{RunID: runID, TermsVersion: termsVersion, Outcomes: outcomes}
	for _, o := range outcomes {
		doc.Stats.Total++
		if o.Result == nil {
			doc.Stats.Failed++
			continue
		}
		doc.Stats.Scored++
		doc.Stats.Examples += o.Result.ExampleCount
		doc.Stats.Terms += o.Result.TermCount
		if len(o.Result.Degraded) > 0 {
			doc.Stats.Degraded++
		}
	}
	return doc
}

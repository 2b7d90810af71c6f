package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/pipeline"
	"github.com/WessleyAI/patentrag/engine/prompt"
)

// documentFile is the JSON input produced by the external document parser.
type documentFile struct {
	ID       string           `json:"id"`
	Domain   string           `json:"domain"`
	Sections []domain.Section `json:"sections"`
}

func readDocument(r io.Reader) (documentFile, error) {
	var doc documentFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return doc, fmt.Errorf("decode document: %w", err)
	}
	if len(doc.Sections) == 0 {
		return doc, fmt.Errorf("document %q has no sections", doc.ID)
	}
	doc.normalize()
	return doc, nil
}

// normalize resolves section domains against the document default.
func (d *documentFile) normalize() {
	fallback := domain.ParseDomain(d.Domain)
	for i := range d.Sections {
		s := &d.Sections[i]
		if s.Domain == "" {
			s.Domain = fallback
		} else {
			s.Domain = domain.ParseDomain(string(s.Domain))
		}
	}
}

// domains lists the distinct specific domains of the document, sorted.
func (d documentFile) domains() []domain.Domain {
	seen := map[domain.Domain]bool{}
	var out []domain.Domain
	for _, s := range d.Sections {
		if s.Domain.Specific() && !seen[s.Domain] {
			seen[s.Domain] = true
			out = append(out, s.Domain)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// writeText renders the translated document with one metadata line per
// section. Failed sections appear as explicit gaps.
func writeText(w io.Writer, doc *pipeline.DocumentResult) error {
	for _, o := range doc.Outcomes {
		if _, err := fmt.Fprintf(w, "【%s】 #%d\n[%s]\n", prompt.KindLabel(o.Section.Kind), o.Section.Ordinal, o.Metadata()); err != nil {
			return err
		}
		text := "(翻譯失敗)"
		if o.Result != nil {
			text = o.Result.Text
		}
		if _, err := fmt.Fprintf(w, "%s\n\n", text); err != nil {
			return err
		}
	}
	s := doc.Stats
	_, err := fmt.Fprintf(w, "sections: %d | scored: %d | failed: %d | degraded: %d | examples: %d | terms: %d\n",
		s.Total, s.Scored, s.Failed, s.Degraded, s.Examples, s.Terms)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package corpus loads historical translation pairs and writes them to the
// vector index that retrieval queries.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// Pair is one line of a corpus JSONL file.
type Pair struct {
	ID          string `json:"id"`
	Source      string `json:"source_text"`
	Target      string `json:"target_text"`
	Domain      string `json:"domain"`
	SectionType string `json:"section_type"`
	PatentID    string `json:"patent_id"`
}

// key identifies the pair for point ID derivation. Pairs without an id are
// keyed by their content so re-indexing the same file stays idempotent.
func (p Pair) key() string {
	if p.ID != "" {
		return p.ID
	}
	return p.Source + "\x00" + p.Target
}

// PointID derives the deterministic vector point ID for a pair key.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("patentrag:pair:"+key)).String()
}

// ReadStats counts what ReadJSONL saw.
type ReadStats struct {
	Lines   int
	Pairs   int
	Skipped int
	Errors  int
}

// maxLine bounds a single JSONL record.
const maxLine = 4 << 20

// ReadJSONL parses pairs from r. Blank lines are skipped. Lines that do not
// decode or lack source or target text are counted as errors and logged with
// their line number; reading continues.
func ReadJSONL(r io.Reader, logger *slog.Logger) ([]Pair, ReadStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		pairs []Pair
		stats ReadStats
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	for sc.Scan() {
		stats.Lines++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			stats.Skipped++
			continue
		}
		var p Pair
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			stats.Errors++
			logger.Warn("corpus line rejected", "line", stats.Lines, "err", err)
			continue
		}
		if strings.TrimSpace(p.Source) == "" || strings.TrimSpace(p.Target) == "" {
			stats.Errors++
			logger.Warn("corpus line rejected", "line", stats.Lines, "err", "missing source_text or target_text")
			continue
		}
		pairs = append(pairs, p)
		stats.Pairs++
	}
	if err := sc.Err(); err != nil {
		return pairs, stats, fmt.Errorf("corpus: read line %d: %w", stats.Lines+1, err)
	}
	return pairs, stats, nil
}

// Example converts p into a TranslationExample with the given sequence number.
// Unknown domains are stored as general.
func (p Pair) Example(seq int64) domain.TranslationExample {
	d := domain.ParseDomain(p.Domain)
	if d == domain.DomainUnknown {
		d = domain.DomainGeneral
	}
	return domain.TranslationExample{
		ID:     PointID(p.key()),
		Source: p.Source,
		Target: p.Target,
		Domain: d,
		Seq:    seq,
	}
}

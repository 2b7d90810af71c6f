package terminology

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/WessleyAI/patentrag/engine/domain"
)

// ImportStats summarises a CSV import.
type ImportStats struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Errors   int `json:"errors"`
}

var importColumns = []string{"source_term", "target_term", "domain", "verified", "usage_count", "notes"}

// ImportCSV reads terminology rows from r and upserts them into w. The header
// must name source_term and target_term; the other columns are optional.
// Blank rows are skipped; invalid rows are logged and counted, and the import
// continues. A missing domain defaults to general.
func ImportCSV(ctx context.Context, r io.Reader, w Writer, logger *slog.Logger) (ImportStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var stats ImportStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("terminology: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, required := range importColumns[:2] {
		if _, ok := col[required]; !ok {
			return stats, fmt.Errorf("terminology: header missing %q column", required)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return stats, fmt.Errorf("terminology: read csv: %w", err)
			}
			stats.Errors++
			logger.Warn("terminology import: bad row", "line", pe.Line, "err", err)
			continue
		}
		line, _ := cr.FieldPos(0)
		stats.Rows++
		if blankRecord(rec) {
			stats.Skipped++
			continue
		}

		e, err := parseRecord(rec, col)
		if err == nil {
			err = w.Upsert(ctx, e)
		}
		if err != nil {
			stats.Errors++
			logger.Warn("terminology import: row rejected", "line", line, "err", err)
			continue
		}
		stats.Imported++
	}
}

func blankRecord(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRecord(rec []string, col map[string]int) (domain.TerminologyEntry, error) {
	get := func(name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return strings.TrimSpace(rec[i])
		}
		return ""
	}
	e := domain.TerminologyEntry{
		Source: get("source_term"),
		Target: get("target_term"),
		Domain: domain.DomainGeneral,
		Notes:  get("notes"),
	}
	if v := get("domain"); v != "" {
		d := domain.ParseDomain(v)
		if d == domain.DomainUnknown {
			return e, domain.NewValidationError("domain", v, domain.ErrInvalidEntry)
		}
		e.Domain = d
	}
	if v := get("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return e, domain.NewValidationError("verified", v, domain.ErrInvalidEntry)
		}
		e.Verified = b
	}
	if v := get("usage_count"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return e, domain.NewValidationError("usage_count", v, domain.ErrInvalidEntry)
		}
		e.Weight = f
	}
	return e, domain.ValidateEntry(e)
}

package terminology

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/pkg/repo"
)

// termLabel is the node label for terminology entries.
const termLabel = "Term"

// Neo4jStore keeps terminology as (:Term) nodes in Neo4j.
type Neo4jStore struct {
	repo repo.Repository[domain.TerminologyEntry, string]
}

// NewNeo4jStore creates a store backed by driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return newNeo4jStore(repo.NewNeo4jRepo[domain.TerminologyEntry, string](
		driver, termLabel, termToMap, termFromRecord,
		repo.WithIDKey[domain.TerminologyEntry, string]("key"),
	))
}

func newNeo4jStore(r repo.Repository[domain.TerminologyEntry, string]) *Neo4jStore {
	return &Neo4jStore{repo: r}
}

func termKey(e domain.TerminologyEntry) string {
	return string(e.Domain) + ":" + e.Source
}

func termToMap(e domain.TerminologyEntry) map[string]any {
	return map[string]any{
		"key":         termKey(e),
		"source_term": e.Source,
		"target_term": e.Target,
		"domain":      string(e.Domain),
		"verified":    e.Verified,
		"usage_count": e.Weight,
		"notes":       e.Notes,
	}
}

func termFromRecord(rec *neo4j.Record) (domain.TerminologyEntry, error) {
	if len(rec.Values) == 0 {
		return domain.TerminologyEntry{}, fmt.Errorf("terminology: empty record")
	}
	var props map[string]any
	switch v := rec.Values[0].(type) {
	case neo4j.Node:
		props = v.Props
	case map[string]any:
		props = v
	default:
		return domain.TerminologyEntry{}, fmt.Errorf("terminology: unexpected record value %T", v)
	}
	e := domain.TerminologyEntry{
		Source: stringProp(props, "source_term"),
		Target: stringProp(props, "target_term"),
		Domain: domain.Domain(stringProp(props, "domain")),
		Notes:  stringProp(props, "notes"),
	}
	e.Verified, _ = props["verified"].(bool)
	switch w := props["usage_count"].(type) {
	case float64:
		e.Weight = w
	case int64:
		e.Weight = float64(w)
	}
	return e, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

// Lookup returns every entry tagged with d.
func (s *Neo4jStore) Lookup(ctx context.Context, d domain.Domain) ([]domain.TerminologyEntry, error) {
	entries, err := repo.ListAll[domain.TerminologyEntry, string](ctx, s.repo, map[string]any{"domain": string(d)}, 500)
	if err != nil {
		return nil, fmt.Errorf("terminology: neo4j lookup %s: %w", d, err)
	}
	return entries, nil
}

// Upsert merges the entry on its (domain, source) key.
func (s *Neo4jStore) Upsert(ctx context.Context, e domain.TerminologyEntry) error {
	if err := domain.ValidateEntry(e); err != nil {
		return err
	}
	if _, err := s.repo.Upsert(ctx, e); err != nil {
		return fmt.Errorf("terminology: neo4j upsert %q: %w", e.Source, err)
	}
	return nil
}

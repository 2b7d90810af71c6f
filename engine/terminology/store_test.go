package terminology

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/pkg/repo"
)

func openTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "terms.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteUpsertAndLookup(t *testing.T) {
	s := openTestSQLite(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, entry("基板", "基板", domain.DomainSemiconductor, false, 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, entry("基板", "底板", domain.DomainMechanical, true, 4)); err != nil {
		t.Fatal(err)
	}
	// update on conflict
	if err := s.Upsert(ctx, entry("基板", "基材", domain.DomainSemiconductor, true, 7)); err != nil {
		t.Fatal(err)
	}

	got, err := s.Lookup(ctx, domain.DomainSemiconductor)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 semiconductor entry, got %d", len(got))
	}
	if got[0].Target != "基材" || !got[0].Verified || got[0].Weight != 7 {
		t.Fatalf("upsert did not update: %+v", got[0])
	}
	if n, _ := s.Count(ctx); n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestSQLiteRejectsInvalid(t *testing.T) {
	s := openTestSQLite(t)
	err := s.Upsert(context.Background(), entry("", "x", domain.DomainGeneral, false, 0))
	if !errors.Is(err, domain.ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

func TestImportCSV(t *testing.T) {
	csvData := "\ufeffsource_term,target_term,domain,verified,usage_count,notes\n" +
		"基板処理装置,基板處理裝置,semiconductor,true,12,\n" +
		"軸受,軸承,,false,,mechanical parts\n" +
		",,,,,\n" +
		"歯車,,mechanical,true,1,\n" +
		"ウェハ,晶圓,biotech,true,1,\n" +
		"チャンバ,腔室,semiconductor,yes,1,\n"

	store := NewMemoryStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	stats, err := ImportCSV(context.Background(), strings.NewReader(csvData), store, log)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Rows != 6 || stats.Imported != 2 || stats.Skipped != 1 || stats.Errors != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	general, _ := store.Lookup(context.Background(), domain.DomainGeneral)
	if len(general) != 1 || general[0].Source != "軸受" || general[0].Notes != "mechanical parts" {
		t.Fatalf("expected default general domain, got %+v", general)
	}
	semi, _ := store.Lookup(context.Background(), domain.DomainSemiconductor)
	if len(semi) != 1 || semi[0].Weight != 12 || !semi[0].Verified {
		t.Fatalf("unexpected semiconductor entries %+v", semi)
	}
}

func TestImportCSVMissingColumn(t *testing.T) {
	_, err := ImportCSV(context.Background(), strings.NewReader("term,translation\na,b\n"), NewMemoryStore(), nil)
	if err == nil {
		t.Fatal("expected header error")
	}
}

type fakeRepo struct {
	entries []domain.TerminologyEntry
	filters []map[string]any
	upserts []domain.TerminologyEntry
}

func (f *fakeRepo) List(_ context.Context, opts repo.ListOpts) ([]domain.TerminologyEntry, error) {
	f.filters = append(f.filters, opts.Filter)
	var out []domain.TerminologyEntry
	for _, e := range f.entries {
		if string(e.Domain) == opts.Filter["domain"] {
			out = append(out, e)
		}
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	return out[opts.Offset:], nil
}

func (f *fakeRepo) Upsert(_ context.Context, e domain.TerminologyEntry) (domain.TerminologyEntry, error) {
	f.upserts = append(f.upserts, e)
	return e, nil
}

func TestNeo4jStore(t *testing.T) {
	fr := &fakeRepo{entries: []domain.TerminologyEntry{
		entry("基板", "基板", domain.DomainSemiconductor, true, 1),
		entry("軸受", "軸承", domain.DomainGeneral, true, 1),
	}}
	s := newNeo4jStore(fr)

	got, err := s.Lookup(context.Background(), domain.DomainSemiconductor)
	if err != nil || len(got) != 1 || got[0].Source != "基板" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if fr.filters[0]["domain"] != "semiconductor" {
		t.Fatalf("unexpected filter %v", fr.filters[0])
	}

	if err := s.Upsert(context.Background(), entry("歯車", "齒輪", domain.DomainMechanical, true, 1)); err != nil {
		t.Fatal(err)
	}
	if len(fr.upserts) != 1 {
		t.Fatal("expected upsert to reach the repository")
	}
	if err := s.Upsert(context.Background(), entry("歯車", "", domain.DomainMechanical, true, 1)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestTermRecordMapping(t *testing.T) {
	e := entry("基板", "基板", domain.DomainSemiconductor, true, 3)
	e.Notes = "JPO"
	props := termToMap(e)
	if props["key"] != "semiconductor:基板" {
		t.Fatalf("key = %v", props["key"])
	}

	got, err := termFromRecord(&neo4j.Record{Values: []any{neo4j.Node{Props: props}}, Keys: []string{"n"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != e {
		t.Fatalf("got %+v, want %+v", got, e)
	}

	props["usage_count"] = int64(5)
	got, _ = termFromRecord(&neo4j.Record{Values: []any{props}, Keys: []string{"n"}})
	if got.Weight != 5 {
		t.Fatalf("int64 usage_count not decoded: %v", got.Weight)
	}

	if _, err := termFromRecord(&neo4j.Record{Values: []any{42}}); err == nil {
		t.Fatal("expected error for unexpected value type")
	}
}

package semantic

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/WessleyAI/patentrag/engine/domain"
)

func ex(id string, seq int64, d domain.Domain, emb ...float32) domain.TranslationExample {
	return domain.TranslationExample{ID: id, Source: "src-" + id, Target: "tgt-" + id, Embedding: emb, Domain: d, Seq: seq}
}

func TestMemoryIndexQueryOrdering(t *testing.T) {
	idx, err := NewMemoryIndex(
		ex("far", 1, domain.DomainGeneral, 0, 1),
		ex("near", 2, domain.DomainGeneral, 1, 0.1),
		ex("exact-old", 3, domain.DomainGeneral, 2, 0),
		ex("exact-new", 9, domain.DomainGeneral, 1, 0),
	)
	if err != nil {
		t.Fatal(err)
	}
	got, err := idx.Query(context.Background(), []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"exact-new", "exact-old", "near"}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Similarity > got[i-1].Similarity {
			t.Fatal("similarities must be non-increasing")
		}
	}
	if math.Abs(float64(got[0].Similarity)-1) > 1e-6 || got[0].Embedding != nil {
		t.Fatalf("unexpected top hit %+v", got[0])
	}
}

func TestMemoryIndexZeroVector(t *testing.T) {
	idx, _ := NewMemoryIndex(ex("zero", 1, domain.DomainGeneral, 0, 0))
	got, err := idx.Query(context.Background(), []float32{1, 0}, 1)
	if err != nil || got[0].Similarity != 0 {
		t.Fatalf("zero vector should score 0: %+v %v", got, err)
	}
}

func TestMemoryIndexDimensionChecks(t *testing.T) {
	if _, err := NewMemoryIndex(ex("a", 1, domain.DomainGeneral, 1, 0), ex("b", 2, domain.DomainGeneral, 1)); err == nil {
		t.Fatal("expected mixed dimension error")
	}
	if _, err := NewMemoryIndex(ex("a", 1, domain.DomainGeneral)); err == nil {
		t.Fatal("expected missing embedding error")
	}
	idx, _ := NewMemoryIndex(ex("a", 1, domain.DomainGeneral, 1, 0))
	if _, err := idx.Query(context.Background(), []float32{1, 0, 0}, 1); err == nil {
		t.Fatal("expected query dimension error")
	}
}

func TestMemoryIndexEmpty(t *testing.T) {
	idx, err := NewMemoryIndex()
	if err != nil {
		t.Fatal(err)
	}
	got, err := idx.Query(context.Background(), []float32{1}, 3)
	if got != nil || err != nil {
		t.Fatalf("empty index: %v %v", got, err)
	}
}

func TestMemoryIndexUpsertAndVersion(t *testing.T) {
	idx, _ := NewMemoryIndex(ex("a", 1, domain.DomainGeneral, 1, 0))
	v1 := idx.Version()

	err := idx.Upsert(context.Background(), []VectorRecord{
		{Example: ex("a", 1, domain.DomainGeneral, 0, 1)},
		{Example: ex("b", 2, domain.DomainGeneral, 1, 0)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Len() != 2 || idx.Version() != v1+1 {
		t.Fatalf("len=%d version=%d", idx.Len(), idx.Version())
	}
	got, _ := idx.Query(context.Background(), []float32{1, 0}, 1)
	if got[0].ID != "b" {
		t.Fatalf("upsert should have replaced a's vector, top = %s", got[0].ID)
	}
}

func TestMemoryIndexSnapshotIsolation(t *testing.T) {
	idx, _ := NewMemoryIndex(ex("a", 1, domain.DomainGeneral, 1, 0))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if i%2 == 0 {
					idx.Replace([]domain.TranslationExample{ex("a", 1, domain.DomainGeneral, 1, 0), ex("b", 2, domain.DomainGeneral, 0, 1)})
					continue
				}
				got, err := idx.Query(context.Background(), []float32{1, 0}, 2)
				if err != nil || len(got) == 0 || got[0].ID != "a" {
					t.Errorf("inconsistent query result %v %v", got, err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
}

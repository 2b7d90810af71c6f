package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/WessleyAI/patentrag/engine/domain"
	"github.com/WessleyAI/patentrag/engine/pipeline"
	"github.com/WessleyAI/patentrag/pkg/config"
	"github.com/WessleyAI/patentrag/pkg/natsutil"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}).Info("hidden")
	newLogger(&buf, config.LogConfig{Level: "warn", Format: "json"}).Warn("shown", "k", 1)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatal("info should be filtered at warn level")
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &line); err != nil || line["msg"] != "shown" {
		t.Fatalf("expected a JSON log line, got %q", out)
	}
}

func TestReadDocument(t *testing.T) {
	in := `{"id":"JP-1","domain":"semiconductor","sections":[
		{"kind":"title","text":"半導体装置","ordinal":0},
		{"kind":"claims","text":"歯車","domain":"Mechanical","ordinal":1},
		{"kind":"abstract","text":"概要","domain":"biotech","ordinal":2}]}`
	doc, err := readDocument(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.Domain{domain.DomainSemiconductor, domain.DomainMechanical, domain.DomainUnknown}
	for i, s := range doc.Sections {
		if s.Domain != want[i] {
			t.Errorf("section %d: got %s, want %s", i, s.Domain, want[i])
		}
	}
	ds := doc.domains()
	if len(ds) != 2 || ds[0] != domain.DomainMechanical || ds[1] != domain.DomainSemiconductor {
		t.Fatalf("unexpected domains %v", ds)
	}

	if _, err := readDocument(strings.NewReader(`{"id":"empty","sections":[]}`)); err == nil {
		t.Fatal("expected an error for a document without sections")
	}
}

func sampleResult() *pipeline.DocumentResult {
	return &pipeline.DocumentResult{
		RunID: "run",
		Outcomes: []pipeline.Outcome{
			{
				Section: domain.Section{Kind: domain.SectionTitle, Ordinal: 0},
				State:   pipeline.StateScored,
				Result:  &domain.TranslationResult{Kind: domain.SectionTitle, Text: "半導體裝置之製造方法", Confidence: 0.848, ExampleCount: 3, TermCount: 5},
			},
			{
				Section: domain.Section{Kind: domain.SectionClaims, Ordinal: 1},
				State:   pipeline.StateFailed,
				Reason:  "retries_exhausted",
			},
		},
		Stats: pipeline.Stats{Total: 2, Scored: 1, Failed: 1, Examples: 3, Terms: 5},
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := writeText(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"【發明名稱】 #0",
		"[confidence: 0.85 (Good) | examples: 3 | terms: 5]",
		"半導體裝置之製造方法",
		"[failed: retries_exhausted]",
		"(翻譯失敗)",
		"sections: 2 | scored: 1 | failed: 1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTermsImportAndList(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "patentrag.yaml")
	db := filepath.Join(dir, "terms.db")
	if err := os.WriteFile(cfgPath, []byte("terminology:\n  backend: sqlite\n  sqlite_path: "+db+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	csvPath := filepath.Join(dir, "terms.csv")
	csv := "source_term,target_term,domain,verified,usage_count,notes\n" +
		"基板,基板,semiconductor,true,12,\n" +
		"半導体,半導體,semiconductor,true,30,\n" +
		",缺,general,false,0,\n"
	if err := os.WriteFile(csvPath, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) string {
		t.Helper()
		var out bytes.Buffer
		cmd := rootCmd()
		cmd.SetOut(&out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
		return out.String()
	}

	if out := run("terms", "import", csvPath); !strings.Contains(out, "imported: 2") || !strings.Contains(out, "errors: 1") {
		t.Fatalf("unexpected import summary %q", out)
	}
	out := run("terms", "list", "--domain", "semiconductor")
	if !strings.Contains(out, "半導体") || !strings.Contains(out, "基板") {
		t.Fatalf("unexpected listing %q", out)
	}
}

func TestTermsListRejectsUnknownDomain(t *testing.T) {
	cmd := rootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	t.Setenv("TERMINOLOGY_BACKEND", "memory")
	cmd.SetArgs([]string{"terms", "list", "--domain", "biotech"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected an error for an unknown domain")
	}
}

func TestTranslateRemote(t *testing.T) {
	srv, err := natsserver.NewServer(&natsserver.Options{Port: -1})
	if err != nil {
		t.Fatal(err)
	}
	srv.Start()
	defer srv.Shutdown()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats not ready")
	}

	cfg := config.DefaultConfig()
	cfg.NATS.URL = srv.ClientURL()
	a := &app{cfg: cfg, logger: slog.Default()}

	nc, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()
	_, err = natsutil.Handle(context.Background(), nc, cfg.NATS.WorkerSubject, workerQueue,
		func(_ context.Context, doc documentFile) (*pipeline.DocumentResult, error) {
			res := sampleResult()
			res.RunID = doc.ID
			return res, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	nc.Flush()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := a.translateRemote(ctx, documentFile{ID: "JP-9", Sections: []domain.Section{{Kind: domain.SectionTitle, Text: "x"}}})
	if err != nil {
		t.Fatal(err)
	}
	if res.RunID != "JP-9" || res.Stats.Failed != 1 || res.Outcomes[0].Result.ExampleCount != 3 {
		t.Fatalf("unexpected remote result %+v", res)
	}
}

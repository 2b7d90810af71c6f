package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/patentrag/engine/pipeline"
	"github.com/WessleyAI/patentrag/engine/terminology"
)

func translateCmd(a *app) *cobra.Command {
	var (
		out    string
		asJSON bool
		strict bool
		remote bool
	)
	cmd := &cobra.Command{
		Use:   "translate <document.json>",
		Short: "Translate a parsed patent document",
		Long: `Translates every section of a JSON document ({"id", "domain", "sections": [...]})
and prints the result with a metadata line per section. Sections that fail are
reported as gaps; use --strict to exit non-zero when any section failed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			doc, err := readDocument(f)
			f.Close()
			if err != nil {
				return err
			}

			run := a.translateDocument
			if remote {
				run = a.translateRemote
			}
			result, err := run(ctx, doc)
			if result == nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				file, ferr := os.Create(out)
				if ferr != nil {
					return ferr
				}
				defer file.Close()
				w = file
			}
			if werr := render(w, result, asJSON); werr != nil {
				return werr
			}
			if err != nil {
				return err
			}
			if strict && result.Stats.Failed > 0 {
				return fmt.Errorf("%d of %d sections failed", result.Stats.Failed, result.Stats.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the translation to a file instead of stdout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the full result as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "send the document to a worker over NATS")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero if any section failed")
	return cmd
}

func render(w io.Writer, result *pipeline.DocumentResult, asJSON bool) error {
	if asJSON {
		return writeJSON(w, result)
	}
	return writeText(w, result)
}

// translateDocument loads a terminology snapshot for the document's domains
// and runs it through the pipeline.
func (a *app) translateDocument(ctx context.Context, doc documentFile) (*pipeline.DocumentResult, error) {
	a.serveMetrics(ctx)

	terms, closeTerms, err := a.openTerms(ctx)
	if err != nil {
		return nil, err
	}
	defer closeTerms()
	snap, err := terminology.LoadSnapshot(ctx, terms, doc.domains()...)
	if err != nil {
		return nil, err
	}

	index, err := a.openIndex()
	if err != nil {
		return nil, err
	}
	defer index.Close()

	var events pipeline.EventSink
	nc, err := a.connectNATS()
	if err != nil {
		return nil, err
	}
	if nc != nil {
		defer func() {
			nc.Flush()
			nc.Close()
		}()
		events = pipeline.NewNATSSink(nc, a.cfg.NATS.EventSubject)
	}

	a.logger.Info("translating document", "id", doc.ID, "sections", len(doc.Sections),
		"terms", snap.Len(), "terms_version", snap.Version())
	return a.orchestrator(index, events).TranslateDocument(ctx, snap, doc.Sections)
}

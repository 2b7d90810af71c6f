package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/patentrag/engine/pipeline"
	"github.com/WessleyAI/patentrag/engine/terminology"
	"github.com/WessleyAI/patentrag/pkg/natsutil"
)

// workerQueue is the queue group shared by all workers.
const workerQueue = "patentrag-workers"

func workerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Serve translation requests from NATS",
		Long: `Subscribes to the configured worker subject in a queue group and translates
each requested document. Every request uses a fresh terminology snapshot.
Section events are published on the event subject.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			a.serveMetrics(ctx)

			nc, err := a.connectNATS()
			if err != nil {
				return err
			}
			if nc == nil {
				return errors.New("worker requires nats.url")
			}
			defer nc.Close()

			terms, closeTerms, err := a.openTerms(ctx)
			if err != nil {
				return err
			}
			defer closeTerms()

			index, err := a.openIndex()
			if err != nil {
				return err
			}
			defer index.Close()

			orch := a.orchestrator(index, pipeline.NewNATSSink(nc, a.cfg.NATS.EventSubject))
			handler := func(ctx context.Context, doc documentFile) (*pipeline.DocumentResult, error) {
				if len(doc.Sections) == 0 {
					return nil, errors.New("document has no sections")
				}
				doc.normalize()
				snap, err := terminology.LoadSnapshot(ctx, terms, doc.domains()...)
				if err != nil {
					return nil, err
				}
				a.logger.Info("worker request", "id", doc.ID, "sections", len(doc.Sections), "terms_version", snap.Version())
				return orch.TranslateDocument(ctx, snap, doc.Sections)
			}

			sub, err := natsutil.Handle(ctx, nc, a.cfg.NATS.WorkerSubject, workerQueue, handler)
			if err != nil {
				return err
			}
			a.logger.Info("worker listening", "subject", a.cfg.NATS.WorkerSubject, "queue", workerQueue)

			<-ctx.Done()
			a.logger.Info("worker draining")
			return sub.Drain()
		},
	}
}

// translateRemote sends doc to a worker and waits for the result.
func (a *app) translateRemote(ctx context.Context, doc documentFile) (*pipeline.DocumentResult, error) {
	nc, err := a.connectNATS()
	if err != nil {
		return nil, err
	}
	if nc == nil {
		return nil, errors.New("--remote requires nats.url")
	}
	defer nc.Close()
	return natsutil.Request[documentFile, *pipeline.DocumentResult](ctx, nc, a.cfg.NATS.WorkerSubject, doc)
}

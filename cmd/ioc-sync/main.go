// Command ioc-sync fetches indicators from every enabled IoC source and
// stores them as documents, then exits. Intended to run on a schedule
// (cron/k8s CronJob) outside the long-running siem-core process. Grounded
// on ioc_sources/services.py's fetch_and_store_iocs_from_source, run here
// once per enabled source rather than from an HTTP-triggered endpoint.
package main

import (
	"context"
	"log"
	"time"

	"netedge-siem/internal/docstore"
	"netedge-siem/internal/indicator"
	"netedge-siem/internal/relstore"
	"netedge-siem/pkg/config"
	"netedge-siem/pkg/database"
	"netedge-siem/pkg/logger"
)

func main() {
	cfg, err := config.Load("ioc-sync")
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	slog := logger.New(cfg.LogLevel, cfg.ServiceName)

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		slog.Fatal("failed to connect to database", "error", err)
	}
	defer db.Close()

	store := docstore.New(cfg.ElasticsearchBaseURL(), slog)
	rel := relstore.New(db, slog)
	indicatorSvc := indicator.New(store, slog, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	sources, err := rel.EnabledIoCSources(ctx)
	if err != nil {
		slog.Fatal("failed to list enabled ioc sources", "error", err)
	}
	if len(sources) == 0 {
		slog.Info("no enabled ioc sources configured")
		return
	}

	var totalAdded, totalFailed int
	for _, source := range sources {
		added, failed, err := indicatorSvc.FetchSource(ctx, source, rel, rel, rel)
		if err != nil {
			slog.Error("ioc source fetch failed", "source", source.Name, "error", err)
			continue
		}
		if err := rel.MarkIoCSourceFetched(ctx, source.ID); err != nil {
			slog.Warn("failed to record ioc source fetch timestamp", "source", source.Name, "error", err)
		}
		slog.Info("ioc source fetch complete", "source", source.Name, "added", added, "failed", failed)
		totalAdded += added
		totalFailed += failed
	}

	slog.Info("ioc-sync finished", "sources", len(sources), "total_added", totalAdded, "total_failed", totalFailed)
}

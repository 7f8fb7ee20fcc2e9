package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/tenantguard/pkg/audit"
	"github.com/platinummonkey/tenantguard/pkg/config"
	"github.com/platinummonkey/tenantguard/pkg/observability"
	"github.com/platinummonkey/tenantguard/pkg/storage"
)

func main() {
	runOnce := flag.Bool("run-once", false, "Run a single cleanup and exit instead of scheduling")
	years := flag.Int("retention-years", 0, "Override TENANTGUARD_AUDIT_RETENTION_YEARS")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *years != 0 {
		cfg.Audit.RetentionYears = *years
	}
	logger := cfg.Observability.NewLogger().WithField("component", "audit-retention")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, _, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer db.Close()

	recorder := audit.NewRecorder(audit.NewStore(db), audit.WithLogger(logger))
	job, err := audit.NewRetentionJob(recorder, cfg.Audit.RetentionYears, cfg.Audit.CleanupSchedule, logger)
	if err != nil {
		logger.WithError(err).Error("Invalid retention settings")
		os.Exit(1)
	}

	if *runOnce {
		deleted, err := job.RunOnce(ctx)
		if err != nil {
			logger.WithError(err).Error("Audit retention cleanup failed")
			os.Exit(1)
		}
		logger.WithFields(map[string]interface{}{
			"deleted":         deleted,
			"retention_years": cfg.Audit.RetentionYears,
		}).Info("Audit retention cleanup complete")
		return
	}

	if err := job.Start(); err != nil {
		logger.WithError(err).Error("Failed to start retention job")
		os.Exit(1)
	}

	<-ctx.Done()
	if err := observability.Shutdown(context.Background(), logger, cfg.Server.ShutdownTimeout, job.Stop); err != nil {
		os.Exit(1)
	}
}

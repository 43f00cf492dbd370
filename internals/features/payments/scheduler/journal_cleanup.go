package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes finished journal rows older than the cutoff.
type Purger interface {
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// StartJournalCleanup runs the purge on spec (standard 5-field cron) and returns the
// running scheduler so the caller can Stop it on shutdown.
func StartJournalCleanup(p Purger, retention time.Duration, spec string, log *zap.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() { runCleanup(p, retention, log) }); err != nil {
		return nil, err
	}
	c.Start()
	log.Info("journal cleanup scheduled", zap.String("spec", spec), zap.Duration("retention", retention))
	return c, nil
}

func runCleanup(p Purger, retention time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-retention)
	n, err := p.PurgeFinished(ctx, cutoff)
	if err != nil {
		log.Error("journal cleanup failed", zap.Error(err))
		return
	}
	log.Info("journal cleanup done", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
}

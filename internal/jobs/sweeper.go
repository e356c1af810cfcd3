package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/umutdemirel/bookable/internal/storage"
)

// Sweeper closes out finished bookings: confirmed rows whose end time has
// passed become completed. Completed rows keep blocking nothing since the
// interval is in the past, so this is bookkeeping for the dashboard, not
// conflict math.
type Sweeper struct {
	pool   storage.DB
	logger *slog.Logger
}

func NewSweeper(pool storage.DB, logger *slog.Logger) *Sweeper {
	return &Sweeper{pool: pool, logger: logger}
}

func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE bookings
		SET status = 'completed',
			updated_at = now()
		WHERE status = 'confirmed'
			AND end_time IS NOT NULL
			AND end_time < now()
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Schedule registers the sweep on the given cron, "@every 5m" by default.
func (s *Sweeper) Schedule(ctx context.Context, c *cron.Cron, spec string) error {
	if spec == "" {
		spec = "@every 5m"
	}
	_, err := c.AddFunc(spec, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		n, err := s.Sweep(sweepCtx)
		if err != nil {
			s.logger.Error("booking sweep failed", "err", err)
			return
		}
		if n > 0 {
			s.logger.Info("bookings marked completed", "count", n)
		}
	})
	return err
}

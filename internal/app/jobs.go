/**
 * @description
 * Cron-driven maintenance for deposit holds. The sweep promotes every
 * HOLDING record whose window has elapsed to READY so staff dashboards and
 * refund queues see them without waiting for a read to trigger the same
 * promotion.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling with panic recovery.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rentiva/settlement-service/internal/store"
)

const holdSweepTimeout = 30 * time.Second

// HoldSweeper runs the periodic promotion of due deposit holds.
type HoldSweeper struct {
	cron     *cron.Cron
	repo     store.Repository
	schedule string
}

// NewHoldSweeper creates the sweeper with panic recovery on the job chain.
func NewHoldSweeper(repo store.Repository, schedule string) *HoldSweeper {
	cronLogger := cron.PrintfLogger(log.Default())
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &HoldSweeper{
		cron:     c,
		repo:     repo,
		schedule: schedule,
	}
}

// Start registers the sweep and starts the scheduler.
func (h *HoldSweeper) Start() {
	if _, err := h.cron.AddFunc(h.schedule, h.sweep); err != nil {
		log.Printf("level=error component=hold_sweeper msg=\"failed to schedule hold sweep\" schedule=%q err=%v", h.schedule, err)
		return
	}
	log.Printf("level=info component=hold_sweeper msg=\"scheduled hold sweep\" schedule=%q", h.schedule)
	h.cron.Start()
}

// Stop gracefully stops the scheduler and returns a context that is done
// once running jobs finish.
func (h *HoldSweeper) Stop() context.Context {
	return h.cron.Stop()
}

func (h *HoldSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), holdSweepTimeout)
	defer cancel()

	promoted, err := h.repo.PromoteDueHolds(ctx, time.Now())
	if err != nil {
		log.Printf("level=error component=hold_sweeper msg=\"hold sweep failed\" err=%v", err)
		return
	}
	if promoted > 0 {
		log.Printf("level=info component=hold_sweeper msg=\"promoted due holds\" count=%d", promoted)
	}
}

package products

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pi-trace/registry/pkg/logger"
)

const syncTimeout = 30 * time.Second

// SyncJob periodically re-pushes locally saved products once the remote
// store is reachable again, completing the degraded-mode story.
type SyncJob struct {
	cron *cron.Cron
	reg  *Registry
	log  *logger.Logger
}

// NewSyncJob schedules SyncLocal on the given cron spec (e.g. "@every 1m").
func NewSyncJob(reg *Registry, schedule string, log *logger.Logger) (*SyncJob, error) {
	j := &SyncJob{
		cron: cron.New(),
		reg:  reg,
		log:  log.Named("sync"),
	}
	if _, err := j.cron.AddFunc(schedule, j.run); err != nil {
		return nil, fmt.Errorf("schedule sync job: %w", err)
	}
	return j, nil
}

// Start begins the schedule.
func (j *SyncJob) Start() { j.cron.Start() }

// Stop halts the schedule and waits for a running push to finish.
func (j *SyncJob) Stop() {
	<-j.cron.Stop().Done()
}

func (j *SyncJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	pushed, err := j.reg.SyncLocal(ctx)
	if err != nil {
		if err == ErrNoSession {
			return
		}
		j.log.WithError(err).Debug("sync pass incomplete")
		return
	}
	if pushed > 0 {
		j.log.WithField("count", pushed).Info("sync pass pushed local records")
	}
}

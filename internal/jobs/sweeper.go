package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/voxbridge/signal-server-go/internal/repository"
)

// SweeperJob is the safety net behind the in-memory ring timers: a process
// restart loses the timers, so a periodic pass marks any call still sitting
// in initiated or ringing past the timeout window as missed.
type SweeperJob struct {
	callRepo    repository.CallRepository
	ringTimeout time.Duration
	interval    time.Duration
	done        chan struct{}
}

func NewSweeperJob(callRepo repository.CallRepository, ringTimeout, interval time.Duration) *SweeperJob {
	return &SweeperJob{
		callRepo:    callRepo,
		ringTimeout: ringTimeout,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *SweeperJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("stale call sweeper started")
}

func (j *SweeperJob) Stop() {
	close(j.done)
	log.Info().Msg("stale call sweeper stopped")
}

func (j *SweeperJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *SweeperJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := j.callRepo.MarkStaleMissed(ctx, j.ringTimeout)
	if err != nil {
		log.Error().Err(err).Msg("failed to sweep stale calls")
		return
	}
	if count > 0 {
		log.Info().Int64("count", count).Msg("stale calls marked missed")
	}
}

// Package scheduler drives the poll coordinator on a fixed interval and runs
// daily history maintenance.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Trigger starts a poll cycle. A dropped trigger (poll already running)
// returns false.
type Trigger interface {
	TriggerPoll() bool
}

// Evictor runs a retention pass over stored history.
type Evictor interface {
	EvictExpired()
}

type Scheduler struct {
	ctx      context.Context
	trigger  Trigger
	evictor  Evictor
	logger   *logrus.Logger
	cron     *cron.Cron
	interval time.Duration
}

func NewScheduler(ctx context.Context, trigger Trigger, evictor Evictor, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:      ctx,
		trigger:  trigger,
		evictor:  evictor,
		logger:   logger,
		cron:     cron.New(),
		interval: interval,
	}
}

// Start the scheduler
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), s.pollTick)
	if err != nil {
		return err
	}

	// retention pass once a day, shortly after midnight
	_, err = s.cron.AddFunc("5 0 * * *", s.maintenance)
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) pollTick() {
	if s.ctx.Err() != nil {
		return
	}
	if !s.trigger.TriggerPoll() {
		s.logger.Debug("Scheduled poll skipped, previous poll still running")
	}
}

func (s *Scheduler) maintenance() {
	if s.ctx.Err() != nil {
		return
	}
	s.evictor.EvictExpired()
	s.logger.Debug("History retention pass completed")
}

// Stop the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

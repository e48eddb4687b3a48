// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2025-2026 timegrid contributors
// https://github.com/veliq/timegrid

// Package scheduler runs the background availability refresh sweep. On a
// cron schedule it walks every stored calendar integration, pulls its busy
// windows through the availability aggregator, and thereby keeps each
// integration's sync health (last synced timestamp, sync error) current
// without waiting for a user to request an overview.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/veliq/timegrid/internal/availability"
	"github.com/veliq/timegrid/internal/models"
	"github.com/veliq/timegrid/internal/pkg/errors"
	"github.com/veliq/timegrid/internal/pkg/logger"
)

// IntegrationSource lists every calendar integration to refresh.
type IntegrationSource interface {
	ListAllIntegrations(ctx context.Context) ([]*models.CalendarIntegration, error)
}

// Config holds sweep configuration
type Config struct {
	// Schedule is a standard 5-field cron expression.
	Schedule string

	// HorizonMonths is how far ahead of the sweep time busy windows are
	// collected.
	HorizonMonths int

	// SweepTimeout bounds a single sweep across all integrations.
	SweepTimeout time.Duration
}

// DefaultConfig returns default sweep configuration
func DefaultConfig() *Config {
	return &Config{
		Schedule:      "*/15 * * * *",
		HorizonMonths: 3,
		SweepTimeout:  2 * time.Minute,
	}
}

// Scheduler periodically refreshes availability for all integrations.
type Scheduler struct {
	config     *Config
	cron       *cron.Cron
	source     IntegrationSource
	aggregator *availability.Aggregator
	logger     *logger.Logger
	clock      func() time.Time

	// State
	running      bool
	mu           sync.RWMutex
	entryID      cron.EntryID
	lifecycleCtx context.Context
}

// New creates a new sweep scheduler. clock may be nil, in which case
// time.Now is used.
func New(source IntegrationSource, aggregator *availability.Aggregator, config *Config, log *logger.Logger) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Nop()
	}

	// Cron with panic recovery so a bad sweep cannot kill the process
	cronInstance := cron.New(
		cron.WithChain(
			cron.Recover(cron.DefaultLogger),
		),
	)

	return &Scheduler{
		config:     config,
		cron:       cronInstance,
		source:     source,
		aggregator: aggregator,
		logger:     log.Named("scheduler"),
		clock:      time.Now,
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// Start registers the sweep with cron and begins running it on schedule.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New(errors.CodeValidationFailed, "scheduler already running")
	}
	s.running = true
	s.lifecycleCtx = ctx
	s.mu.Unlock()

	entryID, err := s.cron.AddFunc(s.config.Schedule, s.runScheduledSweep)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return errors.Wrap(err, errors.CodeValidationFailed,
			fmt.Sprintf("invalid sweep schedule %q", s.config.Schedule))
	}
	s.entryID = entryID

	s.logger.Info("starting availability sweep",
		"schedule", s.config.Schedule,
		"horizon_months", s.config.HorizonMonths,
	)
	s.cron.Start()
	return nil
}

// Stop stops the scheduler gracefully, waiting for a running sweep to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping availability sweep")
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.logger.Info("availability sweep stopped")
	return nil
}

// IsRunning returns true if the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ============================================================================
// Sweep
// ============================================================================

func (s *Scheduler) runScheduledSweep() {
	parent := s.lifecycleCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, s.config.SweepTimeout)
	defer cancel()

	swept, err := s.RunSweep(ctx)
	if err != nil {
		s.logger.Error("availability sweep failed", "error", err)
		return
	}
	s.logger.Debug("availability sweep complete", "integrations", swept)
}

// RunSweep refreshes every integration once and returns how many were
// touched. Per-integration fetch failures are recorded as sync errors by the
// aggregator and do not fail the sweep.
func (s *Scheduler) RunSweep(ctx context.Context) (int, error) {
	integrations, err := s.source.ListAllIntegrations(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeDatabaseError, "failed to list integrations for sweep")
	}
	if len(integrations) == 0 {
		return 0, nil
	}

	now := s.clock()
	win := models.TimeWindow{From: now, To: now.AddDate(0, s.config.HorizonMonths, 0)}

	// Group by owner so cross-user duplicates are never merged.
	byUser := make(map[uuid.UUID][]*models.CalendarIntegration)
	for _, integration := range integrations {
		byUser[integration.UserID] = append(byUser[integration.UserID], integration)
	}

	for _, group := range byUser {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		s.aggregator.Collect(ctx, group, win)
	}
	return len(integrations), nil
}

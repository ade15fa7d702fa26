package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/decoupled/internal/common"
	"github.com/ternarybob/decoupled/internal/interfaces"
)

// Service runs the indexing pipeline on a cron schedule and on demand.
// Runs never overlap.
type Service struct {
	indexing   interfaces.IndexingService
	schedule   string
	runTimeout time.Duration
	cron       *cron.Cron
	logger     arbor.ILogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex // Protects isProcessing, running, cancellation and wg.Add
	isProcessing bool
	running      bool
}

// NewService creates a scheduler for the indexing pipeline
func NewService(indexing interfaces.IndexingService, config *common.IndexingConfig, logger arbor.ILogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		indexing:   indexing,
		schedule:   config.Schedule,
		runTimeout: common.ParseDurationOr(config.RunTimeout, 30*time.Minute),
		cron:       cron.New(),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the configured schedule. An empty schedule leaves only
// on-demand runs enabled.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.schedule == "" {
		s.logger.Info().Msg("Indexing schedule disabled, on-demand runs only")
	} else {
		if err := common.ValidateSchedule(s.schedule); err != nil {
			return err
		}
		if _, err := s.cron.AddFunc(s.schedule, s.runScheduled); err != nil {
			return fmt.Errorf("failed to add cron job: %w", err)
		}
		s.logger.Info().Str("schedule", s.schedule).Msg("Indexing schedule registered")
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Msg("Scheduler started")
	return nil
}

// Stop halts the schedule, cancels an in-flight run and waits for it to return
func (s *Service) Stop() {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	s.cancel()
	s.mu.Unlock()

	if wasRunning {
		<-s.cron.Stop().Done()
	}
	s.wg.Wait()

	s.logger.Info().Msg("Scheduler stopped")
}

// TriggerNow starts a background run unless one is already active
func (s *Service) TriggerNow(trigger string) error {
	s.mu.Lock()
	if err := s.ctx.Err(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler stopped: %w", err)
	}
	if s.isProcessing {
		s.mu.Unlock()
		return interfaces.ErrRunInProgress
	}
	s.isProcessing = true
	// Stop cancels under mu, so a run added here is always waited for
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release()
		s.execute(trigger)
	}()
	return nil
}

// IsRunning reports whether an indexing run is in progress
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isProcessing
}

func (s *Service) runScheduled() {
	if !s.acquire() {
		s.logger.Warn().Msg("Skipping scheduled indexing run, previous run still in progress")
		return
	}
	defer s.release()
	s.execute("schedule")
}

func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isProcessing {
		return false
	}
	s.isProcessing = true
	return true
}

func (s *Service) release() {
	s.mu.Lock()
	s.isProcessing = false
	s.mu.Unlock()
}

func (s *Service) execute(trigger string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Str("trigger", trigger).Msg("Indexing run panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()

	s.logger.Info().Str("trigger", trigger).Msg("Starting indexing run")
	if _, err := s.indexing.Run(ctx, trigger); err != nil {
		s.logger.Error().Err(err).Str("trigger", trigger).Msg("Indexing run failed")
	}
}

var _ interfaces.SchedulerService = (*Service)(nil)

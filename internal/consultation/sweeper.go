package consultation

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// SweeperConfig controls how long consultations stay open
type SweeperConfig struct {
	Interval  time.Duration
	Retention time.Duration
	MaxIdle   time.Duration
	Clock     clock.Clock
}

// Sweeper periodically closes completed and abandoned consultations
type Sweeper struct {
	registry *Registry
	config   SweeperConfig
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewSweeper creates a sweeper for the registry
func NewSweeper(registry *Registry, config SweeperConfig, logger *zap.Logger) *Sweeper {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	return &Sweeper{
		registry: registry,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the background sweep loop
func (s *Sweeper) Start() {
	go s.loop()
	s.logger.Info("Consultation sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("retention", s.config.Retention),
		zap.Duration("maxIdle", s.config.MaxIdle))
}

// Stop ends the loop and waits for it to exit
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.doneChan
	s.logger.Info("Consultation sweeper stopped")
}

func (s *Sweeper) loop() {
	defer close(s.doneChan)

	ticker := s.config.Clock.Ticker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce performs a single sweep
func (s *Sweeper) RunOnce() int {
	closed := s.registry.Sweep(s.config.Retention, s.config.MaxIdle)
	if closed > 0 {
		s.logger.Info("Swept consultations",
			zap.Int("closed", closed),
			zap.Int("open", s.registry.Len()))
	}
	return closed
}

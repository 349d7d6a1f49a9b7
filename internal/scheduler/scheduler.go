package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/suwandre/fundingarb/internal/premium"
	"github.com/suwandre/fundingarb/internal/scanner"
	"github.com/suwandre/fundingarb/internal/snapshot"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultScanInterval   = 60 * time.Second
	DefaultSampleInterval = 5 * time.Second
)

type Options struct {
	ScanInterval   time.Duration
	SampleInterval time.Duration
	// WatchSymbols are sampled for premium history on every exchange of the engine.
	WatchSymbols []string
}

type Scheduler struct {
	scanner *scanner.Scanner
	engine  *premium.Engine
	sink    snapshot.Sink
	opts    Options

	mu   sync.RWMutex
	last *scanner.Report

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewScheduler wires the scan loop to sc and sink. A nil engine disables premium sampling.
func NewScheduler(sc *scanner.Scanner, engine *premium.Engine, sink snapshot.Sink, opts Options) *Scheduler {
	if opts.ScanInterval <= 0 {
		opts.ScanInterval = DefaultScanInterval
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	return &Scheduler{
		scanner: sc,
		engine:  engine,
		sink:    sink,
		opts:    opts,
		stopCh:  make(chan struct{}),
	}
}

// Begins the scan and sampling loops in background goroutines.
func (s *Scheduler) Start(ctx context.Context) {
	// Run once immediately so the first request finds data
	s.RunScan(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(ctx, s.opts.ScanInterval, func() { s.RunScan(ctx) })
	}()

	if s.engine != nil && len(s.opts.WatchSymbols) > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, s.opts.SampleInterval, func() { s.SampleOnce(ctx) })
		}()
	}

	log.Info().
		Stringer("scan_interval", s.opts.ScanInterval).
		Stringer("sample_interval", s.opts.SampleInterval).
		Strs("watch", s.opts.WatchSymbols).
		Msg("scheduler started")
}

// One goroutine per loop, so a slow cycle delays the next tick instead of overlapping it.
func (s *Scheduler) loop(ctx context.Context, every time.Duration, run func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		}
	}
}

// Signals the background goroutines to exit and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	log.Info().Msg("scheduler stopped")
}

// RunScan runs one scan cycle, keeps its report and saves the ranked list when it is not empty.
func (s *Scheduler) RunScan(ctx context.Context) *scanner.Report {
	report, err := s.scanner.Scan(ctx)
	if err != nil {
		log.Error().Err(err).Msg("scan cycle failed")
		return nil
	}

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()

	if len(report.Opportunities) == 0 {
		log.Warn().Int("drops", len(report.Drops)).Msg("scan produced no opportunities, snapshot not saved")
		return report
	}

	snap := snapshot.New(report.Opportunities, report.Finished)
	if err := s.sink.Save(ctx, snap); err != nil {
		log.Error().Err(err).Msg("failed to save snapshot")
		return report
	}

	log.Info().
		Str("snapshot", snap.ID.String()).
		Int("opportunities", len(report.Opportunities)).
		Msg("snapshot saved")
	return report
}

// SampleOnce appends one premium sample per watch symbol and exchange. It returns how many succeeded.
func (s *Scheduler) SampleOnce(ctx context.Context) int {
	if s.engine == nil {
		return 0
	}

	exchanges := s.engine.Exchanges()
	var (
		mu sync.Mutex
		ok int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, len(exchanges)))
	for _, symbol := range s.opts.WatchSymbols {
		for _, name := range exchanges {
			g.Go(func() error {
				if _, err := s.engine.Sample(gctx, name, symbol); err != nil {
					log.Debug().Err(err).Str("exchange", name).Str("symbol", symbol).Msg("premium sample skipped")
					return nil
				}
				mu.Lock()
				ok++
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	return ok
}

// Latest returns the newest saved snapshot.
func (s *Scheduler) Latest(ctx context.Context) (*snapshot.Snapshot, error) {
	return s.sink.Latest(ctx)
}

// Returns the report of the most recent successful cycle.
func (s *Scheduler) LastReport() (*scanner.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last != nil
}

func (s *Scheduler) Engine() *premium.Engine {
	return s.engine
}

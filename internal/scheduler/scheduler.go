package scheduler

import (
	"context"
	"log/slog"
	"time"

	"tickermood/pkg/alert"
	"tickermood/pkg/sentiment"
	"tickermood/pkg/source"
)

// Scheduler runs periodic scraping and sentiment analysis.
type Scheduler struct {
	sources    []source.Source
	analyzer   *sentiment.Analyzer
	alertMgr   *alert.Manager
	scrapeInt  time.Duration
	analyzeInt time.Duration

	// lastSignal tracks the previous recommendation per symbol so a stock
	// only alerts when its signal changes, not on every analyze pass.
	lastSignal map[string]sentiment.Recommendation
}

// New creates a new scheduler.
func New(
	sources []source.Source,
	analyzer *sentiment.Analyzer,
	alertMgr *alert.Manager,
	scrapeInt, analyzeInt time.Duration,
) *Scheduler {
	if scrapeInt == 0 {
		scrapeInt = 30 * time.Minute
	}
	if analyzeInt == 0 {
		analyzeInt = time.Hour
	}
	return &Scheduler{
		sources:    sources,
		analyzer:   analyzer,
		alertMgr:   alertMgr,
		scrapeInt:  scrapeInt,
		analyzeInt: analyzeInt,
		lastSignal: make(map[string]sentiment.Recommendation),
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	scrapeTicker := time.NewTicker(s.scrapeInt)
	analyzeTicker := time.NewTicker(s.analyzeInt)
	defer scrapeTicker.Stop()
	defer analyzeTicker.Stop()

	// Run immediately on start.
	slog.Info("scheduler starting", "scrape_interval", s.scrapeInt, "analyze_interval", s.analyzeInt)
	s.scrapeAll(ctx)
	s.analyzeAndAlert(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return ctx.Err()
		case <-scrapeTicker.C:
			s.scrapeAll(ctx)
		case <-analyzeTicker.C:
			s.analyzeAndAlert(ctx)
		}
	}
}

func (s *Scheduler) scrapeAll(ctx context.Context) {
	var total source.Result
	for _, src := range s.sources {
		res, err := src.Scrape(ctx)
		total.Add(res)
		if err != nil {
			slog.Error("scrape failed", "source", src.Name(), "error", err)
			continue
		}
		slog.Info("scrape complete", "source", src.Name(),
			"stored", res.Stored, "skipped", res.Skipped)
	}
	slog.Info("scrape pass finished",
		"stored", total.Stored, "skipped", total.Skipped,
		"duplicates", total.Duplicates, "no_match", total.NoMatch)
}

func (s *Scheduler) analyzeAndAlert(ctx context.Context) {
	reports, err := s.analyzer.AnalyzeAll(ctx)
	if err != nil {
		slog.Error("analysis failed", "error", err)
		return
	}

	for _, r := range reports {
		slog.Info("analysis", "symbol", r.Symbol,
			"recommendation", r.Recommendation,
			"avg_sentiment", r.Summary.AverageSentiment,
			"mentions", r.Summary.TotalMentions)

		prev := s.lastSignal[r.Symbol]
		if r.Recommendation == prev || r.Recommendation == sentiment.Hold {
			s.lastSignal[r.Symbol] = r.Recommendation
			continue
		}

		if !s.alertMgr.HasNotifiers() {
			s.lastSignal[r.Symbol] = r.Recommendation
			continue
		}

		n := &alert.Notification{
			Symbol:         r.Symbol,
			Recommendation: string(r.Recommendation),
			Sentiment:      r.Summary.AverageSentiment,
			Mentions:       r.Summary.TotalMentions,
			Analyzed:       r.Summary.AnalyzedCount,
		}
		if err := s.alertMgr.Broadcast(ctx, n); err != nil {
			slog.Error("alert failed", "symbol", r.Symbol, "error", err)
			continue
		}

		s.lastSignal[r.Symbol] = r.Recommendation
		slog.Info("alerted", "symbol", r.Symbol, "recommendation", r.Recommendation)
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"tickermood/internal/config"
	"tickermood/internal/scheduler"
	"tickermood/internal/store"
	"tickermood/pkg/alert"
	"tickermood/pkg/pipeline"
	"tickermood/pkg/sentiment"
	"tickermood/pkg/server"
	"tickermood/pkg/source"
	"tickermood/pkg/ticker"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// buildSources wires the scrape path. Every configured ticker gets its stock
// row up front so the first scrape has rows to attach mentions to.
func buildSources(ctx context.Context, cfg *config.Config, db store.Store) ([]source.Source, error) {
	if err := ensureStocks(ctx, db, cfg.Reddit.Tickers); err != nil {
		return nil, err
	}

	pipe := pipeline.New(db, ticker.New(cfg.Reddit.Tickers))

	sources := []source.Source{
		source.NewReddit(cfg.Reddit, pipe),
	}

	for _, src := range sources {
		if err := src.ValidateConfig(); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func ensureStocks(ctx context.Context, db store.Store, tickers []string) error {
	for _, sym := range tickers {
		if _, err := db.UpsertStock(ctx, sym); err != nil {
			return fmt.Errorf("ensure stock %s: %w", sym, err)
		}
	}
	return nil
}

func buildAnalyzer(cfg *config.Config, db store.Store) *sentiment.Analyzer {
	return sentiment.NewAnalyzer(db, cfg.Analysis.BuyThreshold, cfg.Analysis.SellThreshold)
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runScrape() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	sources, err := buildSources(ctx, cfg, db)
	if err != nil {
		return err
	}

	var total source.Result
	for _, src := range sources {
		res, err := src.Scrape(ctx)
		if err != nil {
			slog.Error("scrape failed", "source", src.Name(), "error", err)
			continue
		}
		total.Add(res)
	}

	slog.Info("scrape finished",
		"stored", total.Stored,
		"skipped", total.Skipped,
		"duplicates", total.Duplicates,
		"no_match", total.NoMatch,
	)
	return nil
}

func runAnalyze(symbol string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	analyzer := buildAnalyzer(cfg, db)
	ctx := context.Background()

	var reports []sentiment.StockReport
	if symbol != "" {
		sym := strings.ToUpper(symbol)
		summary, err := analyzer.AnalyzeStock(ctx, sym)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", sym, err)
		}
		reports = []sentiment.StockReport{{
			Symbol:         sym,
			Summary:        summary,
			Recommendation: analyzer.Recommend(summary.AverageSentiment, summary.TotalMentions),
		}}
	} else {
		reports, err = analyzer.AnalyzeAll(ctx)
		if err != nil {
			return fmt.Errorf("analyze stocks: %w", err)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}

	if len(reports) == 0 {
		fmt.Println("no stocks tracked (try scraping first: tickermood scrape)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIGNAL\tSENTIMENT\tMENTIONS\tANALYZED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%.2f\t%d\t%d\n",
			r.Symbol, r.Recommendation,
			r.Summary.AverageSentiment, r.Summary.TotalMentions, r.Summary.AnalyzedCount)
	}
	return w.Flush()
}

func runSummary() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	stocks, err := db.Stocks(ctx)
	if err != nil {
		return fmt.Errorf("list stocks: %w", err)
	}

	type stockCount struct {
		symbol string
		count  int
	}
	counts := make([]stockCount, 0, len(stocks))
	total := 0
	for _, s := range stocks {
		n, err := db.CountMentions(ctx, s.Symbol)
		if err != nil {
			return fmt.Errorf("count mentions for %s: %w", s.Symbol, err)
		}
		counts = append(counts, stockCount{s.Symbol, n})
		total += n
	}

	fmt.Println("=== Data Summary ===")
	fmt.Printf("Tracked stocks: %d\n", len(stocks))
	fmt.Printf("Total mentions: %d\n", total)
	for _, c := range counts {
		fmt.Printf("  %s: %d mentions\n", c.symbol, c.count)
	}

	recent, err := db.RecentMentions(ctx, 5)
	if err != nil {
		return fmt.Errorf("recent mentions: %w", err)
	}
	if len(recent) > 0 {
		fmt.Println("\nRecent mentions:")
		for _, m := range recent {
			fmt.Printf("  [%s] %s\n", m.Symbol, excerpt(m.Content, 50))
		}
	}
	return nil
}

// excerpt flattens newlines and truncates for one-line display.
func excerpt(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sources, err := buildSources(context.Background(), cfg, db)
	if err != nil {
		return err
	}

	srv := server.New(db, buildAnalyzer(cfg, db), sources, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sources, err := buildSources(ctx, cfg, db)
	if err != nil {
		return err
	}

	analyzer := buildAnalyzer(cfg, db)
	alertMgr := buildAlertManager(cfg)

	sched := scheduler.New(sources, analyzer, alertMgr,
		cfg.Schedule.ParseScrapeInterval(),
		cfg.Schedule.ParseAnalyzeInterval(),
	)

	// Scheduler in the background, HTTP server in the foreground.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		slog.Info("shutting down")
	}()

	srv := server.New(db, analyzer, sources, port)
	return srv.ListenAndServe()
}

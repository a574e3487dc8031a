package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tickermood/internal/store"
	"tickermood/pkg/sentiment"
	"tickermood/pkg/source"
)

// Store is the slice of the persistence layer the API reads.
type Store interface {
	Stocks(ctx context.Context) ([]store.Stock, error)
	StockID(ctx context.Context, symbol string) (int64, bool, error)
	CountMentions(ctx context.Context, symbol string) (int, error)
	MentionsForStock(ctx context.Context, symbol string, limit int) ([]store.Mention, error)
	RecentMentions(ctx context.Context, limit int) ([]store.StockMention, error)
}

// Handler serves the HTTP API.
type Handler struct {
	store    Store
	analyzer *sentiment.Analyzer
	sources  []source.Source
}

// NewHandler creates a new API handler.
func NewHandler(st Store, analyzer *sentiment.Analyzer, sources []source.Source) *Handler {
	return &Handler{store: st, analyzer: analyzer, sources: sources}
}

func (h *Handler) GetHealth(c *gin.Context) {
	if _, err := h.store.Stocks(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "disconnected",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

func (h *Handler) GetStocks(c *gin.Context) {
	ctx := c.Request.Context()

	stocks, err := h.store.Stocks(ctx)
	if err != nil {
		slog.Error("error fetching stocks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := make([]StockResponse, 0, len(stocks))
	for _, s := range stocks {
		count, err := h.store.CountMentions(ctx, s.Symbol)
		if err != nil {
			slog.Error("error counting mentions", "symbol", s.Symbol, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		res = append(res, StockResponse{
			Symbol:    s.Symbol,
			Mentions:  count,
			CreatedAt: s.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetStockMentions(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit := getQueryLimit(c)
	ctx := c.Request.Context()

	_, ok, err := h.store.StockID(ctx, symbol)
	if err != nil {
		slog.Error("error looking up stock", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown symbol"})
		return
	}

	total, err := h.store.CountMentions(ctx, symbol)
	if err != nil {
		slog.Error("error counting mentions", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	mentions, err := h.store.MentionsForStock(ctx, symbol, limit)
	if err != nil {
		slog.Error("error fetching mentions", "symbol", symbol, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := StockMentionsResponse{
		Symbol:   symbol,
		Mentions: make([]MentionResponse, 0, len(mentions)),
		Total:    total,
		Limit:    limit,
	}
	for _, m := range mentions {
		res.Mentions = append(res.Mentions, toMentionResponse(m))
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetRecentMentions(c *gin.Context) {
	limit := getQueryLimit(c)

	mentions, err := h.store.RecentMentions(c.Request.Context(), limit)
	if err != nil {
		slog.Error("error fetching recent mentions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	res := make([]MentionResponse, 0, len(mentions))
	for _, m := range mentions {
		r := toMentionResponse(m.Mention)
		r.Symbol = m.Symbol
		res = append(res, r)
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetSignals(c *gin.Context) {
	reports, err := h.analyzer.AnalyzeAll(c.Request.Context())
	if err != nil {
		slog.Error("error analyzing stocks", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis error"})
		return
	}

	res := make([]SignalResponse, 0, len(reports))
	for _, r := range reports {
		res = append(res, SignalResponse{
			Symbol:           r.Symbol,
			Recommendation:   string(r.Recommendation),
			AverageSentiment: r.Summary.AverageSentiment,
			TotalMentions:    r.Summary.TotalMentions,
			AnalyzedCount:    r.Summary.AnalyzedCount,
		})
	}

	c.JSON(http.StatusOK, res)
}

func (h *Handler) TriggerScrape(c *gin.Context) {
	ctx := c.Request.Context()
	res := ScrapeResponse{Results: make(map[string]ScrapeResult)}

	for _, src := range h.sources {
		result, err := src.Scrape(ctx)
		if err != nil {
			slog.Error("scrape failed", "source", src.Name(), "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}
		res.Results[src.Name()] = ScrapeResult{
			Stored:     result.Stored,
			Skipped:    result.Skipped,
			Duplicates: result.Duplicates,
			NoMatch:    result.NoMatch,
		}
	}

	c.JSON(http.StatusOK, res)
}

func getQueryInt(name string, defaultValue int, c *gin.Context) int {
	raw := c.Query(name)
	if raw == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid query parameter, using default", "param", name, "value", raw, "error", err)
		return defaultValue
	}

	return parsed
}

func getQueryLimit(c *gin.Context) int {
	const (
		defaultLimit = 10
		maxLimit     = 100
	)

	limit := getQueryInt("limit", defaultLimit, c)
	if limit < 1 {
		slog.Warn("invalid query parameter, using default", "param", "limit", "value", limit, "default", defaultLimit)
		return defaultLimit
	}

	if limit > maxLimit {
		slog.Warn("query parameter exceeds max, clamping", "param", "limit", "value", limit, "max", maxLimit)
		return maxLimit
	}

	return limit
}

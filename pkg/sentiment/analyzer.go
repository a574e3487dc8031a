package sentiment

import (
	"context"
	"fmt"

	"tickermood/internal/store"
)

// Recommendation is the trading signal derived from aggregate sentiment.
type Recommendation string

const (
	Buy  Recommendation = "BUY"
	Sell Recommendation = "SELL"
	Hold Recommendation = "HOLD"
)

// MinMentions is the evidence floor below which every recommendation is HOLD.
const MinMentions = 5

// Summary aggregates sentiment over the stored mentions of one stock.
type Summary struct {
	AverageSentiment float64
	TotalMentions    int
	AnalyzedCount    int
}

// StockReport pairs a per-stock summary with its recommendation.
type StockReport struct {
	Symbol         string
	Summary        Summary
	Recommendation Recommendation
}

// Store is the slice of the persistence layer the analyzer reads and writes.
type Store interface {
	AllStockSymbols(ctx context.Context) ([]string, error)
	MentionsForStock(ctx context.Context, symbol string, limit int) ([]store.Mention, error)
	SetSentiment(ctx context.Context, externalID string, score float64) (bool, error)
}

// Analyzer scores stored mentions and derives recommendations.
type Analyzer struct {
	store         Store
	buyThreshold  float64
	sellThreshold float64
}

// NewAnalyzer creates an analyzer with the given recommendation thresholds.
func NewAnalyzer(s Store, buyThreshold, sellThreshold float64) *Analyzer {
	return &Analyzer{store: s, buyThreshold: buyThreshold, sellThreshold: sellThreshold}
}

// AnalyzeStock aggregates sentiment over all mentions of symbol. Mentions
// already carrying a score are summed as-is; the rest are scored now and
// written back, so repeat runs only pay for new rows.
func (a *Analyzer) AnalyzeStock(ctx context.Context, symbol string) (Summary, error) {
	mentions, err := a.store.MentionsForStock(ctx, symbol, 0)
	if err != nil {
		return Summary{}, fmt.Errorf("load mentions for %s: %w", symbol, err)
	}

	var sum float64
	var analyzed int
	for _, m := range mentions {
		if m.Sentiment.Valid {
			sum += m.Sentiment.Float64
			analyzed++
			continue
		}

		// A metadata blob that no longer decodes means the row is damaged,
		// so abort the whole pass instead of skipping it.
		if _, err := m.Meta(); err != nil {
			return Summary{}, fmt.Errorf("mention %d: %w", m.ID, err)
		}

		// Without an external id the score has nowhere to be persisted.
		if !m.ExternalID.Valid {
			continue
		}

		score := Score(m.Content, symbol)
		ok, err := a.store.SetSentiment(ctx, m.ExternalID.String, score)
		if err != nil {
			return Summary{}, fmt.Errorf("set sentiment %s: %w", m.ExternalID.String, err)
		}
		if !ok {
			continue
		}
		sum += score
		analyzed++
	}

	s := Summary{TotalMentions: len(mentions), AnalyzedCount: analyzed}
	if analyzed > 0 {
		s.AverageSentiment = sum / float64(analyzed)
	}
	return s, nil
}

// AnalyzeAll runs AnalyzeStock for every tracked stock and attaches a
// recommendation to each, in symbol order.
func (a *Analyzer) AnalyzeAll(ctx context.Context) ([]StockReport, error) {
	symbols, err := a.store.AllStockSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}

	reports := make([]StockReport, 0, len(symbols))
	for _, sym := range symbols {
		summary, err := a.AnalyzeStock(ctx, sym)
		if err != nil {
			return nil, err
		}
		reports = append(reports, StockReport{
			Symbol:         sym,
			Summary:        summary,
			Recommendation: a.Recommend(summary.AverageSentiment, summary.TotalMentions),
		})
	}
	return reports, nil
}

// Recommend turns an aggregate sentiment and mention count into a signal.
// Below MinMentions the answer is always HOLD, whatever the score says.
func (a *Analyzer) Recommend(avgSentiment float64, mentionCount int) Recommendation {
	if mentionCount < MinMentions {
		return Hold
	}
	if avgSentiment >= a.buyThreshold {
		return Buy
	}
	if avgSentiment <= a.sellThreshold {
		return Sell
	}
	return Hold
}

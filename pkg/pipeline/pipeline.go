package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"tickermood/internal/store"
	"tickermood/pkg/ticker"
)

// Reason classifies items that stored nothing.
type Reason int

const (
	ReasonNone      Reason = iota // at least one mention stored
	ReasonNoMatch                 // no tracked ticker in the text
	ReasonDuplicate               // external id already stored
	ReasonUntracked               // matched tickers have no stock rows
)

// Pipeline turns one piece of content into mention rows.
type Pipeline struct {
	store     store.Store
	extractor *ticker.Extractor
}

// New creates a pipeline over the given store and extractor.
func New(st store.Store, ex *ticker.Extractor) *Pipeline {
	return &Pipeline{store: st, extractor: ex}
}

// Process extracts tickers from content and stores one mention per matched,
// tracked ticker. The duplicate check runs once per item, before the
// per-ticker fan-out. It reports how many mentions were stored and, when
// none were, why.
func (p *Pipeline) Process(ctx context.Context, content, url, externalID string, meta store.Metadata) (int, Reason, error) {
	tickers := p.extractor.Extract(content)
	if len(tickers) == 0 {
		return 0, ReasonNoMatch, nil
	}

	if externalID != "" {
		dup, err := p.store.ExistsByExternalID(ctx, externalID)
		if err != nil {
			return 0, ReasonNone, fmt.Errorf("check duplicate %s: %w", externalID, err)
		}
		if dup {
			slog.Debug("skipping duplicate item", "external_id", externalID)
			return 0, ReasonDuplicate, nil
		}
	}

	meta.Tickers = tickers

	stored := 0
	for _, sym := range tickers {
		id, ok, err := p.store.StockID(ctx, sym)
		if err != nil {
			return stored, ReasonNone, fmt.Errorf("look up stock %s: %w", sym, err)
		}
		if !ok {
			// Matched but untracked symbols are dropped, not errors.
			slog.Debug("skipping untracked symbol", "symbol", sym)
			continue
		}

		inserted, err := p.store.InsertMention(ctx, store.MentionInput{
			StockID:    id,
			Content:    content,
			URL:        url,
			ExternalID: externalID,
			Metadata:   &meta,
		})
		if err != nil {
			return stored, ReasonNone, fmt.Errorf("store mention of %s: %w", sym, err)
		}
		if inserted {
			stored++
		}
	}

	if stored == 0 {
		return 0, ReasonUntracked, nil
	}
	return stored, ReasonNone, nil
}

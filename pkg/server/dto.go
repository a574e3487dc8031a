package server

import (
	"time"

	"tickermood/internal/store"
)

type StockResponse struct {
	Symbol    string `json:"symbol"`
	Mentions  int    `json:"mentions"`
	CreatedAt string `json:"created_at"`
}

type MentionResponse struct {
	Symbol     string   `json:"symbol,omitempty"`
	Content    string   `json:"content"`
	URL        string   `json:"url,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	Sentiment  *float64 `json:"sentiment,omitempty"`
	CreatedAt  string   `json:"created_at"`
}

type StockMentionsResponse struct {
	Symbol   string            `json:"symbol"`
	Mentions []MentionResponse `json:"mentions"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
}

type SignalResponse struct {
	Symbol           string  `json:"symbol"`
	Recommendation   string  `json:"recommendation"`
	AverageSentiment float64 `json:"average_sentiment"`
	TotalMentions    int     `json:"total_mentions"`
	AnalyzedCount    int     `json:"analyzed_count"`
}

type ScrapeResult struct {
	Stored     int `json:"stored"`
	Skipped    int `json:"skipped"`
	Duplicates int `json:"duplicates"`
	NoMatch    int `json:"no_match"`
}

type ScrapeResponse struct {
	Results map[string]ScrapeResult `json:"results"`
	Errors  []string                `json:"errors,omitempty"`
}

func toMentionResponse(m store.Mention) MentionResponse {
	res := MentionResponse{
		Content:   m.Content,
		CreatedAt: m.CreatedAt.Format(time.RFC3339),
	}
	if m.URL.Valid {
		res.URL = m.URL.String
	}
	if m.ExternalID.Valid {
		res.ExternalID = m.ExternalID.String
	}
	if m.Sentiment.Valid {
		score := m.Sentiment.Float64
		res.Sentiment = &score
	}
	return res
}

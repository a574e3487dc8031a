package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"tickermood/internal/config"
	"tickermood/internal/store"
	"tickermood/pkg/pipeline"
	"tickermood/pkg/ticker"
)

func testRedditConfig(subs ...string) config.RedditConfig {
	if len(subs) == 0 {
		subs = []string{"WallStreetBets"}
	}
	return config.RedditConfig{
		ClientID:     "id",
		ClientSecret: "secret",
		UserAgent:    "tickermood-test/1.0",
		Subreddits:   subs,
		Tickers:      []string{"AAPL", "TSLA"},
		MinAgeDays:   0,
		MaxAgeDays:   3,
		ChannelDelay: "0s",
	}
}

func newTestReddit(t *testing.T, cfg config.RedditConfig, handler http.Handler) (*Reddit, *store.SQLiteStore) {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	for _, sym := range cfg.Tickers {
		if _, err := st.UpsertStock(ctx, sym); err != nil {
			t.Fatalf("upsert %s: %v", sym, err)
		}
	}

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	r := NewReddit(cfg, pipeline.New(st, ticker.New(cfg.Tickers)))
	r.client = &http.Client{Transport: &rewriteTransport{base: srv.URL, inner: http.DefaultTransport}}
	return r, st
}

func newAPIMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"access_token": "test-token", "expires_in": 3600})
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func listing(after string, items ...map[string]any) map[string]any {
	children := make([]map[string]any, 0, len(items))
	for _, item := range items {
		children = append(children, map[string]any{"data": item})
	}
	return map[string]any{"data": map[string]any{"after": after, "children": children}}
}

func createdAt(ageDays float64) float64 {
	return float64(time.Now().Add(-time.Duration(ageDays * 24 * float64(time.Hour))).Unix())
}

func submission(id, title, selftext string, ageDays float64) map[string]any {
	return map[string]any{
		"id":          id,
		"title":       title,
		"selftext":    selftext,
		"permalink":   "/r/WallStreetBets/comments/" + id + "/",
		"author":      "tester",
		"created_utc": createdAt(ageDays),
	}
}

func comment(id, body string, ageDays float64) map[string]any {
	return map[string]any{
		"id":          id,
		"body":        body,
		"permalink":   "/r/WallStreetBets/comments/post/" + id + "/",
		"author":      "tester",
		"created_utc": createdAt(ageDays),
	}
}

func TestScrapeStoresMentions(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("",
			submission("p1", "AAPL to the moon", "calls printed", 1),
			submission("p2", "what should I buy", "", 1),
		))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", comment("c1", "TSLA is tanking hard", 1)))
	})

	r, st := newTestReddit(t, testRedditConfig(), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.NoMatch)

	ctx := context.Background()
	aapl, err := st.MentionsForStock(ctx, "AAPL", 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(aapl))
	assert.Equal(t, "reddit_submission_p1", aapl[0].ExternalID.String)
	assert.Equal(t, "AAPL to the moon\ncalls printed", aapl[0].Content)
	assert.Equal(t, "https://reddit.com/r/WallStreetBets/comments/p1/", aapl[0].URL.String)

	meta, err := aapl[0].Meta()
	assert.Equal(t, nil, err)
	assert.Equal(t, "submission", meta.Kind)
	assert.Equal(t, "WallStreetBets", meta.Subreddit)
	assert.Equal(t, "tester", meta.Author)
	assert.Equal(t, []string{"AAPL"}, meta.Tickers)

	tsla, err := st.MentionsForStock(ctx, "TSLA", 0)
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(tsla))
	assert.Equal(t, "reddit_comment_c1", tsla[0].ExternalID.String)
	assert.Equal(t, "https://reddit.com/r/WallStreetBets/comments/post/c1/", tsla[0].URL.String)
}

func TestScrapeEarlyTermination(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") != "" {
			// Pages past the cutoff must never be stored.
			writeJSON(w, listing("", submission("p5", "AAPL again", "", 1)))
			return
		}
		writeJSON(w, listing("t3_more",
			submission("p1", "AAPL one", "", 1),
			submission("p2", "AAPL two", "", 2),
			submission("p3", "AAPL ancient", "", 10),
			submission("p4", "AAPL young again", "", 1),
		))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	})

	r, st := newTestReddit(t, testRedditConfig(), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, res.Stored)

	n, err := st.CountMentions(context.Background(), "AAPL")
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, n)

	// The walk stopped at the first too-old item.
	for _, id := range []string{"reddit_submission_p3", "reddit_submission_p4", "reddit_submission_p5"} {
		exists, err := st.ExistsByExternalID(context.Background(), id)
		assert.Equal(t, nil, err)
		assert.Equal(t, false, exists)
	}
}

func TestScrapeMinAgeSkip(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("",
			submission("p1", "AAPL too fresh", "", 0.2),
			submission("p2", "AAPL settled", "", 1.5),
		))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	})

	cfg := testRedditConfig()
	cfg.MinAgeDays = 1
	r, st := newTestReddit(t, cfg, mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, res.Stored)
	// Age-window skips are not pipeline skips.
	assert.Equal(t, 0, res.Skipped)

	exists, _ := st.ExistsByExternalID(context.Background(), "reddit_submission_p2")
	assert.Equal(t, true, exists)
	exists, _ = st.ExistsByExternalID(context.Background(), "reddit_submission_p1")
	assert.Equal(t, false, exists)
}

func TestScrapeSecondRunDeduplicates(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", submission("p1", "AAPL holding strong", "", 1)))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	})

	r, _ := newTestReddit(t, testRedditConfig(), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, res.Stored)

	res, err = r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
}

func TestScrapeEmptyContentSkipped(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", submission("p1", "", "", 1)))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", comment("c1", "   ", 1)))
	})

	r, _ := newTestReddit(t, testRedditConfig(), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 0, res.Stored)
	assert.Equal(t, 0, res.Skipped)
}

func TestScrapeChannelIsolation(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/broken/new.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server error", http.StatusInternalServerError)
	})
	mux.HandleFunc("/r/healthy/new.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing("", submission("p1", "TSLA recovery play", "", 1)))
	})
	mux.HandleFunc("/r/healthy/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	})

	r, st := newTestReddit(t, testRedditConfig("broken", "healthy"), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 1, res.Stored)

	exists, _ := st.ExistsByExternalID(context.Background(), "reddit_submission_p1")
	assert.Equal(t, true, exists)
}

func TestScrapeAuthFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/access_token", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})

	r, _ := newTestReddit(t, testRedditConfig(), mux)

	_, err := r.Scrape(context.Background())
	assert.NotEqual(t, nil, err)
}

func TestScrapePagination(t *testing.T) {
	mux := newAPIMux()
	mux.HandleFunc("/r/WallStreetBets/new.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("after") == "t3_page2" {
			writeJSON(w, listing("", submission("p2", "TSLA page two", "", 2)))
			return
		}
		writeJSON(w, listing("t3_page2", submission("p1", "AAPL page one", "", 1)))
	})
	mux.HandleFunc("/r/WallStreetBets/comments.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, listing(""))
	})

	r, st := newTestReddit(t, testRedditConfig(), mux)

	res, err := r.Scrape(context.Background())
	assert.Equal(t, nil, err)
	assert.Equal(t, 2, res.Stored)

	for _, id := range []string{"reddit_submission_p1", "reddit_submission_p2"} {
		exists, _ := st.ExistsByExternalID(context.Background(), id)
		assert.Equal(t, true, exists)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.RedditConfig)
		valid  bool
	}{
		{"complete", func(c *config.RedditConfig) {}, true},
		{"no client id", func(c *config.RedditConfig) { c.ClientID = "" }, false},
		{"no client secret", func(c *config.RedditConfig) { c.ClientSecret = "" }, false},
		{"no user agent", func(c *config.RedditConfig) { c.UserAgent = "" }, false},
		{"no subreddits", func(c *config.RedditConfig) { c.Subreddits = nil }, false},
		{"no tickers", func(c *config.RedditConfig) { c.Tickers = nil }, false},
		{"zero max age", func(c *config.RedditConfig) { c.MaxAgeDays = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testRedditConfig()
			tt.mutate(&cfg)
			err := NewReddit(cfg, nil).ValidateConfig()
			if tt.valid && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}

// rewriteTransport redirects all requests to a fixed base URL (test server).
type rewriteTransport struct {
	base  string
	inner http.RoundTripper
}

func (rt *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	parsed, _ := http.NewRequest("GET", rt.base, nil)
	req2.URL.Host = parsed.URL.Host
	req2.URL.Scheme = parsed.URL.Scheme
	return rt.inner.RoundTrip(req2)
}

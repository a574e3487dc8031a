package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tickermood/internal/config"
	"tickermood/internal/store"
	"tickermood/pkg/pipeline"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIBase  = "https://oauth.reddit.com"
	redditWebBase  = "https://reddit.com"

	listingPageSize = 100
)

const (
	kindSubmission = "submission"
	kindComment    = "comment"
)

// Reddit walks subreddit submissions and comments for ticker mentions.
// Listings are newest first; the walk of each listing stops at the first
// item older than the configured window.
type Reddit struct {
	client *http.Client
	pipe   *pipeline.Pipeline
	cfg    config.RedditConfig
	delay  time.Duration

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewReddit creates a Reddit walker feeding the given pipeline.
func NewReddit(cfg config.RedditConfig, pipe *pipeline.Pipeline) *Reddit {
	return &Reddit{
		client: &http.Client{Timeout: 30 * time.Second},
		pipe:   pipe,
		cfg:    cfg,
		delay:  cfg.ParseChannelDelay(),
	}
}

func (r *Reddit) Name() string { return "reddit" }

// ValidateConfig reports the first missing requirement.
func (r *Reddit) ValidateConfig() error {
	switch {
	case r.cfg.ClientID == "":
		return errors.New("reddit: client_id is required")
	case r.cfg.ClientSecret == "":
		return errors.New("reddit: client_secret is required")
	case r.cfg.UserAgent == "":
		return errors.New("reddit: user_agent is required")
	case len(r.cfg.Subreddits) == 0:
		return errors.New("reddit: at least one subreddit is required")
	case len(r.cfg.Tickers) == 0:
		return errors.New("reddit: at least one ticker is required")
	case r.cfg.MaxAgeDays <= 0:
		return errors.New("reddit: max_age_days must be positive")
	}
	return nil
}

// Scrape walks every configured subreddit. A failed subreddit is logged
// and the walk moves on; mentions stored before the failure stay stored.
func (r *Reddit) Scrape(ctx context.Context) (Result, error) {
	if err := r.authenticate(ctx); err != nil {
		return Result{}, fmt.Errorf("reddit auth: %w", err)
	}

	var total Result
	for _, sub := range r.cfg.Subreddits {
		res, err := r.walkChannel(ctx, sub)
		total.Add(res)
		if err != nil {
			slog.Error("subreddit walk failed", "subreddit", sub, "error", err)
		} else {
			slog.Info("subreddit walked", "subreddit", sub,
				"stored", res.Stored, "skipped", res.Skipped,
				"duplicates", res.Duplicates, "no_match", res.NoMatch)
		}

		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case <-time.After(r.delay):
		}
	}
	return total, nil
}

func (r *Reddit) walkChannel(ctx context.Context, subreddit string) (Result, error) {
	res, err := r.walkListing(ctx, subreddit, kindSubmission)
	if err != nil {
		return res, err
	}

	comments, err := r.walkListing(ctx, subreddit, kindComment)
	res.Add(comments)
	return res, err
}

func (r *Reddit) walkListing(ctx context.Context, subreddit, kind string) (Result, error) {
	var res Result

	after := ""
	for {
		listing, err := r.fetchPage(ctx, subreddit, kind, after)
		if err != nil {
			return res, err
		}
		if len(listing.Data.Children) == 0 {
			return res, nil
		}

		for _, child := range listing.Data.Children {
			item := child.Data
			ageDays := time.Since(time.Unix(int64(item.CreatedUTC), 0)).Hours() / 24

			// First item past the window ends this listing: everything
			// after it is older still.
			if ageDays > r.cfg.MaxAgeDays {
				return res, nil
			}
			if ageDays < r.cfg.MinAgeDays {
				continue
			}

			content, itemURL := itemContent(item, kind)
			if strings.TrimSpace(content) == "" {
				continue
			}

			externalID := fmt.Sprintf("reddit_%s_%s", kind, item.ID)
			meta := store.Metadata{
				Kind:      kind,
				Subreddit: subreddit,
				Author:    item.Author,
				AgeDays:   ageDays,
			}

			stored, reason, err := r.pipe.Process(ctx, content, itemURL, externalID, meta)
			if err != nil {
				return res, fmt.Errorf("process %s: %w", externalID, err)
			}
			if stored > 0 {
				res.Stored += stored
				continue
			}
			res.Skipped++
			switch reason {
			case pipeline.ReasonDuplicate:
				res.Duplicates++
			case pipeline.ReasonNoMatch:
				res.NoMatch++
			}
		}

		after = listing.Data.After
		if after == "" {
			return res, nil
		}
	}
}

func itemContent(item redditItem, kind string) (string, string) {
	if kind == kindComment {
		return item.Body, redditWebBase + item.Permalink
	}

	content := strings.TrimSpace(item.Title + "\n" + item.Selftext)
	itemURL := item.URL
	if itemURL == "" || strings.HasPrefix(itemURL, "/r/") {
		itemURL = redditWebBase + item.Permalink
	}
	return content, itemURL
}

func (r *Reddit) authenticate(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && time.Now().Before(r.tokenExpiry) {
		return nil
	}

	data := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		redditTokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}

	req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token status %d", resp.StatusCode)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}

	r.token = tokenResp.AccessToken
	r.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return nil
}

func (r *Reddit) fetchPage(ctx context.Context, subreddit, kind, after string) (*redditListing, error) {
	endpoint := "new"
	if kind == kindComment {
		endpoint = "comments"
	}

	reqURL := fmt.Sprintf("%s/r/%s/%s.json?limit=%d", redditAPIBase, subreddit, endpoint, listingPageSize)
	if after != "" {
		reqURL += "&after=" + url.QueryEscape(after)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+r.token)
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s %s: %w", subreddit, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit r/%s %s status %d", subreddit, endpoint, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s %s: %w", subreddit, endpoint, err)
	}
	return &listing, nil
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditItem `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditItem struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	Body       string  `json:"body"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
}

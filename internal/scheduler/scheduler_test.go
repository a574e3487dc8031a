package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"tickermood/internal/store"
	"tickermood/pkg/alert"
	"tickermood/pkg/sentiment"
	"tickermood/pkg/source"
)

type recordingNotifier struct {
	sent []alert.Notification
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) Send(ctx context.Context, n *alert.Notification) error {
	r.sent = append(r.sent, *n)
	return nil
}

type countingSource struct {
	calls int
}

func (c *countingSource) Name() string          { return "counting" }
func (c *countingSource) ValidateConfig() error { return nil }

func (c *countingSource) Scrape(ctx context.Context) (source.Result, error) {
	c.calls++
	return source.Result{Stored: 1}, nil
}

func newBullishStore(t *testing.T, mentions int) *store.SQLiteStore {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	id, err := st.UpsertStock(ctx, "AAPL")
	if err != nil {
		t.Fatalf("upsert stock: %v", err)
	}
	for i := 0; i < mentions; i++ {
		ok, err := st.InsertMention(ctx, store.MentionInput{
			StockID:    id,
			Content:    "AAPL moon rocket",
			ExternalID: fmt.Sprintf("reddit_submission_%d", i),
			Metadata:   &store.Metadata{Kind: "submission", Subreddit: "WallStreetBets"},
		})
		if err != nil || !ok {
			t.Fatalf("insert mention %d: ok=%v err=%v", i, ok, err)
		}
	}
	return st
}

func TestAnalyzeAlertsOnSignalChange(t *testing.T) {
	st := newBullishStore(t, 6)
	recorder := &recordingNotifier{}
	s := New(nil,
		sentiment.NewAnalyzer(st, 0.7, 0.3),
		alert.NewManager([]alert.Notifier{recorder}),
		time.Minute, time.Minute)

	ctx := context.Background()

	s.analyzeAndAlert(ctx)
	if len(recorder.sent) != 1 {
		t.Fatalf("got %d alerts after first pass, want 1", len(recorder.sent))
	}
	n := recorder.sent[0]
	if n.Symbol != "AAPL" || n.Recommendation != "BUY" || n.Mentions != 6 {
		t.Errorf("unexpected notification %+v", n)
	}

	// Unchanged signal stays quiet.
	s.analyzeAndAlert(ctx)
	if len(recorder.sent) != 1 {
		t.Errorf("got %d alerts after repeat pass, want 1", len(recorder.sent))
	}

	// A reset signal re-alerts when it flips back.
	s.lastSignal["AAPL"] = sentiment.Hold
	s.analyzeAndAlert(ctx)
	if len(recorder.sent) != 2 {
		t.Errorf("got %d alerts after signal change, want 2", len(recorder.sent))
	}
}

func TestAnalyzeHoldNeverAlerts(t *testing.T) {
	st := newBullishStore(t, 2)
	recorder := &recordingNotifier{}
	s := New(nil,
		sentiment.NewAnalyzer(st, 0.7, 0.3),
		alert.NewManager([]alert.Notifier{recorder}),
		time.Minute, time.Minute)

	s.analyzeAndAlert(context.Background())
	if len(recorder.sent) != 0 {
		t.Errorf("got %d alerts for a HOLD stock, want 0", len(recorder.sent))
	}
}

func TestAlertRetriedAfterBroadcastFailure(t *testing.T) {
	st := newBullishStore(t, 6)
	failing := &failingNotifier{fail: true}
	s := New(nil,
		sentiment.NewAnalyzer(st, 0.7, 0.3),
		alert.NewManager([]alert.Notifier{failing}),
		time.Minute, time.Minute)

	ctx := context.Background()

	s.analyzeAndAlert(ctx)
	if failing.calls != 1 {
		t.Fatalf("got %d sends, want 1", failing.calls)
	}

	// The failed alert is retried on the next pass.
	failing.fail = false
	s.analyzeAndAlert(ctx)
	if failing.calls != 2 {
		t.Errorf("got %d sends after retry pass, want 2", failing.calls)
	}

	// Once delivered, it is not repeated.
	s.analyzeAndAlert(ctx)
	if failing.calls != 2 {
		t.Errorf("got %d sends after delivered pass, want 2", failing.calls)
	}
}

type failingNotifier struct {
	fail  bool
	calls int
}

func (f *failingNotifier) Name() string { return "failing" }

func (f *failingNotifier) Send(ctx context.Context, n *alert.Notification) error {
	f.calls++
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func TestRunStopsOnCancel(t *testing.T) {
	st := newBullishStore(t, 0)
	src := &countingSource{}
	s := New([]source.Source{src},
		sentiment.NewAnalyzer(st, 0.7, 0.3),
		alert.NewManager(nil),
		10*time.Millisecond, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := s.Run(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run returned %v, want deadline exceeded", err)
	}
	if src.calls < 2 {
		t.Errorf("source scraped %d times, want at least 2", src.calls)
	}
}

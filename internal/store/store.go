package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotInitialized is returned by every operation invoked after Close.
var ErrNotInitialized = errors.New("store not initialized")

// Stock is a tracked ticker symbol.
type Stock struct {
	ID        int64     `db:"id"`
	Symbol    string    `db:"symbol"`
	CreatedAt time.Time `db:"created_at"`
}

// Metadata is the structured blob attached to a mention at collection time.
type Metadata struct {
	Kind      string   `json:"type"`
	Subreddit string   `json:"subreddit"`
	Author    string   `json:"author"`
	AgeDays   float64  `json:"age_days"`
	Tickers   []string `json:"tickers"`
}

// Mention is one stored occurrence of a ticker in a piece of content.
// URL, external id, metadata and sentiment are all optional.
type Mention struct {
	ID           int64           `db:"id"`
	StockID      int64           `db:"stock_id"`
	Content      string          `db:"content"`
	URL          sql.NullString  `db:"url"`
	ExternalID   sql.NullString  `db:"external_id"`
	MetadataJSON sql.NullString  `db:"metadata"`
	Sentiment    sql.NullFloat64 `db:"sentiment_score"`
	CreatedAt    time.Time       `db:"created_at"`
}

// Meta decodes the metadata blob. An unreadable blob is an error, not a
// silent empty value.
func (m *Mention) Meta() (Metadata, error) {
	var meta Metadata
	if !m.MetadataJSON.Valid || m.MetadataJSON.String == "" {
		return meta, nil
	}
	if err := json.Unmarshal([]byte(m.MetadataJSON.String), &meta); err != nil {
		return meta, fmt.Errorf("decode mention metadata: %w", err)
	}
	return meta, nil
}

// StockMention is a mention joined with its stock's symbol.
type StockMention struct {
	Mention
	Symbol string `db:"symbol"`
}

// MentionInput carries the caller-controlled fields of a new mention.
type MentionInput struct {
	StockID    int64
	Content    string
	URL        string
	ExternalID string
	Metadata   *Metadata
}

// Store is the persistence interface.
type Store interface {
	UpsertStock(ctx context.Context, symbol string) (int64, error)
	StockID(ctx context.Context, symbol string) (int64, bool, error)
	Stocks(ctx context.Context) ([]Stock, error)
	AllStockSymbols(ctx context.Context) ([]string, error)

	InsertMention(ctx context.Context, m MentionInput) (bool, error)
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)
	MentionsForStock(ctx context.Context, symbol string, limit int) ([]Mention, error)
	SetSentiment(ctx context.Context, externalID string, score float64) (bool, error)
	CountMentions(ctx context.Context, symbol string) (int, error)
	RecentMentions(ctx context.Context, limit int) ([]StockMention, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if err := migrateSentimentColumn(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

// migrateSentimentColumn backfills the sentiment_score column on databases
// created before scoring existed. CREATE TABLE IF NOT EXISTS leaves such
// tables untouched, so the column has to be added here.
func migrateSentimentColumn(db *sqlx.DB) error {
	var cols []struct {
		CID     int            `db:"cid"`
		Name    string         `db:"name"`
		Type    string         `db:"type"`
		NotNull int            `db:"notnull"`
		Default sql.NullString `db:"dflt_value"`
		PK      int            `db:"pk"`
	}
	if err := db.Select(&cols, "PRAGMA table_info(mentions)"); err != nil {
		return fmt.Errorf("inspect mentions schema: %w", err)
	}

	for _, c := range cols {
		if c.Name == "sentiment_score" {
			return nil
		}
	}

	if _, err := db.Exec("ALTER TABLE mentions ADD COLUMN sentiment_score REAL"); err != nil {
		return fmt.Errorf("add sentiment_score column: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) handle() (*sqlx.DB, error) {
	if s.db == nil {
		return nil, ErrNotInitialized
	}
	return s.db, nil
}

func (s *SQLiteStore) UpsertStock(ctx context.Context, symbol string) (int64, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}
	symbol = strings.ToUpper(symbol)

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("upsert stock %s: %w", symbol, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stocks (symbol, created_at)
		VALUES (?, ?)
		ON CONFLICT(symbol) DO NOTHING
	`, symbol, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("upsert stock %s: %w", symbol, err)
	}

	var id int64
	if err := tx.GetContext(ctx, &id, "SELECT id FROM stocks WHERE symbol = ?", symbol); err != nil {
		return 0, fmt.Errorf("select stock %s: %w", symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert stock %s: %w", symbol, err)
	}
	return id, nil
}

func (s *SQLiteStore) StockID(ctx context.Context, symbol string) (int64, bool, error) {
	db, err := s.handle()
	if err != nil {
		return 0, false, err
	}

	var id int64
	err = db.GetContext(ctx, &id, "SELECT id FROM stocks WHERE symbol = ?", strings.ToUpper(symbol))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find stock %s: %w", symbol, err)
	}
	return id, true, nil
}

func (s *SQLiteStore) Stocks(ctx context.Context) ([]Stock, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var stocks []Stock
	if err := db.SelectContext(ctx, &stocks, "SELECT id, symbol, created_at FROM stocks ORDER BY symbol"); err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	return stocks, nil
}

func (s *SQLiteStore) AllStockSymbols(ctx context.Context) ([]string, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	var symbols []string
	if err := db.SelectContext(ctx, &symbols, "SELECT symbol FROM stocks ORDER BY symbol"); err != nil {
		return nil, fmt.Errorf("list stock symbols: %w", err)
	}
	return symbols, nil
}

// InsertMention stores one mention row. It reports false without error when
// the (external id, stock) pair is already present. The stock id is not
// checked against the stocks table.
func (s *SQLiteStore) InsertMention(ctx context.Context, m MentionInput) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}

	var metaJSON any
	if m.Metadata != nil {
		b, _ := json.Marshal(m.Metadata)
		metaJSON = string(b)
	}

	var id int64
	err = db.GetContext(ctx, &id, `
		INSERT INTO mentions (stock_id, content, url, external_id, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, stock_id) DO NOTHING
		RETURNING id
	`, m.StockID, m.Content, nullable(m.URL), nullable(m.ExternalID), metaJSON, time.Now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert mention: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}

	var exists bool
	err = db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM mentions WHERE external_id = ?)", externalID)
	if err != nil {
		return false, fmt.Errorf("check external id %s: %w", externalID, err)
	}
	return exists, nil
}

func (s *SQLiteStore) MentionsForStock(ctx context.Context, symbol string, limit int) ([]Mention, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	query := `
		SELECT m.id, m.stock_id, m.content, m.url, m.external_id, m.metadata, m.sentiment_score, m.created_at
		FROM mentions m
		JOIN stocks s ON s.id = m.stock_id
		WHERE s.symbol = ?
		ORDER BY m.created_at DESC`
	args := []any{strings.ToUpper(symbol)}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var mentions []Mention
	if err := db.SelectContext(ctx, &mentions, query, args...); err != nil {
		return nil, fmt.Errorf("mentions for %s: %w", symbol, err)
	}
	return mentions, nil
}

// SetSentiment writes a score to every mention row carrying the external id.
// It reports false when no row matched.
func (s *SQLiteStore) SetSentiment(ctx context.Context, externalID string, score float64) (bool, error) {
	db, err := s.handle()
	if err != nil {
		return false, err
	}

	res, err := db.ExecContext(ctx,
		"UPDATE mentions SET sentiment_score = ? WHERE external_id = ?", score, externalID)
	if err != nil {
		return false, fmt.Errorf("set sentiment %s: %w", externalID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("set sentiment %s: %w", externalID, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CountMentions(ctx context.Context, symbol string) (int, error) {
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	var n int
	err = db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM mentions m
		JOIN stocks s ON s.id = m.stock_id
		WHERE s.symbol = ?
	`, strings.ToUpper(symbol))
	if err != nil {
		return 0, fmt.Errorf("count mentions for %s: %w", symbol, err)
	}
	return n, nil
}

func (s *SQLiteStore) RecentMentions(ctx context.Context, limit int) ([]StockMention, error) {
	db, err := s.handle()
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 10
	}

	var mentions []StockMention
	err = db.SelectContext(ctx, &mentions, `
		SELECT m.id, m.stock_id, m.content, m.url, m.external_id, m.metadata, m.sentiment_score, m.created_at, s.symbol
		FROM mentions m
		JOIN stocks s ON s.id = m.stock_id
		ORDER BY m.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent mentions: %w", err)
	}
	return mentions, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

package store

const schema = `
CREATE TABLE IF NOT EXISTS stocks (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol     TEXT NOT NULL UNIQUE,
    created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_stocks_symbol ON stocks(symbol);

CREATE TABLE IF NOT EXISTS mentions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    stock_id        INTEGER NOT NULL REFERENCES stocks(id),
    content         TEXT NOT NULL,
    url             TEXT,
    external_id     TEXT,
    metadata        TEXT,
    sentiment_score REAL,
    created_at      DATETIME NOT NULL,
    UNIQUE(external_id, stock_id)
);

CREATE INDEX IF NOT EXISTS idx_mentions_stock ON mentions(stock_id);
CREATE INDEX IF NOT EXISTS idx_mentions_external ON mentions(external_id);
CREATE INDEX IF NOT EXISTS idx_mentions_created_at ON mentions(created_at);
`

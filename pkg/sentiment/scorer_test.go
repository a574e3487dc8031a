package sentiment

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		symbol string
		want   float64
	}{
		{
			name:   "ticker absent scores zero",
			text:   "market update",
			symbol: "AAPL",
			want:   0,
		},
		{
			name:   "no sentiment words scores zero",
			text:   "MSFT quarterly report discussion",
			symbol: "MSFT",
			want:   0,
		},
		{
			name:   "all positive",
			text:   "AAPL moon rocket",
			symbol: "AAPL",
			want:   1,
		},
		{
			name:   "all negative",
			text:   "TSLA crash dump",
			symbol: "TSLA",
			want:   -1,
		},
		{
			name:   "balanced",
			text:   "AAPL moon dump",
			symbol: "AAPL",
			want:   0,
		},
		{
			name:   "three to one",
			text:   "AAPL moon rocket gains dump",
			symbol: "AAPL",
			want:   0.5,
		},
		{
			name:   "keyword inside longer word counts",
			text:   "AAPL update",
			symbol: "AAPL",
			want:   1,
		},
		{
			name:   "ticker guard is substring not word boundary",
			text:   "AAPLX crash dump",
			symbol: "AAPL",
			want:   -1,
		},
		{
			name:   "empty text",
			text:   "",
			symbol: "AAPL",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.text, tt.symbol)
			if got != tt.want {
				t.Errorf("Score(%q, %q) = %v, want %v", tt.text, tt.symbol, got, tt.want)
			}
		})
	}
}

func TestScoreSign(t *testing.T) {
	if got := Score("AAPL to the moon, bullish!", "AAPL"); got <= 0 {
		t.Errorf("bullish text scored %v, want > 0", got)
	}
	if got := Score("TSLA is bearish and will crash", "TSLA"); got >= 0 {
		t.Errorf("bearish text scored %v, want < 0", got)
	}
}

func TestScoreCaseInsensitive(t *testing.T) {
	got := Score("aapl is BULLISH and GREAT!", "AAPL")
	if got <= 0 {
		t.Errorf("mixed-case text scored %v, want > 0", got)
	}
}

func TestScoreBounds(t *testing.T) {
	texts := []string{
		"AAPL buy bullish moon rocket gains rise good great excellent strong",
		"AAPL sell bearish crash dump loss fall bad terrible weak miss",
		"AAPL buy sell moon crash good bad",
	}
	for _, text := range texts {
		got := Score(text, "AAPL")
		if got < -1 || got > 1 {
			t.Errorf("Score(%q) = %v, out of [-1, 1]", text, got)
		}
	}
}

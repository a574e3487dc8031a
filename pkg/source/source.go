package source

import "context"

// Result tallies one scrape run. Skipped counts every item handed to the
// pipeline that stored nothing; Duplicates and NoMatch break that down.
type Result struct {
	Stored     int
	Skipped    int
	Duplicates int
	NoMatch    int
}

// Add folds another tally into r.
func (r *Result) Add(other Result) {
	r.Stored += other.Stored
	r.Skipped += other.Skipped
	r.Duplicates += other.Duplicates
	r.NoMatch += other.NoMatch
}

// Source is the interface every feed walker must implement. ValidateConfig
// runs before any scrape; a failure there is fatal at startup. Scrape
// stores mentions through the pipeline the walker was built with.
type Source interface {
	Name() string
	ValidateConfig() error
	Scrape(ctx context.Context) (Result, error)
}

package offcache

import "time"

// Freshness classifies an entry's age against its TTL.
type Freshness uint8

const (
	Fresh Freshness = iota
	Stale
)

// Evaluate is the pure freshness policy: an entry is Fresh while its age is
// within ttl, Stale after. No state, no clock access; callers supply the age.
func Evaluate(age, ttl time.Duration) Freshness {
	if age < 0 {
		// clock skew (e.g., restored snapshot from the future); treat as fresh
		return Fresh
	}
	if age <= ttl {
		return Fresh
	}
	return Stale
}

// TTL guidance per request kind. These are defaults for Options.DefaultTTL;
// the engine itself has no kind-specific behavior.
const (
	// Fast-moving market data
	TTLQuote  = 10 * time.Second // last-trade quotes; screens re-render constantly
	TTLOption = time.Minute      // option chains; strikes move slower than spot

	// Screen-level aggregates (server-computed)
	TTLWatchlist = 5 * time.Minute  // watchlist summaries
	TTLPortfolio = 10 * time.Minute // portfolio analytics, risk dashboards

	// Slow data
	TTLInsight     = time.Hour      // AI insight blurbs; regenerated server-side
	TTLLeaderboard = 30 * time.Minute
)

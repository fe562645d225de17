package offcache

// Origin tags where a returned value came from so UI layers can disclose
// degraded data instead of rendering an error state.
type Origin uint8

const (
	// OriginNetwork: value obtained from a successful fetch (possibly cached
	// and still within TTL).
	OriginNetwork Origin = iota + 1
	// OriginStale: fetch failed; value is a previously fetched entry past its
	// TTL. Outdated real data beats an error screen.
	OriginStale
	// OriginSynthetic: fetch failed and no prior entry existed; value is a
	// placeholder produced by Options.Synthetic. Never stored.
	OriginSynthetic
)

func (o Origin) String() string {
	switch o {
	case OriginNetwork:
		return "network"
	case OriginStale:
		return "stale"
	case OriginSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

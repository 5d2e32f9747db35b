package calls

// Lifecycle is the persisted call state. States only move forward:
// pending -> active -> ended -> analyzed.
type Lifecycle string

const (
	LifecyclePending  Lifecycle = "pending"
	LifecycleActive   Lifecycle = "active"
	LifecycleEnded    Lifecycle = "ended"
	LifecycleAnalyzed Lifecycle = "analyzed"
)

var lifecycleRank = map[Lifecycle]int{
	LifecyclePending:  0,
	LifecycleActive:   1,
	LifecycleEnded:    2,
	LifecycleAnalyzed: 3,
}

// Rank orders states; unknown values rank below pending.
func (l Lifecycle) Rank() int {
	if r, ok := lifecycleRank[l]; ok {
		return r
	}
	return -1
}

// Valid reports whether l is a known state.
func (l Lifecycle) Valid() bool {
	_, ok := lifecycleRank[l]
	return ok
}

// Advance returns the state after applying next to current. A next state
// ranked below current is a regression: current is kept and regressed is true.
func Advance(current, next Lifecycle) (state Lifecycle, regressed bool) {
	if !next.Valid() {
		return current, true
	}
	if next.Rank() < current.Rank() {
		return current, true
	}
	return next, false
}

// lifecycleOrderSQL is the rank order used by the Postgres upserts.
const lifecycleOrderSQL = `ARRAY['pending','active','ended','analyzed']::text[]`

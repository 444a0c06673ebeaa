// Package live implements the election live-dashboard feed: fetching
// point-in-time snapshots from the Kampus backend (by interval polling or a
// server-sent event stream), reconciling incremental snapshots against the
// held one, and orchestrating the transport lifecycle with graceful fallback.
package live

import "time"

// Election process statuses as reported by the backend.
const ProcessStatusOpen = "OPEN"

// Process is an election process eligible for monitoring.
type Process struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (p Process) IsOpen() bool { return p.Status == ProcessStatusOpen }

// Snapshot is an immutable record of dashboard state at a point in time.
// It is created by a transport, merged by the reconciler and replaced, never
// mutated in place; consumers only ever read it.
type Snapshot struct {
	GeneratedAt     time.Time          `json:"generated_at"`
	Cursor          string             `json:"cursor,omitempty"`
	KPIs            map[string]float64 `json:"kpis"`
	OperationalKPIs map[string]float64 `json:"operational_kpis"`
	Ranking         []RankingRole      `json:"ranking"`
	MinuteSeries    []MinuteSeriesRow  `json:"minute_series"`
	Alerts          []Alert            `json:"alerts"`
	Config          MonitoringConfig   `json:"config"`

	// Incremental marks a snapshot obtained with a `since` cursor; such
	// snapshots intentionally omit ranking data. Set by the transport,
	// never part of the wire payload.
	Incremental bool `json:"-"`
}

// MinuteSeriesRow is a per-minute vote count bucket.
// After a merge there is at most one row per distinct minute value.
type MinuteSeriesRow struct {
	Minute     *time.Time `json:"minute"`
	TotalVotes int        `json:"total_votes"`
	BlankVotes int        `json:"blank_votes"`
}

// minuteKey maps the bucket to a sortable key. A nil minute sorts as epoch 0,
// i.e. first; kept bug-compatible with the upstream dashboard until the
// backend confirms nil buckets cannot occur.
func (r MinuteSeriesRow) minuteKey() int64 {
	if r.Minute == nil {
		return 0
	}
	return r.Minute.UnixNano()
}

// RankingRole holds per-role candidate tallies.
// Invariant: the sum of candidate votes never exceeds TotalVotes.
type RankingRole struct {
	RoleID     int         `json:"role_id"`
	Title      string      `json:"title"`
	TotalVotes int         `json:"total_votes"`
	BlankVotes int         `json:"blank_votes"`
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	CandidateID int    `json:"candidate_id"`
	Number      int    `json:"number"`
	Name        string `json:"name"`
	Votes       int    `json:"votes"`
}

// Alert severities used by the backend rules engine.
const (
	AlertSeverityInfo     = "info"
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

// Alert is a rule-triggered warning (blank-vote rate, inactivity, spikes...).
type Alert struct {
	Code     string `json:"code"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// NewAlerts returns the alerts present in curr but absent (by Code) from prev.
// Used by notification hooks to fire once per alert appearance.
func NewAlerts(prev, curr *Snapshot) []Alert {
	if curr == nil || len(curr.Alerts) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	if prev != nil {
		for _, a := range prev.Alerts {
			seen[a.Code] = struct{}{}
		}
	}
	var fresh []Alert
	for _, a := range curr.Alerts {
		if _, ok := seen[a.Code]; !ok {
			fresh = append(fresh, a)
		}
	}
	return fresh
}

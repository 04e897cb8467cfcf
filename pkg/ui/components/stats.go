package components

import (
	"fmt"
	"time"
)

// Stats holds running totals of the watcher.
type Stats struct {
	Refreshes  int64
	Quotes     int64
	Rejections int64
	Errors     int64
	// TotalLatency sums per-quote latency, for the average.
	TotalLatency time.Duration
}

// Record folds one quote into the totals.
func (s *Stats) Record(rejected, failed bool, latency time.Duration) {
	s.Quotes++
	s.TotalLatency += latency
	if rejected {
		s.Rejections++
	}
	if failed {
		s.Errors++
	}
}

// AvgLatency is the mean quote latency.
func (s Stats) AvgLatency() time.Duration {
	if s.Quotes == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Quotes)
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{}
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	count := func(v int64, hot bool) string {
		if hot && v > 0 {
			return alarm.Render(fmt.Sprintf("%d", v))
		}
		return figure.Render(fmt.Sprintf("%d", v))
	}

	return dimText.Render("STATS") + "\n" +
		fmt.Sprintf("Refreshes: %s  │  Quotes: %s  │  Rejected: %s  │  Errors: %s  │  Avg latency: %s",
			count(s.stats.Refreshes, false),
			count(s.stats.Quotes, false),
			count(s.stats.Rejections, true),
			count(s.stats.Errors, true),
			figure.Render(s.stats.AvgLatency().Round(time.Millisecond).String()),
		)
}

package chat

import (
	"fmt"
	"strings"
	"time"
)

// FormatScore renders a cosine similarity as "0.873".
func FormatScore(score float32) string {
	return fmt.Sprintf("%.3f", score)
}

// FormatLatency formats a duration as "X.Xms" or "X.Xs".
func FormatLatency(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.1fms", float64(d)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// scoreBadge colors a score by how well the chunk matched.
func scoreBadge(score float32) string {
	s := FormatScore(score)
	switch {
	case score >= 0.75:
		return healthyStyle.Render(s)
	case score >= 0.5:
		return warningStyle.Render(s)
	default:
		return errorStyle.Render(s)
	}
}

// oneLine collapses whitespace and truncates to max runes.
func oneLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if max > 0 && len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}

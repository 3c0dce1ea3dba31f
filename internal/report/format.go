package report

import (
	"fmt"
	"strings"
	"time"
)

const notAvailable = "n/a"

// formatDuration formats a duration in a human-readable format.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %02ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
}

// formatLatency formats an optional latency. Undefined values print as n/a.
func formatLatency(d *time.Duration) string {
	if d == nil {
		return notAvailable
	}
	v := *d
	if v < time.Millisecond {
		return fmt.Sprintf("%dµs", v.Microseconds())
	}
	if v < time.Second {
		return fmt.Sprintf("%.2fms", float64(v)/float64(time.Millisecond))
	}
	return fmt.Sprintf("%.2fs", v.Seconds())
}

// formatNumber formats a number with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}

	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var result strings.Builder
	offset := len(str) % 3
	if offset > 0 {
		result.WriteString(str[:offset])
	}
	for i := offset; i < len(str); i += 3 {
		if result.Len() > 0 {
			result.WriteString(",")
		}
		result.WriteString(str[i : i+3])
	}
	return result.String()
}

func formatPercent(ratio float64) string {
	return fmt.Sprintf("%.2f%%", ratio*100)
}

func formatRate(rps float64) string {
	return fmt.Sprintf("%.1f", rps)
}

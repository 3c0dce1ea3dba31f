// Package report renders benchmark plans and results for humans and
// machines.
package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/fatih/color"
	"github.com/muesli/termenv"

	"github.com/wesleyorama2/lbbench/internal/config"
	"github.com/wesleyorama2/lbbench/internal/metrics"
	"github.com/wesleyorama2/lbbench/internal/runner"
)

const (
	lineWidth     = 72
	boxHorizontal = "━"
)

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	Writer      io.Writer
	NoColor     bool
	ForceColors bool
}

// Console prints plans, summaries and dry-run results.
type Console struct {
	writer    io.Writer
	useColors bool
	renderer  *lipgloss.Renderer

	heading *color.Color
	accent  *color.Color
	dim     *color.Color
	good    *color.Color
	warn    *color.Color
	bad     *color.Color

	mu sync.Mutex
}

// NewConsole creates a console printer. Colors are used only when the
// writer is a terminal and neither NoColor nor NO_COLOR is set, unless
// ForceColors is true.
func NewConsole(cfg ConsoleConfig) *Console {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	useColors := cfg.ForceColors ||
		(!cfg.NoColor && !colorsDisabledByEnv() && isTerminal(cfg.Writer))

	renderer := lipgloss.NewRenderer(cfg.Writer)
	if useColors {
		if cfg.ForceColors {
			renderer.SetColorProfile(termenv.ANSI)
		}
	} else {
		renderer.SetColorProfile(termenv.Ascii)
	}

	c := &Console{
		writer:    cfg.Writer,
		useColors: useColors,
		renderer:  renderer,
		heading:   color.New(color.FgCyan, color.Bold),
		accent:    color.New(color.FgCyan),
		dim:       color.New(color.Faint),
		good:      color.New(color.FgGreen),
		warn:      color.New(color.FgYellow),
		bad:       color.New(color.FgRed, color.Bold),
	}

	for _, col := range []*color.Color{c.heading, c.accent, c.dim, c.good, c.warn, c.bad} {
		if useColors {
			col.EnableColor()
		} else {
			col.DisableColor()
		}
	}

	return c
}

// PrintPlan prints the loaded configuration.
func (c *Console) PrintPlan(plan *config.Plan, runID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, lineWidth)
	title := "Load balancer benchmark"
	if plan.Name != "" {
		title = fmt.Sprintf("%s - %s", title, plan.Name)
	}

	c.writeln(c.heading.Sprint(line))
	c.writeln(c.heading.Sprint(title))
	c.writeln(c.heading.Sprint(line))

	c.writeln("Loaded configuration:")
	if runID != "" {
		c.writeln(fmt.Sprintf("  Run:        %s", c.dim.Sprint(runID)))
	}
	c.writeln(fmt.Sprintf("  Method:     %s", c.accent.Sprint(plan.Settings.Method)))
	c.writeln(fmt.Sprintf("  Timeout:    %s", formatDuration(plan.Settings.Timeout)))
	if plan.Settings.RequestDelay > 0 {
		c.writeln(fmt.Sprintf("  Delay:      %s between requests per worker", formatDuration(plan.Settings.RequestDelay)))
	}
	c.writeln(fmt.Sprintf("  Duration:   %s per target", formatDuration(plan.TotalDuration())))
	c.writeln("")

	c.writeln(fmt.Sprintf("Stages (%d):", len(plan.Stages)))
	for i, s := range plan.Stages {
		c.writeln(fmt.Sprintf("  %-10s %s workers for %s",
			s.Label(i),
			c.accent.Sprint(s.Concurrency),
			formatDuration(s.Duration)))
	}
	c.writeln("")

	c.writeln(fmt.Sprintf("Targets (%d):", len(plan.Targets)))
	for _, t := range plan.Targets {
		c.writeln(fmt.Sprintf("  %-12s %s %s", t.Name, t.Method, c.accent.Sprint(t.URL())))
	}
	c.writeln("")
}

// PrintSummaries prints the comparison table, one row per target sorted by
// name, followed by the per-stage breakdown of every target.
func (c *Console) PrintSummaries(result *runner.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	summaries := sortedSummaries(result.Summaries)

	line := strings.Repeat(boxHorizontal, lineWidth)
	c.writeln("")
	c.writeln(c.heading.Sprint(line))
	c.writeln(c.heading.Sprint("Results"))
	c.writeln(c.heading.Sprint(line))

	if len(summaries) == 0 {
		c.writeln(c.dim.Sprint("No target was benchmarked."))
	} else {
		c.writeln(c.renderTable(summaries))
	}

	for _, s := range summaries {
		c.printStages(s, result.Stages)
	}

	if result.Aborted {
		c.writeln("")
		c.writeln(c.bad.Sprint("Benchmark aborted: results are partial."))
		if len(result.Skipped) > 0 {
			c.writeln(fmt.Sprintf("Skipped targets: %s", strings.Join(result.Skipped, ", ")))
		}
	}
}

func (c *Console) renderTable(summaries []metrics.TargetSummary) string {
	headers := []string{
		"Target", "Requests", "Errors", "Error rate", "RPS", "Elapsed",
		"Mean", "P50", "P95", "P99", "Statuses",
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		name := s.Target
		if s.Aborted {
			name += " (aborted)"
		}
		rows = append(rows, []string{
			name,
			formatNumber(s.TotalRequests),
			formatNumber(s.ErrorCount),
			formatPercent(s.ErrorRate),
			formatRate(s.ThroughputRPS),
			formatDuration(s.Elapsed),
			formatLatency(s.LatencyMean),
			formatLatency(s.LatencyP50),
			formatLatency(s.LatencyP95),
			formatLatency(s.LatencyP99),
			formatStatusCounts(s.StatusCounts),
		})
	}

	base := c.renderer.NewStyle().Padding(0, 1)
	header := base.Bold(true).Foreground(lipgloss.Color("6"))
	good := base.Foreground(lipgloss.Color("2"))
	warn := base.Foreground(lipgloss.Color("3"))
	bad := base.Foreground(lipgloss.Color("1"))

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(c.renderer.NewStyle().Faint(true)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 3 && row >= 0 && row < len(summaries) {
				switch rate := summaries[row].ErrorRate; {
				case rate > 0.05:
					return bad
				case rate > 0.01:
					return warn
				default:
					return good
				}
			}
			return base
		})

	return t.Render()
}

func (c *Console) printStages(s metrics.TargetSummary, stages []config.Stage) {
	if len(s.Stages) == 0 {
		return
	}

	c.writeln("")
	c.writeln(c.heading.Sprint(s.Target))
	for _, st := range s.Stages {
		label := fmt.Sprintf("stage %d", st.Index+1)
		if st.Index < len(stages) {
			label = stages[st.Index].Label(st.Index)
		}
		c.writeln(fmt.Sprintf("  %-10s %4d workers  %8s  %10s req  %9s rps  %7s err  p50 %s  p95 %s  p99 %s",
			label,
			st.Concurrency,
			formatDuration(st.Elapsed),
			formatNumber(st.Requests),
			formatRate(st.ThroughputRPS),
			formatPercent(st.ErrorRate),
			formatLatency(st.P50),
			formatLatency(st.P95),
			formatLatency(st.P99)))
	}
}

// PrintDryRun prints the reachability of every target.
func (c *Console) PrintDryRun(results []runner.ProbeResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln("Dry run: one request per target")
	for _, r := range results {
		if r.Reachable {
			c.writeln(fmt.Sprintf("  %s %-12s %s (HTTP %d, %s)",
				c.good.Sprint("✓"), r.Target, r.URL, r.Code, formatLatency(&r.Latency)))
			continue
		}

		reason := "no response"
		if r.Err != nil {
			reason = r.Err.Error()
		}
		c.writeln(fmt.Sprintf("  %s %-12s %s (%s)",
			c.bad.Sprint("✗"), r.Target, r.URL, reason))
	}

	reachable := runner.CountReachable(results)
	summary := fmt.Sprintf("%d/%d targets reachable", reachable, len(results))
	switch {
	case reachable == 0:
		c.writeln(c.bad.Sprint(summary))
	case reachable < len(results):
		c.writeln(c.warn.Sprint(summary))
	default:
		c.writeln(c.good.Sprint(summary))
	}
}

// IsColored returns whether output carries ANSI colors.
func (c *Console) IsColored() bool {
	return c.useColors
}

// writeln writes to the output with a newline.
func (c *Console) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

func sortedSummaries(in []metrics.TargetSummary) []metrics.TargetSummary {
	out := make([]metrics.TargetSummary, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func formatStatusCounts(counts map[string]int64) string {
	if len(counts) == 0 {
		return "-"
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%s", label, formatNumber(counts[label])))
	}
	return strings.Join(parts, " ")
}

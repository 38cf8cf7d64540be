package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display.
type OutputFormatter struct {
	useColor bool
	renderer *RelationRenderer

	mu     sync.Mutex
	writer io.Writer
}

// NewOutputFormatter creates a formatter. Color is used when writing to
// a terminal on stdout or stderr.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColor := false
	if f, ok := w.(*os.File); ok && (f == os.Stdout || f == os.Stderr) {
		useColor = !color.NoColor
	}

	return &OutputFormatter{
		useColor: useColor,
		writer:   w,
		renderer: NewRelationRenderer(useColor),
	}
}

// Handle prints events as they occur. It is a Handler.
func (f *OutputFormatter) Handle(event Event) {
	output := f.Format(event)
	if output == "" {
		return
	}
	f.mu.Lock()
	fmt.Fprintln(f.writer, output)
	f.mu.Unlock()
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case ProgramBegin:
		return fmt.Sprintf("%s %s Program %s with %d strata",
			latency,
			f.colorize("===", color.FgYellow),
			event.String("program"),
			event.Int("strata.count"))

	case ProgramComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s Program failed: %v",
				latency,
				f.colorize("✗", color.FgRed),
				event.Data["error"])
		}
		return fmt.Sprintf("%s %s Program done with %s emitted.",
			latency,
			f.colorize("===", color.FgGreen),
			f.renderer.colorizeCount("Tuples", event.Int("tuple.count")))

	case StratumBegin:
		return fmt.Sprintf("%s %s [%d] %s",
			latency,
			f.colorize("---", color.FgYellow),
			event.Int("stratum.index"),
			event.String("stratum"))

	case StratumComplete:
		if success, _ := event.Data["success"].(bool); !success {
			return fmt.Sprintf("%s %s [%d] %s failed",
				latency,
				f.colorize("✗", color.FgRed),
				event.Int("stratum.index"),
				event.String("stratum"))
		}
		return fmt.Sprintf("%s [%d] %s completed",
			latency,
			event.Int("stratum.index"),
			event.String("stratum"))

	case RuleEvaluated:
		return fmt.Sprintf("%s %s",
			latency,
			f.renderer.RenderDerivation(event.String("rule"), event.String("relation"), event.Int("tuple.count")))

	case RuleSkipped:
		return fmt.Sprintf("%s Rule(%s) skipped: %s is empty",
			latency,
			event.String("rule"),
			event.String("empty"))

	case FixpointIteration:
		targets, _ := event.Data["targets"].([]string)
		return fmt.Sprintf("%s Fixpoint(%s) round %d → %s",
			latency,
			strings.Join(targets, ","),
			event.Int("iteration"),
			f.renderer.colorizeCount("new Tuples", event.Int("tuple.count")))

	case RelationLoaded, RelationEmitted, RelationPurged:
		verb := strings.TrimPrefix(event.Name, "relation/")
		columns, _ := event.Data["columns"].([]string)
		return fmt.Sprintf("%s %s %s",
			latency,
			verb,
			f.renderer.RenderRelation(event.String("relation"), columns, event.Int("tuple.count")))

	case RelationLoadFailed:
		return fmt.Sprintf("%s %s load %s failed: %v",
			latency,
			f.colorize("⚠️", color.FgYellow),
			event.String("relation"),
			event.Data["error"])

	case PredicateWarning:
		return fmt.Sprintf("%s %s %s in %s: %s",
			latency,
			f.colorize("⚠️", color.FgYellow),
			event.String("predicate"),
			event.String("rule"),
			event.String("message"))

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

// formatLatency formats a duration as [XXXms] or [XXXµs] with color coding.
func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if ms >= 1000 {
		s = fmt.Sprintf("[%s]", d.Round(time.Millisecond))
	}

	if !f.useColor {
		return s
	}

	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

// colorize applies color if enabled.
func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// Summary renders per-relation tuple counts from relation/emitted events,
// one line per relation.
func Summary(events []Event) string {
	var b strings.Builder
	for _, e := range events {
		if e.Name != RelationEmitted {
			continue
		}
		fmt.Fprintf(&b, "%-28s %12s\n", e.String("relation"), humanize.Comma(int64(e.Int("tuple.count"))))
	}
	return b.String()
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	return NewOutputFormatter(os.Stderr).Handle
}

package annotations

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
)

// RelationRenderer pretty-prints relation summaries
type RelationRenderer struct {
	useColor bool
}

// NewRelationRenderer creates a new relation renderer
func NewRelationRenderer(useColor bool) *RelationRenderer {
	return &RelationRenderer{useColor: useColor}
}

// RenderRelation renders name([columns], N Tuples). Empty columns are
// left out, as is a negative count.
func (r *RelationRenderer) RenderRelation(name string, columns []string, tupleCount int) string {
	var parts []string
	if len(columns) > 0 {
		cols := strings.Join(columns, " ")
		if r.useColor {
			cols = color.CyanString(cols)
		}
		parts = append(parts, "["+cols+"]")
	}
	if tupleCount >= 0 {
		parts = append(parts, r.colorizeCount("Tuples", tupleCount))
	}

	if !r.useColor {
		return fmt.Sprintf("%s(%s)", name, strings.Join(parts, ", "))
	}
	return color.BlueString(name+"(") + strings.Join(parts, color.BlueString(", ")) + color.BlueString(")")
}

// RenderDerivation renders a rule producing tuples into its head relation.
func (r *RelationRenderer) RenderDerivation(rule, head string, derived int) string {
	arrow := " → "
	ruleStr := fmt.Sprintf("Rule(%s)", rule)
	if r.useColor {
		arrow = color.YellowString(arrow)
		ruleStr = color.BlueString("Rule(") + color.CyanString(rule) + color.BlueString(")")
	}
	return ruleStr + arrow + r.RenderRelation(head, nil, derived)
}

// colorizeCount formats a count with color based on size
func (r *RelationRenderer) colorizeCount(label string, count int) string {
	countStr := humanize.Comma(int64(count))
	if !r.useColor {
		return countStr + " " + label
	}

	switch {
	case count == 0:
		countStr = color.RedString(countStr)
	case count < 100:
		countStr = color.GreenString(countStr)
	case count < 10000:
		countStr = color.YellowString(countStr)
	default:
		countStr = color.RedString(countStr)
	}
	return countStr + " " + label
}

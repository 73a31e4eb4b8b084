package lp

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Dump writes every variable with its bounds and, when values is not nil, its
// value, followed by every constraint and the objective.
func (m *Model) Dump(w io.Writer, values []float64) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "model %s: %d variables, %d constraints\n", m.Name, len(m.vars), len(m.cons))
	for i, v := range m.vars {
		if values != nil && i < len(values) {
			fmt.Fprintf(tw, "var\t%s\t[%g, %g]\t= %g\n", v.name, v.lb, v.ub, values[i])
			continue
		}
		fmt.Fprintf(tw, "var\t%s\t[%g, %g]\t\n", v.name, v.lb, v.ub)
	}
	for _, c := range m.cons {
		fmt.Fprintf(tw, "con\t%s\t%s %s %g\n", c.Name, m.format(c.Expr), c.Rel, c.RHS)
	}
	fmt.Fprintf(tw, "obj\t%s\t%s\n", m.sense, m.format(m.obj))
	return tw.Flush()
}

// DumpString returns Dump as a string.
func (m *Model) DumpString(values []float64) string {
	var sb strings.Builder
	_ = m.Dump(&sb, values)
	return sb.String()
}

func (m *Model) format(e Expr) string {
	var sb strings.Builder
	for i, t := range e.Terms {
		switch {
		case i == 0 && t.Coef < 0:
			sb.WriteString("-")
		case i > 0 && t.Coef < 0:
			sb.WriteString(" - ")
		case i > 0:
			sb.WriteString(" + ")
		}
		c := t.Coef
		if c < 0 {
			c = -c
		}
		if c != 1 {
			fmt.Fprintf(&sb, "%g*", c)
		}
		sb.WriteString(m.vars[t.Var].name)
	}
	if e.Constant != 0 || len(e.Terms) == 0 {
		if len(e.Terms) > 0 {
			sb.WriteString(" + ")
		}
		fmt.Fprintf(&sb, "%g", e.Constant)
	}
	return sb.String()
}

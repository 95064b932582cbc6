// Package render writes group query results as a plain structured dump.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"pairings/internal/models"
	"pairings/internal/record"
)

// Formats lists the accepted values for Write's format argument.
var Formats = []string{"text", "json", "yaml"}

// Group is one run group and its assignments.
type Group struct {
	Code        string               `json:"group" yaml:"group"`
	Assignments []*models.Assignment `json:"assignments" yaml:"assignments"`
}

// Write dumps groups to w in the named format.
func Write(w io.Writer, format string, groups []Group) error {
	switch strings.ToLower(format) {
	case "", "text":
		return writeText(w, groups)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(groups); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

func writeText(w io.Writer, groups []Group) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "Group %s (%d)\n", g.Code, len(g.Assignments))
		fmt.Fprintln(tw, "DRIVER\tCLASS\tCAR\tINSTRUCTOR\t")
		for _, a := range g.Assignments {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
				driverLabel(a.Driver),
				classLabel(a),
				dash(a.Car),
				instructorLabel(a.Instructor))
		}
	}
	return tw.Flush()
}

func driverLabel(a *models.Attendee) string {
	if a == nil {
		return "-"
	}
	name := dash(a.Name)
	if a.FirstTimer {
		name += " *"
	}
	return name
}

func instructorLabel(a *models.Attendee) string {
	if a == nil {
		return "-"
	}
	return dash(a.Name)
}

func classLabel(a *models.Assignment) string {
	class := record.Value(a.Class)
	if a.Modifier != nil {
		class = strings.TrimSpace(class + " " + *a.Modifier)
	}
	if class == "" {
		return "-"
	}
	return class
}

func dash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

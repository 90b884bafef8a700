package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"sigs.k8s.io/yaml"

	"github.com/giantswarm/ispauth/pkg/auth"
)

// Format selects how command results are printed.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates an -o/--output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (use table, json or yaml)", s)
	}
}

// Structured writes v as JSON or YAML.
func Structured(w io.Writer, format Format, v interface{}) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal yaml: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("format %q is not structured", format)
	}
}

// TokenStatuses prints cached token entries.
func TokenStatuses(w io.Writer, format Format, statuses []auth.TokenStatus) error {
	if format != FormatTable {
		if statuses == nil {
			statuses = []auth.TokenStatus{}
		}
		return Structured(w, format, statuses)
	}

	if len(statuses) == 0 {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint("No cached tokens"))
		return err
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"PROFILE", "METHOD", "USERNAME", "ENV", "EXPIRES", "REFRESH"})
	for _, s := range statuses {
		refresh := text.FgHiBlack.Sprint("no")
		if s.HasRefreshToken {
			refresh = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{s.Profile, s.Method, s.Username, s.Env, Expiry(s.ExpiresAt), refresh})
	}
	t.Render()
	return nil
}

// Profiles prints the profile list; current is marked with an asterisk.
func Profiles(w io.Writer, format Format, rows []ProfileRow) error {
	if format != FormatTable {
		if rows == nil {
			rows = []ProfileRow{}
		}
		return Structured(w, format, rows)
	}

	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, text.FgYellow.Sprint("No profiles defined"))
		return err
	}

	t := newTable(w)
	t.AppendHeader(table.Row{"CURRENT", "NAME", "METHOD", "USERNAME", "DESCRIPTION"})
	for _, r := range rows {
		marker := ""
		if r.Current {
			marker = text.FgGreen.Sprint("*")
		}
		t.AppendRow(table.Row{marker, r.Name, r.Method, r.Username, OneLine(r.Description, descriptionWidth)})
	}
	t.Render()
	return nil
}

// ProfileRow is one line of `ispauth profile list`.
type ProfileRow struct {
	Name        string          `json:"name"`
	Method      auth.AuthMethod `json:"method"`
	Username    string          `json:"username"`
	Description string          `json:"description,omitempty"`
	Current     bool            `json:"current"`
}

// descriptionWidth bounds the description column of profile tables.
const descriptionWidth = 60

// OneLine collapses whitespace in s and cuts it to max runes, marking the
// cut with "...".
func OneLine(s string, max int) string {
	if max < 4 {
		max = 4
	}
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Options.DrawBorder = false
	t.Style().Options.SeparateColumns = false
	t.Style().Options.SeparateHeader = false
	return t
}

// Expiry renders an expiry relative to now.
func Expiry(expiresAt time.Time) string {
	if expiresAt.IsZero() {
		return "never"
	}
	remaining := time.Until(expiresAt)
	if remaining > 0 {
		return "in " + Duration(remaining)
	}
	return text.FgYellow.Sprintf("expired %s ago", Duration(-remaining))
}

// Duration renders d in the largest whole unit.
func Duration(d time.Duration) string {
	switch {
	case d < 0:
		return "expired"
	case d < time.Minute:
		return "< 1 minute"
	case d < time.Hour:
		return plural(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return plural(int(d.Hours()), "hour")
	default:
		return plural(int(d.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

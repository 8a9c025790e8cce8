package analytics

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
)

// RenderMarkdown writes a Report as a markdown session report, the
// format printed by `promptwheel analytics --verbose`.
func RenderMarkdown(w io.Writer, r Report) error {
	tmpl, err := template.New("analytics").Funcs(template.FuncMap{
		"join": strings.Join,
	}).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("analytics: parse report template: %w", err)
	}
	return tmpl.Execute(w, r)
}

// RenderHTML converts a Report's markdown rendering to HTML for
// consumers (a static report page, an email digest) that can't render
// markdown directly.
func RenderHTML(w io.Writer, r Report) error {
	var md bytes.Buffer
	if err := RenderMarkdown(&md, r); err != nil {
		return err
	}
	if err := goldmark.Convert(md.Bytes(), w); err != nil {
		return fmt.Errorf("analytics: convert report to HTML: %w", err)
	}
	return nil
}

// labelStyle and valueStyle color the one-line terminal summary printed
// by `promptwheel analytics` without --raw or --verbose.
var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	valueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4D96FF"))
)

// StatusLine renders a one-line terminal summary of a Report's window,
// styled the way the teacher's TUI modes color labels vs. values.
func StatusLine(r Report) string {
	return fmt.Sprintf(
		"%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("runs"), valueStyle.Render(fmt.Sprint(r.Window.Runs)),
		labelStyle.Render("completed"), valueStyle.Render(fmt.Sprint(r.Window.TicketsCompleted)),
		labelStyle.Render("blocked"), valueStyle.Render(fmt.Sprint(r.Window.TicketsBlocked)),
		labelStyle.Render("PRs"), valueStyle.Render(fmt.Sprint(r.Window.PRsCreated)),
	)
}

const reportTemplate = `# PromptWheel Analytics

Generated: {{ .GeneratedAt }}

## Window Summary

- Runs: {{ .Window.Runs }}
- Tickets completed: {{ .Window.TicketsCompleted }}
- Tickets blocked: {{ .Window.TicketsBlocked }}
- Tickets failed: {{ .Window.TicketsFailed }}
- PRs created: {{ .Window.PRsCreated }}
- Avg duration: {{ printf "%.1f" .Window.AvgDurationSec }}s

{{- if .TopErrors }}

## Top Error Patterns

| Category | Pattern | Count |
|----------|---------|-------|
{{- range .TopErrors }}
| {{ .Category }} | {{ .Pattern }} | {{ .Count }} |
{{- end }}
{{- end }}

{{- if .RecentRuns }}

## Recent Runs

| Run | Phase | Completed | Blocked | PRs |
|-----|-------|-----------|---------|-----|
{{- range .RecentRuns }}
| {{ .RunID }} | {{ .TerminalPhase }} | {{ .TicketsCompleted }} | {{ .TicketsBlocked }} | {{ .PRsCreated }} |
{{- end }}
{{- end }}
`

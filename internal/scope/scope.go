// Package scope implements the Scope Policy (spec.md §4.7): the
// allow/deny path enforcement that keeps a ticket's edits confined to
// what it claims to touch. It turns the category default-deny set and a
// ticket's own allowed/forbidden paths into a glob-matched decision on
// every file a ticket worker tries to write, and records the decision
// to the event log.
package scope

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/eventlog"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

// Policy is the resolved allow/deny glob set for one ticket, plus the
// project root every candidate path is normalized against.
type Policy struct {
	ProjectRoot string
	Allowed     []string
	Denied      []string
	MaxLines    int
}

// New derives a Policy for a ticket: the category default-deny set from
// config layered under the ticket's own forbidden_paths, and the
// ticket's allowed_paths as the allow set (empty allow set accepts
// everything that isn't denied).
func New(projectRoot string, ticket *types.Ticket, cfg config.ScopeConfig) *Policy {
	denied := make([]string, 0, len(cfg.DefaultDeny)+len(ticket.ForbiddenPaths))
	denied = append(denied, cfg.DefaultDeny...)
	denied = append(denied, ticket.ForbiddenPaths...)

	return &Policy{
		ProjectRoot: projectRoot,
		Allowed:     ticket.AllowedPaths,
		Denied:      denied,
		MaxLines:    cfg.MaxLinesPerTicket,
	}
}

// normalize resolves path relative to the project root and returns it
// as a slash-separated, project-relative path for glob matching.
func (p *Policy) normalize(path string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(p.ProjectRoot, path)
	}
	rel, err := filepath.Rel(p.ProjectRoot, abs)
	if err != nil {
		rel = abs
	}
	return filepath.ToSlash(rel)
}

func matchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
		// A bare directory prefix like "node_modules" or "internal/auth"
		// denies everything beneath it without requiring the caller to
		// spell out a trailing "/**".
		if strings.HasPrefix(path, strings.TrimSuffix(pattern, "/")+"/") {
			return true
		}
	}
	return false
}

// IsFileAllowed reports whether path is writable under this policy, and
// a human-readable reason for the decision.
func (p *Policy) IsFileAllowed(path string) (bool, string) {
	rel := p.normalize(path)

	if strings.HasPrefix(rel, "../") || rel == ".." {
		return false, "path escapes project root"
	}
	if matchesAny(p.Denied, rel) {
		return false, "matches a denied path pattern"
	}
	if len(p.Allowed) == 0 {
		return true, "no allow list; default accept"
	}
	if matchesAny(p.Allowed, rel) {
		return true, "matches an allowed path pattern"
	}
	return false, "does not match any allowed path pattern"
}

// Check runs IsFileAllowed and appends SCOPE_ALLOWED or SCOPE_BLOCKED to
// the event log, returning the same verdict for the caller to act on.
func (p *Policy) Check(log *eventlog.Log, phase types.Phase, ticketID, path string, tsMillis int64) (bool, error) {
	allowed, reason := p.IsFileAllowed(path)

	payload := map[string]any{
		"ticket_id": ticketID,
		"path":      path,
		"reason":    reason,
	}
	eventType := types.EventScopeBlocked
	if allowed {
		eventType = types.EventScopeAllowed
	}
	if err := log.Append(eventType, phase, payload, tsMillis); err != nil {
		return allowed, err
	}
	return allowed, nil
}

// ExceedsLineBudget reports whether a ticket's accumulated changed-line
// count has exceeded its policy's max_lines_per_ticket (0 disables the
// check).
func (p *Policy) ExceedsLineBudget(changedLines int) bool {
	return p.MaxLines > 0 && changedLines > p.MaxLines
}

// Package config resolves PromptWheel's session configuration.
//
// Resolution precedence (lowest to highest):
//  1. Defaults
//  2. Formula file (YAML or TOML, loaded via a FormulaSource)
//  3. Explicit CLI / tool-call overrides
//
// The result is an immutable Config snapshot that gets embedded once into
// the run record at session start (see internal/runstate). Later mutations
// such as hints or the skip_review toggle live only on the run state, never
// back on a package-level global.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultBaseDir is the canonical PromptWheel data directory.
const DefaultBaseDir = ".promptwheel"

// Config holds the fully resolved, immutable session configuration.
type Config struct {
	Output  string `yaml:"output" toml:"output" json:"output"`
	BaseDir string `yaml:"base_dir" toml:"base_dir" json:"base_dir"`
	Verbose bool   `yaml:"verbose" toml:"verbose" json:"verbose"`

	// Formula is the name of the formula bundle this config was built from,
	// kept for provenance in the run record ("" if none was applied).
	Formula string `yaml:"formula" toml:"formula" json:"formula"`

	Scope            ScopeConfig     `yaml:"scope" toml:"scope" json:"scope"`
	Categories       []string        `yaml:"categories" toml:"categories" json:"categories"`
	MinConfidence    int             `yaml:"min_confidence" toml:"min_confidence" json:"min_confidence"`
	MinImpactScore   int             `yaml:"min_impact_score" toml:"min_impact_score" json:"min_impact_score"`
	MaxProposals     int             `yaml:"max_proposals" toml:"max_proposals" json:"max_proposals"`
	CreatePRs        bool            `yaml:"create_prs" toml:"create_prs" json:"create_prs"`
	Draft            bool            `yaml:"draft" toml:"draft" json:"draft"`
	Direct           bool            `yaml:"direct" toml:"direct" json:"direct"`
	Parallel         int             `yaml:"parallel" toml:"parallel" json:"parallel"`
	CrossVerify      bool            `yaml:"cross_verify" toml:"cross_verify" json:"cross_verify"`
	SkipReview       bool            `yaml:"skip_review" toml:"skip_review" json:"skip_review"`
	DryRun           bool            `yaml:"dry_run" toml:"dry_run" json:"dry_run"`
	LearningsEnabled bool            `yaml:"learnings_enabled" toml:"learnings_enabled" json:"learnings_enabled"`
	QACommands       []string        `yaml:"qa_commands" toml:"qa_commands" json:"qa_commands"`
	StepBudget       int             `yaml:"step_budget" toml:"step_budget" json:"step_budget"`
	TicketStepBudget int             `yaml:"ticket_step_budget" toml:"ticket_step_budget" json:"ticket_step_budget"`
	MaxPRs           int             `yaml:"max_prs" toml:"max_prs" json:"max_prs"`
	ExpiresAfter     time.Duration   `yaml:"expires_after" toml:"expires_after" json:"expires_after"`
	Dedup            DedupConfig     `yaml:"dedup" toml:"dedup" json:"dedup"`
	Learnings        LearningsConfig `yaml:"learnings" toml:"learnings" json:"learnings"`
	Spindle          SpindleConfig   `yaml:"spindle" toml:"spindle" json:"spindle"`
	Git              GitConfig       `yaml:"git" toml:"git" json:"git"`
	Daemon           DaemonConfig    `yaml:"daemon" toml:"daemon" json:"daemon"`
	QA               QARunnerConfig  `yaml:"qa" toml:"qa" json:"qa"`
}

// ScopeConfig carries the project-wide default deny set layered under every
// ticket's own allow/deny lists.
type ScopeConfig struct {
	DefaultDeny       []string `yaml:"default_deny" toml:"default_deny" json:"default_deny"`
	MaxLinesPerTicket int      `yaml:"max_lines_per_ticket" toml:"max_lines_per_ticket" json:"max_lines_per_ticket"`
}

// DedupConfig tunes the dedup-memory similarity and decay formulas (spec.md §4.4).
type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold" json:"similarity_threshold"`
	NewWeight           float64 `yaml:"new_weight" toml:"new_weight" json:"new_weight"`
	CompletedWeight     float64 `yaml:"completed_weight" toml:"completed_weight" json:"completed_weight"`
	RehitBump           float64 `yaml:"rehit_bump" toml:"rehit_bump" json:"rehit_bump"`
	DailyDecayRate      float64 `yaml:"daily_decay_rate" toml:"daily_decay_rate" json:"daily_decay_rate"`
	FormatCharBudget    int     `yaml:"format_char_budget" toml:"format_char_budget" json:"format_char_budget"`
}

// LearningsConfig tunes the learnings-store relevance and injection budget (spec.md §4.5).
type LearningsConfig struct {
	CharBudget int `yaml:"char_budget" toml:"char_budget" json:"char_budget"`
	TopK       int `yaml:"top_k" toml:"top_k" json:"top_k"`
}

// SpindleConfig tunes loop-detector thresholds (spec.md §4.6).
type SpindleConfig struct {
	MaxStallIterations int `yaml:"max_stall_iterations" toml:"max_stall_iterations" json:"max_stall_iterations"`
	MaxSimilarOutputs  int `yaml:"max_similar_outputs" toml:"max_similar_outputs" json:"max_similar_outputs"`
	MaxQAPingPong      int `yaml:"max_qa_ping_pong" toml:"max_qa_ping_pong" json:"max_qa_ping_pong"`
	MaxCommandFailures int `yaml:"max_command_failures" toml:"max_command_failures" json:"max_command_failures"`
}

// GitConfig tunes the git/PR controller (spec.md §4.14).
type GitConfig struct {
	AllowedRemote       string        `yaml:"allowed_remote" toml:"allowed_remote" json:"allowed_remote"`
	OperationTimeout    time.Duration `yaml:"operation_timeout" toml:"operation_timeout" json:"operation_timeout"`
	MilestoneBranch     string        `yaml:"milestone_branch" toml:"milestone_branch" json:"milestone_branch"`
	AutoMerge           bool          `yaml:"auto_merge" toml:"auto_merge" json:"auto_merge"`
	DeleteBranchOnMerge bool          `yaml:"delete_branch_on_merge" toml:"delete_branch_on_merge" json:"delete_branch_on_merge"`
}

// DaemonConfig tunes the outer wake loop (spec.md §4.15).
type DaemonConfig struct {
	BaseInterval   time.Duration `yaml:"base_interval" toml:"base_interval" json:"base_interval"`
	CyclesPerWake  int           `yaml:"cycles_per_wake" toml:"cycles_per_wake" json:"cycles_per_wake"`
	QuietHoursCron string        `yaml:"quiet_hours_cron" toml:"quiet_hours_cron" json:"quiet_hours_cron"`
	WakeCron       string        `yaml:"wake_cron" toml:"wake_cron" json:"wake_cron"`
	Webhooks       []string      `yaml:"webhooks" toml:"webhooks" json:"webhooks"`
}

// QARunnerConfig tunes the QA runner (spec.md §4.13).
type QARunnerConfig struct {
	CommandTimeout time.Duration `yaml:"command_timeout" toml:"command_timeout" json:"command_timeout"`
	MaxOutputBytes int           `yaml:"max_output_bytes" toml:"max_output_bytes" json:"max_output_bytes"`
	TailBytes      int           `yaml:"tail_bytes" toml:"tail_bytes" json:"tail_bytes"`
	Sandbox        string        `yaml:"sandbox" toml:"sandbox" json:"sandbox"` // "" | "docker"
	SandboxImage   string        `yaml:"sandbox_image" toml:"sandbox_image" json:"sandbox_image"`
}

// Default returns PromptWheel's baseline configuration.
func Default() *Config {
	return &Config{
		Output:  "table",
		BaseDir: DefaultBaseDir,
		Scope: ScopeConfig{
			DefaultDeny:       []string{".env", ".env.*", "node_modules/**", ".git/**", "**/*.lock"},
			MaxLinesPerTicket: 400,
		},
		Categories:       []string{"refactor", "test", "docs", "perf", "security", "fix"},
		MinConfidence:    0,
		MinImpactScore:   3,
		MaxProposals:     8,
		CreatePRs:        true,
		Draft:            false,
		Direct:           false,
		Parallel:         1,
		CrossVerify:      false,
		SkipReview:       false,
		DryRun:           false,
		LearningsEnabled: true,
		QACommands:       nil,
		StepBudget:       200,
		TicketStepBudget: 60,
		MaxPRs:           10,
		Dedup: DedupConfig{
			SimilarityThreshold: 0.6,
			NewWeight:           60,
			CompletedWeight:     100,
			RehitBump:           10,
			DailyDecayRate:      0.15,
			FormatCharBudget:    1500,
		},
		Learnings: LearningsConfig{
			CharBudget: 2000,
			TopK:       8,
		},
		Spindle: SpindleConfig{
			MaxStallIterations: 5,
			MaxSimilarOutputs:  3,
			MaxQAPingPong:      3,
			MaxCommandFailures: 3,
		},
		Git: GitConfig{
			AllowedRemote:       "origin",
			OperationTimeout:    10 * time.Second,
			MilestoneBranch:     "",
			AutoMerge:           false,
			DeleteBranchOnMerge: true,
		},
		Daemon: DaemonConfig{
			BaseInterval:  30 * time.Minute,
			CyclesPerWake: 1,
		},
		QA: QARunnerConfig{
			CommandTimeout: 10 * time.Minute,
			MaxOutputBytes: 2 << 20,  // 2 MB
			TailBytes:      64 << 10, // 64 KB
		},
	}
}

// FormulaSource parses a formula bundle from disk into a Config overlay.
// YAML and TOML sources both decode into the same Config shape; fields left
// zero-valued in the formula file do not override the default.
type FormulaSource interface {
	Load(path string) (*Config, error)
}

// Overrides captures explicit CLI/tool-call values. A field is only applied
// when its companion flag in OverrideSet is true, distinguishing "not
// provided" from "explicitly set to the zero value".
type Overrides struct {
	Values Config
	Set    OverrideSet
}

// OverrideSet tracks which Overrides.Values fields were explicitly provided.
type OverrideSet struct {
	CreatePRs, Draft, Direct, Parallel, CrossVerify, SkipReview, DryRun bool
	MinImpactScore, MaxProposals, StepBudget, TicketStepBudget, MaxPRs  bool
	Categories, QACommands                                             bool
}

// Resolve composes defaults, a formula file, and explicit overrides into one
// immutable Config snapshot.
func Resolve(formulaPath string, source FormulaSource, overrides *Overrides) (*Config, error) {
	cfg := Default()

	if formulaPath != "" {
		if source == nil {
			return nil, fmt.Errorf("resolve config: formula path %q given without a FormulaSource", formulaPath)
		}
		formula, err := source.Load(formulaPath)
		if err != nil {
			return nil, fmt.Errorf("load formula %s: %w", formulaPath, err)
		}
		cfg.Formula = baseName(formulaPath)
		mergeFormula(cfg, formula)
	}

	if overrides != nil {
		applyOverrides(cfg, overrides)
	}

	return cfg, nil
}

func baseName(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

// mergeFormula layers non-zero formula fields over the defaults.
func mergeFormula(dst *Config, src *Config) {
	if src.Output != "" {
		dst.Output = src.Output
	}
	if src.BaseDir != "" {
		dst.BaseDir = src.BaseDir
	}
	if len(src.Categories) > 0 {
		dst.Categories = src.Categories
	}
	if src.MinConfidence != 0 {
		dst.MinConfidence = src.MinConfidence
	}
	if src.MinImpactScore != 0 {
		dst.MinImpactScore = src.MinImpactScore
	}
	if src.MaxProposals != 0 {
		dst.MaxProposals = src.MaxProposals
	}
	if src.Parallel != 0 {
		dst.Parallel = src.Parallel
	}
	if src.StepBudget != 0 {
		dst.StepBudget = src.StepBudget
	}
	if src.TicketStepBudget != 0 {
		dst.TicketStepBudget = src.TicketStepBudget
	}
	if src.MaxPRs != 0 {
		dst.MaxPRs = src.MaxPRs
	}
	if len(src.QACommands) > 0 {
		dst.QACommands = src.QACommands
	}
	if len(src.Scope.DefaultDeny) > 0 {
		dst.Scope.DefaultDeny = src.Scope.DefaultDeny
	}
	if src.Scope.MaxLinesPerTicket != 0 {
		dst.Scope.MaxLinesPerTicket = src.Scope.MaxLinesPerTicket
	}
	// Boolean fields in a formula are meaningful only as explicit true;
	// formulas are additive layers, not authoritative over CLI overrides.
	dst.CreatePRs = dst.CreatePRs || src.CreatePRs
	dst.Draft = dst.Draft || src.Draft
	dst.Direct = dst.Direct || src.Direct
	dst.CrossVerify = dst.CrossVerify || src.CrossVerify
	dst.SkipReview = dst.SkipReview || src.SkipReview
}

func applyOverrides(dst *Config, o *Overrides) {
	if o.Set.CreatePRs {
		dst.CreatePRs = o.Values.CreatePRs
	}
	if o.Set.Draft {
		dst.Draft = o.Values.Draft
	}
	if o.Set.Direct {
		dst.Direct = o.Values.Direct
	}
	if o.Set.Parallel {
		dst.Parallel = o.Values.Parallel
	}
	if o.Set.CrossVerify {
		dst.CrossVerify = o.Values.CrossVerify
	}
	if o.Set.SkipReview {
		dst.SkipReview = o.Values.SkipReview
	}
	if o.Set.DryRun {
		dst.DryRun = o.Values.DryRun
	}
	if o.Set.MinImpactScore {
		dst.MinImpactScore = o.Values.MinImpactScore
	}
	if o.Set.MaxProposals {
		dst.MaxProposals = o.Values.MaxProposals
	}
	if o.Set.StepBudget {
		dst.StepBudget = o.Values.StepBudget
	}
	if o.Set.TicketStepBudget {
		dst.TicketStepBudget = o.Values.TicketStepBudget
	}
	if o.Set.MaxPRs {
		dst.MaxPRs = o.Values.MaxPRs
	}
	if o.Set.Categories {
		dst.Categories = o.Values.Categories
	}
	if o.Set.QACommands {
		dst.QACommands = o.Values.QACommands
	}
}

// ProjectDir resolves the PromptWheel data directory for a project root.
func ProjectDir(projectRoot, baseDir string) string {
	if baseDir == "" {
		baseDir = DefaultBaseDir
	}
	if filepath.IsAbs(baseDir) {
		return baseDir
	}
	return filepath.Join(projectRoot, baseDir)
}

// EnsureProjectDir creates the PromptWheel data directory if missing.
func EnsureProjectDir(projectRoot, baseDir string) (string, error) {
	dir := ProjectDir(projectRoot, baseDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create project dir %s: %w", dir, err)
	}
	return dir, nil
}

// Package types defines the data model shared by every PromptWheel
// orchestration package: the run record, tickets, proposals, sectors, the
// dedup/learnings memories, the spindle loop-detector state, trajectories,
// and the event envelope. See spec.md §3 for the authoritative shapes; this
// package is the Go rendering of that model.
package types

import "time"

// Phase is a session-level phase in the PromptWheel state machine.
type Phase string

const (
	PhaseScout            Phase = "SCOUT"
	PhaseNextTicket       Phase = "NEXT_TICKET"
	PhasePlan             Phase = "PLAN"
	PhaseExecute          Phase = "EXECUTE"
	PhaseParallelExecute  Phase = "PARALLEL_EXECUTE"
	PhaseQA               Phase = "QA"
	PhasePR               Phase = "PR"
	PhaseDone             Phase = "DONE"
	PhaseFailedBudget     Phase = "FAILED_BUDGET"
	PhaseFailedValidation Phase = "FAILED_VALIDATION"
	PhaseFailedSpindle    Phase = "FAILED_SPINDLE"
	PhaseBlockedNeedsHuman Phase = "BLOCKED_NEEDS_HUMAN"
)

// IsTerminal reports whether a phase is a terminal state the state machine
// never leaves (spec.md §8: "advance() never moves between terminal phases").
func (p Phase) IsTerminal() bool {
	switch p {
	case PhaseDone, PhaseFailedBudget, PhaseFailedValidation, PhaseFailedSpindle, PhaseBlockedNeedsHuman:
		return true
	default:
		return false
	}
}

// TicketStatus is the lifecycle status of a Ticket.
type TicketStatus string

const (
	TicketBacklog    TicketStatus = "backlog"
	TicketReady      TicketStatus = "ready"
	TicketInProgress TicketStatus = "in_progress"
	TicketInReview   TicketStatus = "in_review"
	TicketDone       TicketStatus = "done"
	TicketBlocked    TicketStatus = "blocked"
	TicketAborted    TicketStatus = "aborted"
	TicketLeased     TicketStatus = "leased"
)

// RiskLevel is a proposal's estimated blast radius.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Run is the mutable per-session record, persisted atomically to
// state.json (spec.md §3, "Run (session) record").
type Run struct {
	RunID     string     `json:"run_id"`
	SessionID string     `json:"session_id"`
	ProjectID string     `json:"project_id"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Phase Phase `json:"phase"`

	// Budgets & counters (spec.md I1).
	StepBudget       int `json:"step_budget"`
	StepCount        int `json:"step_count"`
	TicketStepBudget int `json:"ticket_step_budget"`
	TicketStepCount  int `json:"ticket_step_count"`
	MaxPRs           int `json:"max_prs"`
	PRsCreated       int `json:"prs_created"`
	TicketsCompleted int `json:"tickets_completed"`
	TicketsFailed    int `json:"tickets_failed"`
	TicketsBlocked   int `json:"tickets_blocked"`
	ScoutCycles      int `json:"scout_cycles"`
	ScoutRetries     int `json:"scout_retries"`

	// Current ticket.
	CurrentTicketID       string `json:"current_ticket_id,omitempty"`
	PlanApproved          bool   `json:"plan_approved"`
	PlanRejections        int    `json:"plan_rejections"`
	LastPlanRejectionReason string `json:"last_plan_rejection_reason,omitempty"`

	// QA state.
	QARetries      int            `json:"qa_retries"`
	LastQAFailure  *QAFailure     `json:"last_qa_failure,omitempty"`

	// Pending work.
	PendingProposals    []Proposal `json:"pending_proposals,omitempty"`
	Hints               []string   `json:"hints,omitempty"`
	ScoutedDirs         []string   `json:"scouted_dirs,omitempty"`
	ScoutExplorationLog []string   `json:"scout_exploration_log,omitempty"`
	ScoutedThisCycle    bool       `json:"scouted_this_cycle"`

	// SkipReview is a runtime override of the session config's
	// skip_review flag (USER_OVERRIDE can flip it mid-session without
	// mutating the immutable config snapshot).
	SkipReview bool `json:"skip_review"`

	// Caches.
	CachedLearnings    []Learning `json:"cached_learnings,omitempty"`
	InjectedLearningIDs []string  `json:"injected_learning_ids,omitempty"`
	CodebaseIndexDirty bool       `json:"codebase_index_dirty"`

	// Parallel.
	TicketWorkers map[string]*WorkerState `json:"ticket_workers,omitempty"`

	// Config snapshot embedded verbatim at session start (see internal/config).
	ConfigSnapshot map[string]any `json:"config_snapshot,omitempty"`

	// Budget-warning firing tracker, not part of the spec shape but required
	// to honor "fire BUDGET_WARNING once at each of 50/80/95%" (spec.md §4.9.4).
	BudgetWarningsFired map[int]bool `json:"budget_warnings_fired,omitempty"`
}

// QAFailure records the most recent QA failure for a ticket or run.
type QAFailure struct {
	Category        string   `json:"category"` // environment | timeout | code
	Message         string   `json:"message"`
	FailingCommands []string `json:"failing_commands,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// WorkerState is the per-ticket mini state machine state under the
// parallel scheduler (spec.md §3, "WorkerState").
type WorkerState struct {
	Phase       Phase      `json:"phase"`
	TicketID    string     `json:"ticket_id"`
	Plan        string     `json:"plan,omitempty"`
	PlanApproved bool      `json:"plan_approved"`
	QARetries   int        `json:"qa_retries"`
	LastQAFailure *QAFailure `json:"last_qa_failure,omitempty"`
	Spindle     SpindleState `json:"spindle"`
	BranchName  string     `json:"branch_name,omitempty"`
	PRURL       string     `json:"pr_url,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Ticket is a unit of work materialized from an accepted Proposal
// (spec.md §3, "Ticket").
type Ticket struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      TicketStatus `json:"status"`
	Priority    int      `json:"priority"`
	Category    string   `json:"category"`

	AllowedPaths        []string `json:"allowed_paths,omitempty"`
	ForbiddenPaths      []string `json:"forbidden_paths,omitempty"`
	VerificationCommands []string `json:"verification_commands,omitempty"`

	Confidence int       `json:"confidence"`
	ImpactScore int      `json:"impact_score"`
	Risk        RiskLevel `json:"risk,omitempty"`
	RollbackNote string   `json:"rollback_note,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Proposal is the raw scout output before it becomes a Ticket
// (spec.md §3, "Proposal").
type Proposal struct {
	Category             string   `json:"category"`
	Title                string   `json:"title"`
	Description          string   `json:"description"`
	AcceptanceCriteria   []string `json:"acceptance_criteria,omitempty"`
	VerificationCommands []string `json:"verification_commands,omitempty"`
	AllowedPaths         []string `json:"allowed_paths,omitempty"`
	Files                []string `json:"files,omitempty"`
	Confidence           int      `json:"confidence"` // 0-100
	ImpactScore          int      `json:"impact_score"` // 1-10
	Risk                 RiskLevel `json:"risk"`
	RollbackNote         string   `json:"rollback_note,omitempty"`
	TouchedFilesEstimate int      `json:"touched_files_estimate,omitempty"`

	// ReviewScore is merged in by the adversarial-review step (spec.md §4.8).
	ReviewScore *float64 `json:"review_score,omitempty"`
	// RejectionReason is set by the pipeline when a proposal is dropped; not
	// serialized into tickets, only surfaced in logs/events.
	RejectionReason string `json:"-"`
}

// Sector is a scout-discovered codebase module with scan tracking
// (spec.md §3, "Sector").
type Sector struct {
	Path                     string    `json:"path"`
	Purpose                  string    `json:"purpose"`
	Production               bool      `json:"production"`
	FileCount                int       `json:"file_count"`
	ProductionFileCount      int       `json:"production_file_count"`
	ClassificationConfidence float64   `json:"classification_confidence"`
	LastScannedAt            *time.Time `json:"last_scanned_at,omitempty"`
	LastScannedCycle         int       `json:"last_scanned_cycle"`
	ScanCount                int       `json:"scan_count"`
	ProposalYield            float64   `json:"proposal_yield"` // EMA, alpha=0.3
	SuccessCount             int       `json:"success_count"`
	FailureCount             int       `json:"failure_count"`
	PolishedAt               *time.Time `json:"polished_at,omitempty"`
	MergeCount               int       `json:"merge_count,omitempty"`
	ClosedCount              int       `json:"closed_count,omitempty"`
	CategoryStats            map[string]*CategoryStat `json:"category_stats,omitempty"`
}

// CategoryStat tracks per-category attempt/success counts for a sector's
// category-affinity boost/suppress gating (spec.md §4.3).
type CategoryStat struct {
	Attempts int `json:"attempts"`
	Successes int `json:"successes"`
}

// SuccessRate returns Successes/Attempts, or 0 when there have been no attempts.
func (c *CategoryStat) SuccessRate() float64 {
	if c == nil || c.Attempts == 0 {
		return 0
	}
	return float64(c.Successes) / float64(c.Attempts)
}

// DedupEntry is a weighted recent-work memory entry (spec.md §3, "DedupEntry").
type DedupEntry struct {
	Title      string    `json:"title"`
	Weight     float64   `json:"weight"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	HitCount   int       `json:"hit_count"`
	Completed  bool      `json:"completed"`
}

// LearningCategory classifies a Learning entry.
type LearningCategory string

const (
	LearningPattern        LearningCategory = "pattern"
	LearningWarning        LearningCategory = "warning"
	LearningPreference     LearningCategory = "preference"
	LearningConstraint     LearningCategory = "constraint"
	LearningProcessInsight LearningCategory = "process_insight"
)

// LearningSource records where a Learning originated.
type LearningSource struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
}

// Learning is a short text capturing a project-specific convention or prior
// mistake, used to bias prompts (spec.md §3, "Learning").
type Learning struct {
	ID            string           `json:"id"`
	Text          string           `json:"text"`
	Category      LearningCategory `json:"category"`
	Source        LearningSource   `json:"source"`
	Tags          []string         `json:"tags,omitempty"`
	Weight        float64          `json:"weight"`
	AccessCount   int              `json:"access_count"`
	Effectiveness float64          `json:"effectiveness"` // [0,1], EMA of success credit
}

// SpindleState is the per-ticket loop-detector rolling state
// (spec.md §3, "SpindleState").
type SpindleState struct {
	IterationsSinceChange   int            `json:"iterations_since_change"`
	DiffHashes              []string       `json:"diff_hashes,omitempty"`   // capped at 10
	OutputHashes            []string       `json:"output_hashes,omitempty"` // capped at 10
	PlanHashes              []string       `json:"plan_hashes,omitempty"`   // capped at 10
	FailingCommandSignatures []string      `json:"failing_command_signatures,omitempty"` // capped at 20
	FileEditCounts          map[string]int `json:"file_edit_counts,omitempty"`           // capped at 50 keys
	TotalOutputChars        int            `json:"total_output_chars"`
	TotalChangeChars        int            `json:"total_change_chars"`
}

// TrajectoryStepStatus is a Trajectory step's lifecycle state.
type TrajectoryStepStatus string

const (
	StepPending   TrajectoryStepStatus = "pending"
	StepActive    TrajectoryStepStatus = "active"
	StepCompleted TrajectoryStepStatus = "completed"
	StepSkipped   TrajectoryStepStatus = "skipped"
	StepFailed    TrajectoryStepStatus = "failed"
)

// TrajectoryStep is one named step of a long-term plan
// (spec.md §3, "Trajectory").
type TrajectoryStep struct {
	ID                   string   `yaml:"id" json:"id"`
	Title                string   `yaml:"title" json:"title"`
	Description          string   `yaml:"description" json:"description"`
	Scope                []string `yaml:"scope,omitempty" json:"scope,omitempty"`
	Categories           []string `yaml:"categories,omitempty" json:"categories,omitempty"`
	AcceptanceCriteria   []string `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	VerificationCommands []string `yaml:"verification_commands,omitempty" json:"verification_commands,omitempty"`
	DependsOn            []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	Measure              string   `yaml:"measure,omitempty" json:"measure,omitempty"`
}

// Trajectory is an ordered named plan of steps that, when active,
// constrains scouting.
type Trajectory struct {
	Name        string           `yaml:"name" json:"name"`
	Description string           `yaml:"description" json:"description"`
	Steps       []TrajectoryStep `yaml:"steps" json:"steps"`
}

// TrajectoryStepState tracks a single step's runtime progress.
type TrajectoryStepState struct {
	Status             TrajectoryStepStatus `json:"status"`
	CyclesAttempted    int                  `json:"cycles_attempted"`
	LastAttemptedCycle int                  `json:"last_attempted_cycle"`
	CompletedAt        *time.Time           `json:"completed_at,omitempty"`
}

// TrajectoryState is the runtime progress for an active Trajectory.
type TrajectoryState struct {
	StepStates    map[string]*TrajectoryStepState `json:"step_states"`
	CurrentStepID string                          `json:"current_step_id,omitempty"`
	Paused        bool                            `json:"paused"`
}

// EventType enumerates the typed events the event processor routes on
// (spec.md §3, "Event").
type EventType string

const (
	EventScoutOutput       EventType = "SCOUT_OUTPUT"
	EventProposalsReviewed EventType = "PROPOSALS_REVIEWED"
	EventPlanSubmitted     EventType = "PLAN_SUBMITTED"
	EventTicketResult      EventType = "TICKET_RESULT"
	EventQAPassed          EventType = "QA_PASSED"
	EventQAFailed          EventType = "QA_FAILED"
	EventQACommandResult   EventType = "QA_COMMAND_RESULT"
	EventPRCreated         EventType = "PR_CREATED"
	EventUserOverride      EventType = "USER_OVERRIDE"
	EventBudgetWarning     EventType = "BUDGET_WARNING"
	EventScopeAllowed      EventType = "SCOPE_ALLOWED"
	EventScopeBlocked      EventType = "SCOPE_BLOCKED"
)

// Event is one line of events.ndjson.
type Event struct {
	TS      int64          `json:"ts"` // epoch-ms
	Type    EventType      `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
	Step    int            `json:"step,omitempty"`
	Phase   Phase          `json:"phase,omitempty"`
}

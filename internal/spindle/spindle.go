// Package spindle implements the loop detector (spec.md §4.6): called on
// every ticket-worker iteration with fresh output, diff, and failed
// commands, it recognizes stalling, oscillation, repetition, QA
// ping-pong, and repeated command failure, and recommends abort, block,
// or continue.
package spindle

import (
	"github.com/promptwheel-ai/promptwheel/internal/config"
	"github.com/promptwheel-ai/promptwheel/internal/types"
)

const (
	maxDiffHashes    = 10
	maxOutputHashes  = 10
	maxPlanHashes    = 10
	maxCommandSigs   = 20
	maxFileEditPaths = 50
)

// Trigger names a detection rule, in the first-match-wins order they are
// checked (spec.md §4.6).
type Trigger string

const (
	TriggerNone           Trigger = "none"
	TriggerStalling       Trigger = "stalling"
	TriggerOscillation    Trigger = "oscillation"
	TriggerRepetition     Trigger = "repetition"
	TriggerQAPingPong     Trigger = "qa_ping_pong"
	TriggerCommandFailure Trigger = "command_failure"
)

// Action is what the caller should do about a tripped trigger.
type Action string

const (
	ActionNone  Action = "none"
	ActionAbort Action = "abort"
	ActionBlock Action = "block"
)

// Risk is the aggregate risk level reported alongside every evaluation,
// independent of whether a trigger fired.
type Risk string

const (
	RiskNone   Risk = "none"
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Result is the outcome of one spindle evaluation.
type Result struct {
	Trigger        Trigger
	Action         Action
	Risk           Risk
	Recommendation string
}

// Observation is one iteration's fresh signal, fed into the rolling state
// before evaluation.
type Observation struct {
	DiffHash               string
	OutputHash             string
	PlanHash               string
	Changed                bool     // true if the diff/output differs from the previous iteration
	FailingCommandSignature string  // empty if all commands passed
	EditedFiles            []string
}

func pushCapped(hashes []string, v string, cap int) []string {
	hashes = append(hashes, v)
	if len(hashes) > cap {
		hashes = hashes[len(hashes)-cap:]
	}
	return hashes
}

// Observe folds one iteration's observation into the rolling state.
func Observe(state *types.SpindleState, obs Observation) {
	if obs.Changed {
		state.IterationsSinceChange = 0
	} else {
		state.IterationsSinceChange++
	}

	state.DiffHashes = pushCapped(state.DiffHashes, obs.DiffHash, maxDiffHashes)
	state.OutputHashes = pushCapped(state.OutputHashes, obs.OutputHash, maxOutputHashes)
	if obs.PlanHash != "" {
		state.PlanHashes = pushCapped(state.PlanHashes, obs.PlanHash, maxPlanHashes)
	}
	if obs.FailingCommandSignature != "" {
		state.FailingCommandSignatures = pushCapped(state.FailingCommandSignatures, obs.FailingCommandSignature, maxCommandSigs)
	}

	state.TotalOutputChars += len(obs.OutputHash)
	state.TotalChangeChars += len(obs.DiffHash)

	if state.FileEditCounts == nil {
		state.FileEditCounts = map[string]int{}
	}
	for _, f := range obs.EditedFiles {
		if _, ok := state.FileEditCounts[f]; !ok && len(state.FileEditCounts) >= maxFileEditPaths {
			continue
		}
		state.FileEditCounts[f]++
	}
}

// Evaluate runs the ordered, first-match-wins detection rules against the
// current rolling state and computes a risk score.
func Evaluate(state *types.SpindleState, cfg config.SpindleConfig) Result {
	trigger, action := detect(state, cfg)
	risk := scoreRisk(state, cfg)
	return Result{
		Trigger:        trigger,
		Action:         action,
		Risk:           risk,
		Recommendation: recommendation(trigger),
	}
}

func detect(state *types.SpindleState, cfg config.SpindleConfig) (Trigger, Action) {
	if cfg.MaxStallIterations > 0 && state.IterationsSinceChange >= cfg.MaxStallIterations {
		return TriggerStalling, ActionAbort
	}
	if hasOscillation(state.DiffHashes) {
		return TriggerOscillation, ActionAbort
	}
	if hasRepetition(state.OutputHashes, cfg.MaxSimilarOutputs) {
		return TriggerRepetition, ActionAbort
	}
	if cfg.MaxQAPingPong > 0 && countAlternations(state.FailingCommandSignatures) > cfg.MaxQAPingPong {
		return TriggerQAPingPong, ActionAbort
	}
	if cfg.MaxCommandFailures > 0 && trailingRepeatCount(state.FailingCommandSignatures) >= cfg.MaxCommandFailures {
		return TriggerCommandFailure, ActionBlock
	}
	return TriggerNone, ActionNone
}

// hasOscillation reports whether the last three diff hashes form an A-B-A
// pattern: the most recent and the one two back are equal, while the one
// in between differs.
func hasOscillation(hashes []string) bool {
	n := len(hashes)
	if n < 3 {
		return false
	}
	a, b, c := hashes[n-3], hashes[n-2], hashes[n-1]
	return a == c && a != b
}

// hasRepetition reports whether the trailing window of output hashes are
// all identical.
func hasRepetition(hashes []string, window int) bool {
	if window <= 0 || len(hashes) < window {
		return false
	}
	tail := hashes[len(hashes)-window:]
	first := tail[0]
	for _, h := range tail[1:] {
		if h != first {
			return false
		}
	}
	return true
}

// countAlternations counts adjacent signature changes across the full
// failing-command history, the measure of QA ping-pong.
func countAlternations(sigs []string) int {
	count := 0
	for i := 1; i < len(sigs); i++ {
		if sigs[i] != sigs[i-1] {
			count++
		}
	}
	return count
}

// trailingRepeatCount counts how many times, from the end, the same
// signature has repeated consecutively.
func trailingRepeatCount(sigs []string) int {
	if len(sigs) == 0 {
		return 0
	}
	last := sigs[len(sigs)-1]
	count := 0
	for i := len(sigs) - 1; i >= 0 && sigs[i] == last; i-- {
		count++
	}
	return count
}

func repeatedOutputPairs(hashes []string) int {
	count := 0
	for i := 1; i < len(hashes); i++ {
		if hashes[i] == hashes[i-1] {
			count++
		}
	}
	return count
}

func scoreRisk(state *types.SpindleState, cfg config.SpindleConfig) Risk {
	score := 0

	if cfg.MaxStallIterations > 0 {
		switch {
		case state.IterationsSinceChange >= cfg.MaxStallIterations-1:
			score += 2
		case state.IterationsSinceChange >= cfg.MaxStallIterations-2:
			score++
		}
	}

	if pairs := repeatedOutputPairs(state.OutputHashes); pairs > 0 {
		if pairs > 2 {
			pairs = 2
		}
		score += pairs
	}

	for _, n := range state.FileEditCounts {
		if n > 10 {
			score++
			break
		}
	}

	if streak := trailingRepeatCount(state.FailingCommandSignatures); streak > 0 {
		if streak > 2 {
			streak = 2
		}
		score += streak
	}

	switch {
	case score >= 4:
		return RiskHigh
	case score >= 2:
		return RiskMedium
	case score >= 1:
		return RiskLow
	default:
		return RiskNone
	}
}

func recommendation(t Trigger) string {
	switch t {
	case TriggerStalling:
		return "no meaningful change across iterations; abort and return the ticket to the backlog for re-planning"
	case TriggerOscillation:
		return "diff is flipping between two states; abort and ask for a different approach"
	case TriggerRepetition:
		return "output has stopped changing; abort, the agent is repeating itself"
	case TriggerQAPingPong:
		return "QA failures are alternating between commands without progress; abort and flag for human review"
	case TriggerCommandFailure:
		return "same command keeps failing; block the ticket and request human intervention"
	default:
		return ""
	}
}

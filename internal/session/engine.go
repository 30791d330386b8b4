package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/callscope/callscope/internal/database/models"
)

// Engine runs the full reconciliation pass: normalize, group, link,
// finalize. It holds only immutable rules, so a single Engine may serve
// concurrent runs.
type Engine struct {
	rules *Rules
}

// NewEngine creates an engine bound to a rules snapshot.
func NewEngine(rules *Rules) *Engine {
	return &Engine{rules: rules}
}

// Result is the output of one reconciliation run. Orphans is a first-class
// diagnostic: operators audit "missing" calls through it, it is not a side
// channel.
type Result struct {
	RunID       string           `json:"run_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	LegCount    int              `json:"leg_count"`
	Sessions    []LogicalSession `json:"sessions"`
	Orphans     []NormalizedLeg  `json:"orphans"`
}

// Reconstruct turns raw CDR rows into logical sessions. Given the same
// rows and rules, the session set is identical across runs; widening the
// input window may re-link orphans differently, which is an accepted
// property of the heuristic.
func (e *Engine) Reconstruct(raw []models.RawLeg) *Result {
	legs := make([]NormalizedLeg, len(raw))
	for i, row := range raw {
		legs[i] = Normalize(row, e.rules)
	}

	pre, orphans := BuildPreSessions(legs)
	unlinked := LinkOrphans(pre, orphans, e.rules.Window())

	sessions := make([]LogicalSession, len(pre))
	for i, ps := range pre {
		sessions[i] = Finalize(ps)
	}

	return &Result{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		LegCount:    len(raw),
		Sessions:    sessions,
		Orphans:     unlinked,
	}
}

// Package jobs maps decoded escrow events onto the job lifecycle.
//
// Chain-driven status graph:
//
//	NEW ──JobCreated──► PUSHED ──JobAccepted──► ACCEPTED ──JobCompleted──► COMPLETED
//
// DISPUTED and RESOLVED are set by other services and are never written here.
package jobs

import (
	"fmt"

	"escrowIndexer/internal/model"
)

// Rule describes the guarded transition an event performs.
type Rule struct {
	From   model.JobStatus
	To     model.JobStatus
	Column model.TxColumn
}

var eventRules = map[string]Rule{
	model.EventJobCreated:   {From: model.JobStatusNew, To: model.JobStatusPushed, Column: model.TxColumnCreate},
	model.EventJobAccepted:  {From: model.JobStatusPushed, To: model.JobStatusAccepted, Column: model.TxColumnAccept},
	model.EventJobCompleted: {From: model.JobStatusAccepted, To: model.JobStatusCompleted, Column: model.TxColumnComplete},
}

// lifecycle position of the statuses reachable through chain events.
var chainOrder = map[model.JobStatus]int{
	model.JobStatusNew:       0,
	model.JobStatusPushed:    1,
	model.JobStatusAccepted:  2,
	model.JobStatusCompleted: 3,
}

// RuleFor returns the transition rule for an event name.
func RuleFor(eventName string) (Rule, bool) {
	rule, ok := eventRules[eventName]
	return rule, ok
}

// ParseStatus converts a raw column value to a JobStatus.
func ParseStatus(s string) (model.JobStatus, error) {
	st := model.JobStatus(s)
	switch st {
	case model.JobStatusNew, model.JobStatusPushed, model.JobStatusAccepted,
		model.JobStatusCompleted, model.JobStatusDisputed, model.JobStatusResolved:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed reports whether the indexer may move a job from → to.
func IsTransitionAllowed(from, to model.JobStatus) bool {
	for _, rule := range eventRules {
		if rule.From == from && rule.To == to {
			return true
		}
	}
	return false
}

// Position classifies a job's current status relative to a rule.
type Position int

const (
	PositionReady   Position = iota // current status is the rule's predecessor
	PositionBehind                  // predecessor not reached yet
	PositionReached                 // target already reached or passed
	PositionOffChain                // DISPUTED, RESOLVED or unknown
)

// Locate returns where current sits relative to rule.
func Locate(current model.JobStatus, rule Rule) Position {
	if current == rule.From {
		return PositionReady
	}
	pos, ok := chainOrder[current]
	if !ok {
		return PositionOffChain
	}
	if pos >= chainOrder[rule.To] {
		return PositionReached
	}
	return PositionBehind
}

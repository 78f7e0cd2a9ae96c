// Package votes maintains the up/down voter sets of posts and comments.
package votes

import (
	"strings"

	"github.com/agora-forum/agora/internal/errs"
	"github.com/agora-forum/agora/internal/models"
)

// Direction is the side a voter picks.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection validates a client-supplied direction.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	default:
		return "", errs.Invalid("invalid vote direction %q, expected 'up' or 'down'", s)
	}
}

// Action is what a vote request did to the tally.
type Action string

const (
	ActionVote   Action = "vote"
	ActionUnvote Action = "unvote"
)

// Outcome is the result of applying one vote to a tally.
type Outcome struct {
	Action    Action
	Direction Direction
	// Switched is set when the voter moved from the opposite set.
	Switched bool
	Tally    models.VoteTally
}

// Apply toggles voter in the set for d. Voting the same way twice removes
// the vote; voting the other way moves the voter across. The input tally
// is not modified and the result's score is recomputed from the set sizes.
// Version is carried over unchanged.
func Apply(t models.VoteTally, voter int64, d Direction) Outcome {
	up := clone(t.Upvoters)
	down := clone(t.Downvoters)

	same, other := &up, &down
	if d == Down {
		same, other = &down, &up
	}

	out := Outcome{Direction: d}
	if contains(*same, voter) {
		*same = remove(*same, voter)
		out.Action = ActionUnvote
	} else {
		if contains(*other, voter) {
			*other = remove(*other, voter)
			out.Switched = true
		}
		*same = append(*same, voter)
		out.Action = ActionVote
	}

	out.Tally = models.VoteTally{
		Upvoters:   up,
		Downvoters: down,
		Score:      int64(len(up) - len(down)),
		Version:    t.Version,
	}
	return out
}

func clone(ids []int64) []int64 {
	out := make([]int64, len(ids), len(ids)+1)
	copy(out, ids)
	return out
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids []int64, id int64) []int64 {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

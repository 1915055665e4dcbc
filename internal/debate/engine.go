// Package debate runs a proposer/critic refinement loop over a generated
// artifact. The proposer drafts, the critic grades the draft on a severity
// scale, and the loop revises until the critic accepts or the round budget
// runs out. Exhaustion is not an error: the last draft is returned as a
// best-effort result and the caller decides whether that is fatal.
package debate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Severity is the critic's grade for one proposal, ordered from clean to
// unusable. None and Minor are accepting.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityBlocking Severity = "blocking"
)

// Accepting reports whether this severity ends the debate successfully.
func (s Severity) Accepting() bool {
	return s == SeverityNone || s == SeverityMinor
}

// ParseSeverity normalizes a model-produced severity string. Unknown values
// map to blocking so a malformed critic output never silently accepts.
func ParseSeverity(raw string) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityNone:
		return SeverityNone
	case SeverityMinor:
		return SeverityMinor
	case SeverityMajor:
		return SeverityMajor
	default:
		return SeverityBlocking
	}
}

// Verdict is the critic's output for one round.
type Verdict struct {
	Severity Severity `json:"severity"`
	Critique string   `json:"critique"`
}

// Request carries the running context into the proposer. Round 1 has no
// Prior and no Critiques; revision rounds carry the previous artifact and
// every critique issued so far, oldest first.
type Request[T any] struct {
	Round     int
	Prior     *T
	Critiques []string
}

type Proposer[T any] interface {
	Propose(ctx context.Context, req Request[T]) (T, error)
}

type Critic[T any] interface {
	Evaluate(ctx context.Context, artifact T) (Verdict, error)
}

type ProposeFunc[T any] func(ctx context.Context, req Request[T]) (T, error)

func (f ProposeFunc[T]) Propose(ctx context.Context, req Request[T]) (T, error) { return f(ctx, req) }

type EvaluateFunc[T any] func(ctx context.Context, artifact T) (Verdict, error)

func (f EvaluateFunc[T]) Evaluate(ctx context.Context, artifact T) (Verdict, error) {
	return f(ctx, artifact)
}

// Round is the verbatim record of one debate round, failed calls included.
type Round struct {
	Round    int             `json:"round"`
	Proposal json.RawMessage `json:"proposal,omitempty"`
	Severity Severity        `json:"severity"`
	Critique string          `json:"critique,omitempty"`
	Error    string          `json:"error,omitempty"`
	Accepted bool            `json:"accepted"`
}

// Result is the debate outcome. Artifact is the last produced proposal,
// accepted or not. Accepted false with a non-nil Artifact means the round
// budget ran out (best-effort result).
type Result[T any] struct {
	Artifact T
	Accepted bool
	Rounds   []Round
}

// ErrNoProposal means every proposer call failed and there is no artifact
// at all to return.
var ErrNoProposal = errors.New("debate: no proposal produced")

const DefaultMaxRounds = 3

// Run executes the debate loop. MaxRounds bounds both proposer and critic
// calls; there is no internal wall-clock timeout, so callers wanting bounded
// latency wrap ctx with a deadline. Cancellation is observed between rounds
// only; an in-flight proposer or critic call runs to completion.
func Run[T any](ctx context.Context, proposer Proposer[T], critic Critic[T], maxRounds int) (Result[T], error) {
	var res Result[T]
	if proposer == nil || critic == nil {
		return res, errors.New("debate: proposer and critic required")
	}
	if maxRounds < 1 {
		maxRounds = DefaultMaxRounds
	}

	var (
		last      *T
		critiques []string
	)

	for round := 1; round <= maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			res.Rounds = append(res.Rounds, Round{Round: round, Severity: SeverityBlocking, Error: err.Error()})
			if last != nil {
				res.Artifact = *last
			}
			return res, err
		}

		req := Request[T]{Round: round, Prior: last, Critiques: critiques}

		artifact, err := callOnceRetry(ctx, func() (T, error) { return proposer.Propose(ctx, req) })
		if err != nil {
			res.Rounds = append(res.Rounds, Round{
				Round:    round,
				Severity: SeverityBlocking,
				Error:    fmt.Sprintf("propose: %v", err),
			})
			continue
		}
		last = &artifact

		verdict, err := callOnceRetry(ctx, func() (Verdict, error) { return critic.Evaluate(ctx, artifact) })
		if err != nil {
			res.Rounds = append(res.Rounds, Round{
				Round:    round,
				Proposal: marshalProposal(artifact),
				Severity: SeverityBlocking,
				Error:    fmt.Sprintf("evaluate: %v", err),
			})
			continue
		}

		accepted := verdict.Severity.Accepting()
		res.Rounds = append(res.Rounds, Round{
			Round:    round,
			Proposal: marshalProposal(artifact),
			Severity: verdict.Severity,
			Critique: verdict.Critique,
			Accepted: accepted,
		})

		if accepted {
			res.Artifact = artifact
			res.Accepted = true
			return res, nil
		}
		if verdict.Critique != "" {
			critiques = append(critiques, verdict.Critique)
		}
	}

	if last == nil {
		return res, ErrNoProposal
	}
	res.Artifact = *last
	return res, nil
}

// callOnceRetry retries a failed call once before letting the failure count
// against the round budget. Context cancellation is never retried.
func callOnceRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	out, err := fn()
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return out, err
	}
	return fn()
}

func marshalProposal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Package election runs one candidacy round for a standby that has lost
// its upstream: claim candidacy, poll visible siblings for votes, and
// decide WON, LOST, or NOT_CANDIDATE.
package election

import (
	"context"
	"io"
	"math/rand/v2"
	"time"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/logging"
	"repmgrd/pkg/voting"
)

// Result is the outcome of one election round.
type Result int

const (
	ResultNotCandidate Result = iota
	ResultWon
	ResultLost
)

// String returns the string representation of a Result.
func (r Result) String() string {
	switch r {
	case ResultWon:
		return "WON"
	case ResultLost:
		return "LOST"
	default:
		return "NOT_CANDIDATE"
	}
}

// Connector opens a transient connection to a sibling for the duration
// of one election round and returns the voting Store bound to it. The
// caller closes the returned io.Closer when done with the sibling.
type Connector interface {
	Connect(ctx context.Context, node cluster.NodeInfo) (voting.Store, io.Closer, error)
}

// SiblingLister is the Node Directory capability an election round
// needs. *cluster.NodeDirectory satisfies this directly; tests
// substitute a fixed sibling list.
type SiblingLister interface {
	GetActiveSiblings(ctx context.Context, selfID, excludeUpstreamID int) ([]cluster.NodeInfo, error)
}

// Engine runs election rounds against the local node's own voting store
// and the Node Directory's view of active siblings.
type Engine struct {
	self      voting.Store
	directory SiblingLister
	connector Connector
	logger    logging.Logger

	// jitter returns the desync sleep before a round starts. Overridden
	// in tests to avoid a real 100-600ms wait.
	jitter func() time.Duration
}

// New returns an Engine. selfStore acts on the local node's own
// voting_state row.
func New(selfStore voting.Store, directory SiblingLister, connector Connector, logger logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Engine{
		self:      selfStore,
		directory: directory,
		connector: connector,
		logger:    logger.With(logging.Component("election")),
		jitter:    defaultJitter,
	}
}

func defaultJitter() time.Duration {
	return time.Duration(100+rand.IntN(501)) * time.Millisecond
}

// Run executes one election round for state.Self, excluding
// lostUpstreamID from the sibling set. It returns the refreshed sibling
// list (with IsVisible and LastWALReceiveLSN populated for every
// sibling reached) so a LOST caller can run PollBestCandidate without a
// second round-trip.
func (e *Engine) Run(ctx context.Context, state *cluster.LocalState, lostUpstreamID int) (Result, []cluster.NodeInfo, error) {
	select {
	case <-time.After(e.jitter()):
	case <-ctx.Done():
		return ResultNotCandidate, nil, ctx.Err()
	}

	status, err := e.self.GetVotingStatus(ctx)
	if err != nil {
		return ResultNotCandidate, nil, err
	}
	if status == voting.StatusVoteRequestReceived {
		e.logger.Debug("already owe a vote to another candidate, standing down",
			logging.NodeID(state.Self.NodeID))
		return ResultNotCandidate, nil, nil
	}

	term, err := e.self.SetVotingStatusInitiated(ctx)
	if err != nil {
		return ResultNotCandidate, nil, err
	}

	siblings, err := e.directory.GetActiveSiblings(ctx, state.Self.NodeID, lostUpstreamID)
	if err != nil {
		return ResultNotCandidate, nil, err
	}
	if len(siblings) == 0 {
		e.logger.Info("no active siblings, winning uncontested",
			logging.NodeID(state.Self.NodeID), logging.Term(term))
		return ResultWon, siblings, nil
	}

	visibleNodes := 1 // self
	for i := range siblings {
		store, closer, err := e.connector.Connect(ctx, siblings[i])
		if err != nil {
			siblings[i].IsVisible = false
			e.logger.Warn("sibling unreachable during election",
				logging.NodeID(siblings[i].NodeID), logging.Error(err))
			continue
		}

		accepted, announceErr := store.AnnounceCandidature(ctx, state.Self.NodeID, term)
		closer.Close()
		if announceErr != nil {
			siblings[i].IsVisible = false
			e.logger.Warn("announce candidature failed",
				logging.NodeID(siblings[i].NodeID), logging.Error(announceErr))
			continue
		}
		if !accepted {
			e.logger.Info("sibling already candidate, standing down",
				logging.NodeID(state.Self.NodeID), logging.Int("other_candidate", siblings[i].NodeID))
			if resetErr := e.self.ResetVotingStatus(ctx); resetErr != nil {
				e.logger.Warn("failed to reset voting status after standing down", logging.Error(resetErr))
			}
			return ResultNotCandidate, siblings, nil
		}

		siblings[i].IsVisible = true
		visibleNodes++
	}

	selfLSN := state.Self.LastWALReceiveLSN
	votesForMe := 0
	otherNodeIsAhead := false

	for i := range siblings {
		if !siblings[i].IsVisible {
			continue
		}
		store, closer, err := e.connector.Connect(ctx, siblings[i])
		if err != nil {
			siblings[i].IsVisible = false
			continue
		}
		granted, nodeLSN, voteErr := store.RequestVote(ctx, state.Self.NodeID, term, selfLSN)
		closer.Close()
		if voteErr != nil {
			siblings[i].IsVisible = false
			continue
		}
		siblings[i].LastWALReceiveLSN = nodeLSN
		if granted {
			votesForMe++
		}
		if nodeLSN > selfLSN {
			otherNodeIsAhead = true
		}
	}

	if !otherNodeIsAhead {
		votesForMe++
	}

	if votesForMe == visibleNodes {
		return ResultWon, siblings, nil
	}
	return ResultLost, siblings, nil
}

// PollBestCandidate ranks self and every visible sibling by highest
// last_wal_receive_lsn, then highest priority, then lowest node_id, and
// returns the winner. Every surviving node runs this over the same
// inputs and so deterministically picks the same winner.
func PollBestCandidate(self cluster.NodeInfo, siblings []cluster.NodeInfo) cluster.NodeInfo {
	best := self
	for _, s := range siblings {
		if !s.IsVisible {
			continue
		}
		if isBetterCandidate(s, best) {
			best = s
		}
	}
	return best
}

func isBetterCandidate(a, b cluster.NodeInfo) bool {
	if a.LastWALReceiveLSN != b.LastWALReceiveLSN {
		return a.LastWALReceiveLSN > b.LastWALReceiveLSN
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.NodeID < b.NodeID
}

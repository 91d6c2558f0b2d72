// Package voting implements the database-backed voting primitives an
// election round calls against a peer's connection: reading and
// claiming voting status, announcing candidacy, casting votes, and
// publishing the outcome of a round.
package voting

import "context"

// NodeVotingStatus is the scratch state an election round leaves behind
// on a node, read by every other node considering candidacy.
type NodeVotingStatus int

const (
	StatusUnknown NodeVotingStatus = iota
	StatusNoVote
	StatusVoteRequestReceived
	StatusVoteInitiated
)

// String returns the string representation of a NodeVotingStatus.
func (s NodeVotingStatus) String() string {
	switch s {
	case StatusNoVote:
		return "NO_VOTE"
	case StatusVoteRequestReceived:
		return "VOTE_REQUEST_RECEIVED"
	case StatusVoteInitiated:
		return "VOTE_INITIATED"
	default:
		return "UNKNOWN"
	}
}

// Store is the Voting Client's primitive set, each call scoped to a
// single connection to the node the call targets: the local node's own
// connection, or a transient connection to a sibling opened during a
// candidacy round or a follow notification.
type Store interface {
	// GetVotingStatus returns the node's current voting status.
	GetVotingStatus(ctx context.Context) (NodeVotingStatus, error)

	// SetVotingStatusInitiated atomically marks the node as a candidate
	// and returns the newly assigned electoral term.
	SetVotingStatusInitiated(ctx context.Context) (term uint64, err error)

	// AnnounceCandidature tells the node that candidateID is running for
	// term. It reports true if the node accepts candidateID as the
	// candidate it will vote for, false if the node has already declared
	// itself a candidate for this or a later term.
	AnnounceCandidature(ctx context.Context, candidateID int, term uint64) (accepted bool, err error)

	// RequestVote asks the node to vote for candidateID. The vote is
	// granted when the node's recorded candidate is candidateID; the
	// candidate's LSN is passed along but neither PGStore nor MemStore
	// uses it in that decision. It returns the vote (granted or not) and
	// the node's own last_wal_receive_lsn, which the caller uses to detect
	// whether any visible sibling is ahead of the candidate.
	RequestVote(ctx context.Context, candidateID int, term uint64, candidateLSN uint64) (granted bool, nodeLSN uint64, err error)

	// GetNewPrimary reports whether some peer has written a "new
	// primary is X" notification since the caller began waiting.
	GetNewPrimary(ctx context.Context) (nodeID int, ok bool, err error)

	// NotifyFollowPrimary persists a directive for the node to re-anchor
	// its replication on targetID.
	NotifyFollowPrimary(ctx context.Context, targetID int) error

	// ResetVotingStatus clears election scratch state for a new round.
	// Idempotent: calling it repeatedly between elections has the same
	// effect as calling it once.
	ResetVotingStatus(ctx context.Context) error
}

package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// conn is the subset of *pgx.Conn the store needs. Satisfied directly by
// *pgx.Conn; tests substitute a fake.
type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
}

// PGStore is the production Store, backed by a single-row voting_state
// table maintained on each node's local Postgres instance. Every call
// acts on the row belonging to the node conn is connected to — there is
// no node_id parameter for the self-scoped operations because the table
// itself is local to that node.
type PGStore struct {
	conn conn
}

// NewPGStore returns a voting Store backed by conn.
func NewPGStore(conn conn) *PGStore {
	return &PGStore{conn: conn}
}

func (s *PGStore) GetVotingStatus(ctx context.Context) (NodeVotingStatus, error) {
	var status string
	err := s.conn.QueryRow(ctx, `SELECT status FROM voting_state LIMIT 1`).Scan(&status)
	if err != nil {
		return StatusUnknown, fmt.Errorf("get voting status: %w", err)
	}
	return parseVotingStatus(status), nil
}

func (s *PGStore) SetVotingStatusInitiated(ctx context.Context) (uint64, error) {
	var term uint64
	query := `UPDATE voting_state SET status = 'VOTE_INITIATED', term = term + 1 RETURNING term`
	if err := s.conn.QueryRow(ctx, query).Scan(&term); err != nil {
		return 0, fmt.Errorf("set voting status initiated: %w", err)
	}
	return term, nil
}

// AnnounceCandidature runs against the peer being announced to. The
// peer accepts candidateID only if it has not already declared its own
// candidacy for an equal or later term.
func (s *PGStore) AnnounceCandidature(ctx context.Context, candidateID int, term uint64) (bool, error) {
	query := `
		UPDATE voting_state
		SET status = 'VOTE_REQUEST_RECEIVED', candidate_node_id = $1, candidate_term = $2
		WHERE status NOT IN ('VOTE_INITIATED', 'VOTE_REQUEST_RECEIVED') OR candidate_term < $2
		RETURNING candidate_node_id`
	var accepted int
	err := s.conn.QueryRow(ctx, query, candidateID, term).Scan(&accepted)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("announce candidature to node %d: %w", candidateID, err)
	}
	return accepted == candidateID, nil
}

// RequestVote grants a vote only if the peer had already accepted
// candidateID as its recorded candidate via AnnounceCandidature. It also
// reports the peer's own last WAL receive LSN, used by the caller to
// detect a sibling running ahead of the candidate.
func (s *PGStore) RequestVote(ctx context.Context, candidateID int, term uint64, candidateLSN uint64) (bool, uint64, error) {
	var recordedCandidate int
	var nodeLSN uint64
	query := `SELECT candidate_node_id, own_last_wal_receive_lsn FROM voting_state LIMIT 1`
	if err := s.conn.QueryRow(ctx, query).Scan(&recordedCandidate, &nodeLSN); err != nil {
		return false, 0, fmt.Errorf("request vote from node %d: %w", candidateID, err)
	}
	return recordedCandidate == candidateID, nodeLSN, nil
}

func (s *PGStore) GetNewPrimary(ctx context.Context) (int, bool, error) {
	var nodeID *int
	query := `SELECT new_primary_node_id FROM voting_state LIMIT 1`
	if err := s.conn.QueryRow(ctx, query).Scan(&nodeID); err != nil {
		return 0, false, fmt.Errorf("get new primary: %w", err)
	}
	if nodeID == nil {
		return 0, false, nil
	}
	return *nodeID, true, nil
}

func (s *PGStore) NotifyFollowPrimary(ctx context.Context, targetID int) error {
	_, err := s.conn.Exec(ctx, `UPDATE voting_state SET new_primary_node_id = $1`, targetID)
	if err != nil {
		return fmt.Errorf("notify follow primary %d: %w", targetID, err)
	}
	return nil
}

func (s *PGStore) ResetVotingStatus(ctx context.Context) error {
	query := `
		UPDATE voting_state
		SET status = 'NO_VOTE', candidate_node_id = NULL, candidate_term = NULL, new_primary_node_id = NULL`
	if _, err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("reset voting status: %w", err)
	}
	return nil
}

func parseVotingStatus(s string) NodeVotingStatus {
	switch s {
	case "NO_VOTE":
		return StatusNoVote
	case "VOTE_REQUEST_RECEIVED":
		return StatusVoteRequestReceived
	case "VOTE_INITIATED":
		return StatusVoteInitiated
	default:
		return StatusUnknown
	}
}

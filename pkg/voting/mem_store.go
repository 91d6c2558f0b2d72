package voting

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store, used by election tests to simulate a
// sibling's voting_state row without a database.
type MemStore struct {
	mu sync.Mutex

	Status          NodeVotingStatus
	Term            uint64
	CandidateNodeID int
	CandidateTerm   uint64
	NewPrimaryID    int
	HasNewPrimary   bool
	OwnLSN          uint64
}

// NewMemStore returns a MemStore starting in NO_VOTE.
func NewMemStore(ownLSN uint64) *MemStore {
	return &MemStore{Status: StatusNoVote, OwnLSN: ownLSN}
}

func (m *MemStore) GetVotingStatus(ctx context.Context) (NodeVotingStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Status, nil
}

func (m *MemStore) SetVotingStatusInitiated(ctx context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = StatusVoteInitiated
	m.Term++
	m.CandidateTerm = m.Term
	return m.Term, nil
}

func (m *MemStore) AnnounceCandidature(ctx context.Context, candidateID int, term uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if (m.Status == StatusVoteInitiated || m.Status == StatusVoteRequestReceived) && m.CandidateTerm >= term {
		return false, nil
	}
	m.Status = StatusVoteRequestReceived
	m.CandidateNodeID = candidateID
	m.CandidateTerm = term
	return true, nil
}

func (m *MemStore) RequestVote(ctx context.Context, candidateID int, term uint64, candidateLSN uint64) (bool, uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CandidateNodeID == candidateID, m.OwnLSN, nil
}

func (m *MemStore) GetNewPrimary(ctx context.Context) (int, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.NewPrimaryID, m.HasNewPrimary, nil
}

func (m *MemStore) NotifyFollowPrimary(ctx context.Context, targetID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NewPrimaryID = targetID
	m.HasNewPrimary = true
	return nil
}

func (m *MemStore) ResetVotingStatus(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Status = StatusNoVote
	m.CandidateNodeID = 0
	m.CandidateTerm = 0
	m.NewPrimaryID = 0
	m.HasNewPrimary = false
	return nil
}

package election

import (
	"context"
	"testing"
	"time"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/voting"
)

type fakeLister struct {
	nodes []cluster.NodeInfo
}

func (f *fakeLister) GetActiveSiblings(ctx context.Context, selfID, excludeUpstreamID int) ([]cluster.NodeInfo, error) {
	var out []cluster.NodeInfo
	for _, n := range f.nodes {
		if n.NodeID != selfID && n.NodeID != excludeUpstreamID {
			out = append(out, n)
		}
	}
	return out, nil
}

func newTestEngine(selfStore voting.Store, lister SiblingLister, connector Connector) *Engine {
	e := New(selfStore, lister, connector, nil)
	e.jitter = func() time.Duration { return 0 }
	return e
}

func TestRunWinsUncontestedWhenNoSiblings(t *testing.T) {
	self := voting.NewMemStore(100)
	lister := &fakeLister{}
	e := newTestEngine(self, lister, NewFakeConnector())

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100})
	result, _, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultWon {
		t.Fatalf("expected WON, got %v", result)
	}
}

func TestRunStandsDownWhenAlreadyOwesVote(t *testing.T) {
	self := voting.NewMemStore(100)
	self.Status = voting.StatusVoteRequestReceived
	e := newTestEngine(self, &fakeLister{}, NewFakeConnector())

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1})
	result, _, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNotCandidate {
		t.Fatalf("expected NOT_CANDIDATE, got %v", result)
	}
}

func TestRunStandsDownWhenSiblingAlreadyCandidate(t *testing.T) {
	self := voting.NewMemStore(100)
	sibling := voting.NewMemStore(90)
	sibling.Status = voting.StatusVoteInitiated
	sibling.CandidateNodeID = 2
	sibling.CandidateTerm = 999

	connector := NewFakeConnector()
	connector.Stores[2] = sibling

	lister := &fakeLister{nodes: []cluster.NodeInfo{{NodeID: 1}, {NodeID: 2}}}
	e := newTestEngine(self, lister, connector)

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100})
	result, _, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultNotCandidate {
		t.Fatalf("expected NOT_CANDIDATE, got %v", result)
	}
	status, _ := self.GetVotingStatus(context.Background())
	if status != voting.StatusNoVote {
		t.Fatalf("expected own voting status reset after standing down, got %v", status)
	}
}

func TestRunWinsWhenAllVisibleSiblingsGrantVote(t *testing.T) {
	self := voting.NewMemStore(100)

	s2 := voting.NewMemStore(50)
	s3 := voting.NewMemStore(50)

	connector := NewFakeConnector()
	connector.Stores[2] = s2
	connector.Stores[3] = s3

	lister := &fakeLister{nodes: []cluster.NodeInfo{{NodeID: 1}, {NodeID: 2}, {NodeID: 3}}}
	e := newTestEngine(self, lister, connector)

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100})
	result, siblings, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultWon {
		t.Fatalf("expected WON, got %v", result)
	}
	for _, s := range siblings {
		if !s.IsVisible {
			t.Fatalf("expected sibling %d to be visible", s.NodeID)
		}
	}
}

func TestRunWinsWhenUnreachableSiblingIsExcludedFromQuorum(t *testing.T) {
	self := voting.NewMemStore(100)

	s2 := voting.NewMemStore(50)
	// node 3 has no store registered: unreachable.

	connector := NewFakeConnector()
	connector.Stores[2] = s2

	lister := &fakeLister{nodes: []cluster.NodeInfo{{NodeID: 1}, {NodeID: 2}, {NodeID: 3}}}
	e := newTestEngine(self, lister, connector)

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100})
	result, _, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultWon {
		t.Fatalf("expected WON since only node 2 is visible and grants its vote, got %v", result)
	}
}

func TestRunLosesWhenAheadSiblingWithholdsSelfVote(t *testing.T) {
	self := voting.NewMemStore(100)

	ahead := voting.NewMemStore(200) // strictly ahead of self
	connector := NewFakeConnector()
	connector.Stores[2] = ahead

	lister := &fakeLister{nodes: []cluster.NodeInfo{{NodeID: 1}, {NodeID: 2}}}
	e := newTestEngine(self, lister, connector)

	state := cluster.NewLocalState(cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100})
	result, _, err := e.Run(context.Background(), state, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// node 2 grants its vote (it accepted the candidacy), but self
	// withholds its own vote because node 2 is ahead: votesForMe (1) !=
	// visibleNodes (2).
	if result != ResultLost {
		t.Fatalf("expected LOST, got %v", result)
	}
}

func TestPollBestCandidatePrefersHighestLSN(t *testing.T) {
	self := cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100, Priority: 1}
	siblings := []cluster.NodeInfo{
		{NodeID: 2, LastWALReceiveLSN: 200, Priority: 1, IsVisible: true},
		{NodeID: 3, LastWALReceiveLSN: 50, Priority: 100, IsVisible: true},
	}
	best := PollBestCandidate(self, siblings)
	if best.NodeID != 2 {
		t.Fatalf("expected node 2 (highest LSN) to win, got %d", best.NodeID)
	}
}

func TestPollBestCandidateFallsBackToPriorityThenNodeID(t *testing.T) {
	self := cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100, Priority: 5}
	siblings := []cluster.NodeInfo{
		{NodeID: 2, LastWALReceiveLSN: 100, Priority: 5, IsVisible: true},
		{NodeID: 3, LastWALReceiveLSN: 100, Priority: 10, IsVisible: true},
	}
	best := PollBestCandidate(self, siblings)
	if best.NodeID != 3 {
		t.Fatalf("expected node 3 (highest priority on tied LSN) to win, got %d", best.NodeID)
	}

	// All tied: lowest node_id wins.
	siblings[1].Priority = 5
	best = PollBestCandidate(self, siblings)
	if best.NodeID != 1 {
		t.Fatalf("expected self (lowest node_id on full tie) to win, got %d", best.NodeID)
	}
}

func TestPollBestCandidateIgnoresInvisibleSiblings(t *testing.T) {
	self := cluster.NodeInfo{NodeID: 1, LastWALReceiveLSN: 100}
	siblings := []cluster.NodeInfo{
		{NodeID: 2, LastWALReceiveLSN: 9999, IsVisible: false},
	}
	best := PollBestCandidate(self, siblings)
	if best.NodeID != 1 {
		t.Fatalf("expected self to win since the higher-LSN sibling is not visible, got %d", best.NodeID)
	}
}

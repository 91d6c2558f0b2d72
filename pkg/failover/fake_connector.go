package failover

import (
	"context"
	"fmt"

	"repmgrd/pkg/cluster"
)

// FakePeerConn is a scriptable PeerConn for orchestrator tests.
type FakePeerConn struct {
	IsPrimaryResult bool
	IsPrimaryErr    error
	NotifyErr       error
	Notified        []int
}

func (p *FakePeerConn) IsPrimary(ctx context.Context) (bool, error) {
	return p.IsPrimaryResult, p.IsPrimaryErr
}

func (p *FakePeerConn) NotifyFollowPrimary(ctx context.Context, targetID int) error {
	p.Notified = append(p.Notified, targetID)
	return p.NotifyErr
}

func (p *FakePeerConn) Close() error { return nil }

// FakeConnector resolves connections against a fixed map of peer conns,
// keyed by node ID. Node IDs absent from the map are unreachable.
type FakeConnector struct {
	Peers map[int]*FakePeerConn
}

func NewFakeConnector() *FakeConnector {
	return &FakeConnector{Peers: make(map[int]*FakePeerConn)}
}

func (c *FakeConnector) Connect(ctx context.Context, node cluster.NodeInfo) (PeerConn, error) {
	peer, ok := c.Peers[node.NodeID]
	if !ok {
		return nil, fmt.Errorf("node %d unreachable", node.NodeID)
	}
	return peer, nil
}

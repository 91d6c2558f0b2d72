package election

import (
	"context"
	"fmt"
	"io"

	"repmgrd/pkg/cluster"
	"repmgrd/pkg/voting"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// FakeConnector resolves sibling connections against a fixed map of
// in-memory voting stores, keyed by node ID. Node IDs absent from the
// map are treated as unreachable.
type FakeConnector struct {
	Stores map[int]*voting.MemStore
}

func NewFakeConnector() *FakeConnector {
	return &FakeConnector{Stores: make(map[int]*voting.MemStore)}
}

func (c *FakeConnector) Connect(ctx context.Context, node cluster.NodeInfo) (voting.Store, io.Closer, error) {
	store, ok := c.Stores[node.NodeID]
	if !ok {
		return nil, nil, fmt.Errorf("node %d unreachable", node.NodeID)
	}
	return store, nopCloser{}, nil
}

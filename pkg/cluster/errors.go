package cluster

import "errors"

// Node Directory errors
var (
	ErrNodeNotFound   = errors.New("node not found in nodes table")
	ErrSelfNotFound   = errors.New("local node has no record in nodes table")
	ErrNoUpstreamNode = errors.New("node has no upstream_node_id")
)

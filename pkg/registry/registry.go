package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/burrow/pkg/types"
)

// Registry enumerates the head nodes of the deployment. Implementations
// must return a stable order within one convergence run.
type Registry interface {
	GetHeadNodes(ctx context.Context) ([]types.PeerNode, error)
}

// Static is a Registry backed by a fixed list
type Static struct {
	nodes []types.PeerNode
}

// NewStatic validates hostnames and builds a static registry in the given order
func NewStatic(hostnames []string) (*Static, error) {
	seen := make(map[string]bool, len(hostnames))
	nodes := make([]types.PeerNode, 0, len(hostnames))
	for _, h := range hostnames {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("empty head node hostname")
		}
		if seen[h] {
			return nil, fmt.Errorf("duplicate head node hostname: %s", h)
		}
		seen[h] = true
		nodes = append(nodes, types.PeerNode{Hostname: h})
	}
	return &Static{nodes: nodes}, nil
}

// GetHeadNodes returns a copy of the configured head nodes
func (s *Static) GetHeadNodes(ctx context.Context) ([]types.PeerNode, error) {
	return append([]types.PeerNode(nil), s.nodes...), nil
}

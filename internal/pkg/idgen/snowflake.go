package idgen

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/snowflake"
)

// Generator hands out snowflake ids from a single node.
type Generator struct {
	node *snowflake.Node
}

// New creates a generator for the given node id (0-1023).
func New(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// Next returns a new id as a base36 string, short enough to type in a terminal.
func (g *Generator) Next() string {
	return g.node.Generate().Base36()
}

var (
	defaultGen  *Generator
	defaultOnce sync.Once
)

// Default returns the process-wide generator on node 1.
func Default() *Generator {
	defaultOnce.Do(func() {
		defaultGen, _ = New(1)
	})
	return defaultGen
}

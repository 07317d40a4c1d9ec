package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node    *snowflake.Node
	once    sync.Once
	initErr error
)

// Init initializes the Snowflake node with the given node ID. Only the first
// call (or the first New) takes effect.
func Init(nodeID int64) error {
	once.Do(func() {
		node, initErr = snowflake.NewNode(nodeID)
	})
	return initErr
}

// New generates a time-ordered relay correlation id. It falls back to node 0
// when Init was never called.
func New() int64 {
	if Init(0) != nil {
		return 0
	}
	return node.Generate().Int64()
}

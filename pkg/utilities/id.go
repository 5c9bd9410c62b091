package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

var (
	nodeOnce sync.Once
	node     *snowflake.Node
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeID generates a snowflake ID string using a node ID from
// the environment variable SNOWFLAKE_NODE (default 1). The node is created
// once per process so IDs from the same node never collide within a
// millisecond. If node setup fails it falls back to a KSUID string.
func NewSnowflakeID() string {
	nodeOnce.Do(func() {
		nodeID := int64(1)
		if v, err := strconv.ParseInt(os.Getenv("SNOWFLAKE_NODE"), 10, 64); err == nil {
			nodeID = v
		}
		node, _ = snowflake.NewNode(nodeID)
	})
	if node == nil {
		return NewKSUID()
	}
	return node.Generate().String()
}

package idpf

// EvalCache memoizes node states during evaluation. Implementations need not be
// safe for concurrent use; each evaluation session owns its cache.
type EvalCache interface {
	Get(prefix Input) (NodeState, bool)
	Insert(prefix Input, state NodeState)
}

// MapCache keeps every visited node.
type MapCache struct {
	nodes map[string]NodeState
}

// NewMapCache creates an empty cache.
func NewMapCache() *MapCache {
	return &MapCache{nodes: make(map[string]NodeState)}
}

func (c *MapCache) Get(prefix Input) (NodeState, bool) {
	state, ok := c.nodes[prefix.String()]
	return state, ok
}

func (c *MapCache) Insert(prefix Input, state NodeState) {
	c.nodes[prefix.String()] = state
}

// Len returns the number of cached nodes.
func (c *MapCache) Len() int {
	return len(c.nodes)
}

// NoCache disables memoization.
type NoCache struct{}

func (NoCache) Get(Input) (NodeState, bool) { return NodeState{}, false }

func (NoCache) Insert(Input, NodeState) {}

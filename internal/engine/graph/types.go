// Package graph implements the workflow graph model: typed nodes, typed
// edges, precomputed depth levels, and loop contexts. Graphs are immutable
// once built by Builder.
package graph

// NodeType is a tag understood by the executor registry. The builder does
// not check it against the constants below or against registered handlers;
// a node whose type has no registered handler fails when it is dispatched.
type NodeType string

const (
	NodeInput       NodeType = "input"
	NodeOutput      NodeType = "output"
	NodeTransform   NodeType = "transform"
	NodeConditional NodeType = "conditional"
	NodeLLM         NodeType = "llm"
	NodeHTTP        NodeType = "http"
	NodeCode        NodeType = "code"
	NodeLoop        NodeType = "loop"
	NodeLoopStart   NodeType = "loop-start"
	NodeLoopEnd     NodeType = "loop-end"
	NodeWait        NodeType = "wait"
	NodeIntegration NodeType = "integration"
)

// HandleType selects which outgoing edges are live given a node's output.
type HandleType string

const (
	HandleDefault      HandleType = "default"
	HandleTrue         HandleType = "true"
	HandleFalse        HandleType = "false"
	HandleLoopBody     HandleType = "loop-body"
	HandleLoopBack     HandleType = "loop-back"
	HandleLoopExit     HandleType = "loop-exit"
	HandleLoopComplete HandleType = "loop-complete"
)

// ErrorPolicy controls whether a handler failure cascades to dependents or
// is absorbed and treated as a completed node carrying an error payload.
// Kept per-node per DESIGN.md's resolution of the spec's Open Question.
type ErrorPolicy string

const (
	ErrorPolicyCascade  ErrorPolicy = "cascade"
	ErrorPolicyContinue ErrorPolicy = "continue"
)

// Node is immutable after the graph is built.
type Node struct {
	ID           string
	Type         NodeType
	Name         string
	Config       map[string]interface{}
	Depth        int
	Dependencies []string
	Dependents   []string
	LoopContext  *LoopContext // set for nodes inside a loop body
	ErrorPolicy  ErrorPolicy
}

// Edge connects two nodes through a named handle pair.
type Edge struct {
	ID          string
	Source      string
	Target      string
	SourceHandle string
	TargetHandle string
	HandleType  HandleType
}

// LoopContext describes one loop construct: a start sentinel, an end
// sentinel, and the set of nodes enclosed between them. The builder checks
// that both sentinels are in BodyNodes (or are the loop node) and that every
// cycle lies within a loop's nodes; it does not trace start-to-end paths.
type LoopContext struct {
	LoopNodeID        string
	StartSentinelID   string
	EndSentinelID     string
	BodyNodes         []string
	IterationVariable string
	MaxIterations     int
	IterateOver       string // optional: path into the execution view naming a collection to iterate
}

// BuiltWorkflow is the immutable, validated output of Builder.Build.
type BuiltWorkflow struct {
	Nodes             map[string]*Node
	Edges             map[string]*Edge
	ExecutionLevels   [][]string
	TriggerNodeID     string
	OutputNodeIDs     []string
	LoopContexts      map[string]*LoopContext
	MaxConcurrentNodes int

	// outEdges/inEdges index edges by endpoint for fast traversal.
	outEdges map[string][]*Edge
	inEdges  map[string][]*Edge
}

// OutEdges returns the edges leaving nodeID in deterministic (edge ID) order.
func (w *BuiltWorkflow) OutEdges(nodeID string) []*Edge {
	return w.outEdges[nodeID]
}

// InEdges returns the edges entering nodeID in deterministic (edge ID) order.
func (w *BuiltWorkflow) InEdges(nodeID string) []*Edge {
	return w.inEdges[nodeID]
}

package graph

import (
	"fmt"
	"sort"

	"github.com/lyzr/flowcore/common/errs"
)

// Builder compiles a raw Definition into an immutable BuiltWorkflow. It is
// the one place cycle detection, reachability, and depth computation live —
// downstream components (queue, scheduler) trust a BuiltWorkflow completely.
type Builder struct{}

// NewBuilder returns a Builder. Stateless; kept as a type for symmetry with
// the rest of the engine's constructor style and to leave room for future
// build-time options (e.g. strict-mode flags) without breaking callers.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build validates def and compiles it into a BuiltWorkflow, or returns an
// error wrapping errs.ErrInvalidGraph describing the first violation found.
func (b *Builder) Build(def *Definition) (*BuiltWorkflow, error) {
	nodes, err := buildNodes(def)
	if err != nil {
		return nil, err
	}

	loopContexts, err := buildLoopContexts(def, nodes)
	if err != nil {
		return nil, err
	}

	if err := wireEdges(def, nodes); err != nil {
		return nil, err
	}

	if err := checkCycles(nodes, loopContexts); err != nil {
		return nil, err
	}

	if err := checkEntryPoint(def, nodes); err != nil {
		return nil, err
	}

	if err := checkOutputsReachable(def, nodes); err != nil {
		return nil, err
	}

	assignDepths(def, nodes)

	w := &BuiltWorkflow{
		Nodes:              nodes,
		Edges:              make(map[string]*Edge, len(def.Edges)),
		TriggerNodeID:      def.EntryPoint,
		OutputNodeIDs:      append([]string(nil), def.OutputNodeIDs...),
		LoopContexts:       loopContexts,
		MaxConcurrentNodes: def.MaxConcurrentNodes,
		outEdges:           make(map[string][]*Edge),
		inEdges:            make(map[string][]*Edge),
	}
	if w.MaxConcurrentNodes <= 0 {
		w.MaxConcurrentNodes = 8
	}

	for _, ed := range def.Edges {
		e := &Edge{
			ID:           ed.ID,
			Source:       ed.Source,
			Target:       ed.Target,
			SourceHandle: ed.SourceHandle,
			TargetHandle: ed.TargetHandle,
			HandleType:   ed.HandleType,
		}
		if e.HandleType == "" {
			e.HandleType = HandleDefault
		}
		w.Edges[e.ID] = e
		w.outEdges[e.Source] = append(w.outEdges[e.Source], e)
		w.inEdges[e.Target] = append(w.inEdges[e.Target], e)
	}
	for _, list := range w.outEdges {
		sortEdgesByID(list)
	}
	for _, list := range w.inEdges {
		sortEdgesByID(list)
	}

	w.ExecutionLevels = buildExecutionLevels(nodes)

	return w, nil
}

func sortEdgesByID(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
}

func buildNodes(def *Definition) (map[string]*Node, error) {
	nodes := make(map[string]*Node, len(def.Nodes))
	for _, nd := range def.Nodes {
		if nd.ID == "" {
			return nil, fmt.Errorf("%w: node with empty id", errs.ErrInvalidGraph)
		}
		if _, exists := nodes[nd.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate node id %q", errs.ErrInvalidGraph, nd.ID)
		}
		errPolicy := nd.ErrorPolicy
		if errPolicy == "" {
			errPolicy = ErrorPolicyCascade
		}
		nodes[nd.ID] = &Node{
			ID:          nd.ID,
			Type:        nd.Type,
			Name:        nd.Name,
			Config:      nd.Config,
			ErrorPolicy: errPolicy,
		}
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: definition has no nodes", errs.ErrInvalidGraph)
	}
	if def.EntryPoint == "" {
		return nil, fmt.Errorf("%w: missing entry point", errs.ErrInvalidGraph)
	}
	if _, ok := nodes[def.EntryPoint]; !ok {
		return nil, fmt.Errorf("%w: entry point %q not found among nodes", errs.ErrInvalidGraph, def.EntryPoint)
	}
	for _, id := range def.OutputNodeIDs {
		if _, ok := nodes[id]; !ok {
			return nil, fmt.Errorf("%w: output node %q not found among nodes", errs.ErrInvalidGraph, id)
		}
	}
	return nodes, nil
}

func buildLoopContexts(def *Definition, nodes map[string]*Node) (map[string]*LoopContext, error) {
	contexts := make(map[string]*LoopContext)
	for _, nd := range def.Nodes {
		if nd.Type != NodeLoop {
			continue
		}
		if nd.LoopMaxIterations <= 0 {
			return nil, fmt.Errorf("%w: loop %q must declare max_iterations > 0", errs.ErrInvalidGraph, nd.ID)
		}
		body := append([]string(nil), nd.LoopBodyNodes...)
		bodySet := make(map[string]bool, len(body))
		for _, id := range body {
			if _, ok := nodes[id]; !ok {
				return nil, fmt.Errorf("%w: loop %q body references unknown node %q", errs.ErrInvalidGraph, nd.ID, id)
			}
			bodySet[id] = true
		}
		start, end := nd.LoopStartSentinelID, nd.LoopEndSentinelID
		if start == "" || end == "" {
			return nil, fmt.Errorf("%w: loop %q missing start/end sentinel", errs.ErrInvalidGraph, nd.ID)
		}
		if !bodySet[start] && start != nd.ID {
			return nil, fmt.Errorf("%w: loop %q start sentinel %q not in body", errs.ErrInvalidGraph, nd.ID, start)
		}
		if !bodySet[end] && end != nd.ID {
			return nil, fmt.Errorf("%w: loop %q end sentinel %q not in body", errs.ErrInvalidGraph, nd.ID, end)
		}

		lc := &LoopContext{
			LoopNodeID:        nd.ID,
			StartSentinelID:   start,
			EndSentinelID:     end,
			BodyNodes:         body,
			IterationVariable: nd.LoopIterationVariable,
			MaxIterations:     nd.LoopMaxIterations,
			IterateOver:       nd.LoopIterateOver,
		}
		if lc.IterationVariable == "" {
			lc.IterationVariable = nd.ID + "_iteration"
		}
		contexts[nd.ID] = lc

		for _, id := range body {
			nodes[id].LoopContext = lc
		}
		nodes[nd.ID].LoopContext = lc
	}
	return contexts, nil
}

func wireEdges(def *Definition, nodes map[string]*Node) error {
	for _, ed := range def.Edges {
		src, ok := nodes[ed.Source]
		if !ok {
			return fmt.Errorf("%w: edge %q references unknown source %q", errs.ErrInvalidGraph, ed.ID, ed.Source)
		}
		tgt, ok := nodes[ed.Target]
		if !ok {
			return fmt.Errorf("%w: edge %q references unknown target %q", errs.ErrInvalidGraph, ed.ID, ed.Target)
		}
		src.Dependents = append(src.Dependents, tgt.ID)
		tgt.Dependencies = append(tgt.Dependencies, src.ID)
	}
	return nil
}

// checkCycles requires every strongly connected component with more than
// one node (or a self-loop) to be wholly enclosed in some LoopContext's
// BodyNodes (plus its sentinels/loop node) — spec.md §4.B(c).
func checkCycles(nodes map[string]*Node, loopContexts map[string]*LoopContext) error {
	allowed := make(map[string]bool)
	for _, lc := range loopContexts {
		allowed[lc.LoopNodeID] = true
		for _, id := range lc.BodyNodes {
			allowed[id] = true
		}
	}

	sccs := tarjanSCC(nodes)
	for _, scc := range sccs {
		isCycle := len(scc) > 1
		if len(scc) == 1 {
			id := scc[0]
			for _, dep := range nodes[id].Dependents {
				if dep == id {
					isCycle = true
				}
			}
		}
		if !isCycle {
			continue
		}
		for _, id := range scc {
			if !allowed[id] {
				return fmt.Errorf("%w: cycle containing node %q is not enclosed in a loop context", errs.ErrInvalidGraph, id)
			}
		}
	}
	return nil
}

// tarjanSCC returns the strongly connected components of the dependents
// graph.
func tarjanSCC(nodes map[string]*Node) [][]string {
	index := 0
	indices := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	var result [][]string

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		deps := append([]string(nil), nodes[v].Dependents...)
		sort.Strings(deps)
		for _, w := range deps {
			if _, seen := indices[w]; !seen {
				strongConnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if indices[w] < lowlink[v] {
					lowlink[v] = indices[w]
				}
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			result = append(result, scc)
		}
	}

	for _, id := range ids {
		if _, seen := indices[id]; !seen {
			strongConnect(id)
		}
	}
	return result
}

// checkEntryPoint requires the entry point to have no incoming edges except
// loop-back control edges — spec.md §4.B(d).
func checkEntryPoint(def *Definition, nodes map[string]*Node) error {
	for _, ed := range def.Edges {
		if ed.Target == def.EntryPoint && ed.HandleType != HandleLoopBack {
			return fmt.Errorf("%w: entry point %q has non-loop-back incoming edge %q", errs.ErrInvalidGraph, def.EntryPoint, ed.ID)
		}
	}
	_ = nodes
	return nil
}

// checkOutputsReachable requires every output node to be reachable from the
// entry point — spec.md §4.B(e).
func checkOutputsReachable(def *Definition, nodes map[string]*Node) error {
	visited := map[string]bool{def.EntryPoint: true}
	queue := []string{def.EntryPoint}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range nodes[cur].Dependents {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}
	for _, id := range def.OutputNodeIDs {
		if !visited[id] {
			return fmt.Errorf("%w: output node %q is not reachable from entry point %q", errs.ErrInvalidGraph, id, def.EntryPoint)
		}
	}
	return nil
}

// assignDepths computes each node's depth as the longest-path distance from
// the trigger, using only non-loop-back edges so the computation stays
// well-defined over what is otherwise an acyclic graph. Depth is an upper
// bound for scheduling priority only (spec.md §3).
func assignDepths(def *Definition, nodes map[string]*Node) {
	forwardDeps := make(map[string][]string)
	indegree := make(map[string]int)
	for id := range nodes {
		indegree[id] = 0
	}
	for _, ed := range def.Edges {
		if ed.HandleType == HandleLoopBack {
			continue
		}
		forwardDeps[ed.Source] = append(forwardDeps[ed.Source], ed.Target)
		indegree[ed.Target]++
	}

	depth := make(map[string]int)
	var queue []string
	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if indegree[id] == 0 {
			depth[id] = 0
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := append([]string(nil), forwardDeps[cur]...)
		sort.Strings(next)
		for _, n := range next {
			if depth[cur]+1 > depth[n] {
				depth[n] = depth[cur] + 1
			}
			indegree[n]--
			if indegree[n] == 0 {
				queue = append(queue, n)
			}
		}
	}

	for id, d := range depth {
		nodes[id].Depth = d
	}
}

func buildExecutionLevels(nodes map[string]*Node) [][]string {
	byDepth := make(map[int][]string)
	maxDepth := 0
	for id, n := range nodes {
		byDepth[n.Depth] = append(byDepth[n.Depth], id)
		if n.Depth > maxDepth {
			maxDepth = n.Depth
		}
	}
	levels := make([][]string, maxDepth+1)
	for d := 0; d <= maxDepth; d++ {
		ids := byDepth[d]
		sort.Strings(ids)
		levels[d] = ids
	}
	return levels
}

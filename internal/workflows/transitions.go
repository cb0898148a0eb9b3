package workflows

// Node names a workflow step.
type Node string

const (
	NodeAnalyze      Node = "analyze"
	NodeRetrieve     Node = "retrieve"
	NodeWebSearch    Node = "web_search"
	NodeQualityCheck Node = "quality_check"
	NodeGenerate     Node = "generate"
	NodeTerminal     Node = "terminal"
)

func (n Node) String() string { return string(n) }

// Transitions maps each node to the function choosing its successor.
type Transitions map[Node]func(State) Node

// DefaultTransitions is the agentic routing graph:
//
//	analyze -> retrieve | web_search | generate
//	retrieve -> quality_check -> generate
//	web_search -> generate
//	generate -> terminal
func DefaultTransitions() Transitions {
	return Transitions{
		NodeAnalyze:      routeAfterAnalysis,
		NodeRetrieve:     always(NodeQualityCheck),
		NodeQualityCheck: always(NodeGenerate),
		NodeWebSearch:    always(NodeGenerate),
		NodeGenerate:     always(NodeTerminal),
	}
}

func routeAfterAnalysis(s State) Node {
	switch {
	case s.NeedsRetrieval:
		return NodeRetrieve
	case s.NeedsWebSearch:
		return NodeWebSearch
	default:
		return NodeGenerate
	}
}

func always(n Node) func(State) Node {
	return func(State) Node { return n }
}

package gateway

// TaskClass buckets a request by the kind of work it does, so the
// gateway can route it through a task-appropriate provider table.
type TaskClass string

const (
	TaskChat           TaskClass = "chat"
	TaskCodeGeneration TaskClass = "code-generation"
	TaskReasoning      TaskClass = "reasoning"
	TaskSummarization  TaskClass = "summarization"
)

// Priority is the budget policy a caller asks the gateway to optimize for.
type Priority string

const (
	PriorityQuality Priority = "quality"
	PriorityCost    Priority = "cost"
	PrioritySpeed   Priority = "speed"
)

// Route is one candidate provider+model for a (task, priority) pair,
// carrying the pricing used for pre-flight estimation.
type Route struct {
	Provider      string
	Model         string
	PriceInPer1k  float64
	PriceOutPer1k float64
}

// routingKey identifies one task/priority routing table entry.
type routingKey struct {
	Task     TaskClass
	Priority Priority
}

// RoutingTable maps (task, priority) to an ordered list of candidate
// routes, tried in order until one has an enabled provider.
type RoutingTable map[routingKey][]Route

// NewRoutingTable builds an empty table ready for AddRoute calls.
func NewRoutingTable() RoutingTable {
	return make(RoutingTable)
}

// AddRoute appends a candidate route for a task/priority pair. Earlier
// calls are tried first.
func (t RoutingTable) AddRoute(task TaskClass, priority Priority, route Route) {
	key := routingKey{Task: task, Priority: priority}
	t[key] = append(t[key], route)
}

// Candidates returns the ordered routes for a task/priority pair.
func (t RoutingTable) Candidates(task TaskClass, priority Priority) []Route {
	return t[routingKey{Task: task, Priority: priority}]
}

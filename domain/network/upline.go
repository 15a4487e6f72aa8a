package network

import "context"

// DefaultUplineDepth caps the number of ancestor hops.
const DefaultUplineDepth = 5

// AgentLookup is a point read against the live store.
type AgentLookup interface {
	GetAgent(ctx context.Context, id string) (*AgentRecord, error)
}

// StopReason explains why an upline walk ended.
type StopReason string

const (
	StopAtRoot       StopReason = "root"
	StopDepthLimit   StopReason = "depth_limit"
	StopLookupFailed StopReason = "lookup_failed"
	StopRevisit      StopReason = "revisit"
)

// Upline is the ordered ancestor chain of one agent: parent first.
// The agent itself is not part of Ancestors.
type Upline struct {
	AgentID    string     `json:"agentId"`
	Ancestors  []string   `json:"ancestors"`
	Truncated  bool       `json:"truncated"`
	StopReason StopReason `json:"stopReason"`
}

// VisibleTo returns the agent followed by its ancestors.
func (u Upline) VisibleTo() []string {
	out := make([]string, 0, len(u.Ancestors)+1)
	out = append(out, u.AgentID)
	return append(out, u.Ancestors...)
}

// UplineResolver walks parent pointers in the live store. It works on
// unvalidated data, so the walk is bounded by maxDepth and additionally ends
// when the next id is already in the chain. It never returns an error: any
// failed lookup truncates the chain at that point.
type UplineResolver struct {
	lookup   AgentLookup
	maxDepth int
}

// NewUplineResolver creates a resolver. A non-positive maxDepth falls back
// to DefaultUplineDepth.
func NewUplineResolver(lookup AgentLookup, maxDepth int) *UplineResolver {
	if maxDepth <= 0 {
		maxDepth = DefaultUplineDepth
	}
	return &UplineResolver{lookup: lookup, maxDepth: maxDepth}
}

// MaxDepth returns the hop cap.
func (r *UplineResolver) MaxDepth() int {
	return r.maxDepth
}

// Resolve loads the agent and walks its ancestors.
func (r *UplineResolver) Resolve(ctx context.Context, agentID string) Upline {
	upline := Upline{AgentID: agentID, Ancestors: []string{}}

	record, err := r.lookup.GetAgent(ctx, agentID)
	if err != nil || record == nil {
		upline.Truncated = true
		upline.StopReason = StopLookupFailed
		return upline
	}
	return r.walk(ctx, upline, record)
}

// ResolveFrom walks the ancestors of an already loaded record.
func (r *UplineResolver) ResolveFrom(ctx context.Context, record AgentRecord) Upline {
	return r.walk(ctx, Upline{AgentID: record.ID, Ancestors: []string{}}, &record)
}

func (r *UplineResolver) walk(ctx context.Context, upline Upline, current *AgentRecord) Upline {
	seen := map[string]bool{upline.AgentID: true}

	for {
		parentID := current.ParentKey()
		switch {
		case parentID == "":
			upline.StopReason = StopAtRoot
			return upline
		case len(upline.Ancestors) >= r.maxDepth:
			upline.Truncated = true
			upline.StopReason = StopDepthLimit
			return upline
		case seen[parentID]:
			upline.Truncated = true
			upline.StopReason = StopRevisit
			return upline
		}

		parent, err := r.lookup.GetAgent(ctx, parentID)
		if err != nil || parent == nil {
			upline.Truncated = true
			upline.StopReason = StopLookupFailed
			return upline
		}

		seen[parentID] = true
		upline.Ancestors = append(upline.Ancestors, parentID)
		current = parent
	}
}

package network

import "fmt"

// Aggregate computes TotalLeadCount and TotalDownlineCount bottom-up for
// every node reachable from roots. It returns the number of nodes visited.
// A node reached twice means a cycle is still present; Aggregate then stops
// with ErrUnresolvedCycle instead of looping.
func Aggregate(roots []*Node) (int, error) {
	type frame struct {
		node *Node
		next int
	}

	visited := make(map[string]bool)
	var stack []frame

	push := func(n *Node) error {
		if visited[n.ID] {
			return fmt.Errorf("node %s: %w", n.ID, ErrUnresolvedCycle)
		}
		visited[n.ID] = true
		stack = append(stack, frame{node: n})
		return nil
	}

	for _, root := range roots {
		if err := push(root); err != nil {
			return len(visited), err
		}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.node.Children) {
				child := top.node.Children[top.next]
				top.next++
				if err := push(child); err != nil {
					return len(visited), err
				}
				continue
			}

			n := top.node
			n.TotalLeadCount = n.DirectLeadCount
			n.TotalDownlineCount = 0
			for _, child := range n.Children {
				n.TotalLeadCount += child.TotalLeadCount
				n.TotalDownlineCount += 1 + child.TotalDownlineCount
			}
			stack = stack[:len(stack)-1]
		}
	}

	return len(visited), nil
}

package network

import "errors"

var (
	// ErrUnresolvedCycle is returned by Aggregate when a node is reachable twice.
	ErrUnresolvedCycle = errors.New("graph contains an unresolved cycle")
	// ErrAgentNotFound is returned when an agent id does not resolve.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrLeadNotFound is returned when a lead id does not resolve.
	ErrLeadNotFound = errors.New("lead not found")
	// ErrSelfParent rejects attaching an agent to itself.
	ErrSelfParent = errors.New("agent cannot be its own parent")
	// ErrParentInactive rejects attaching to an inactive or unknown parent.
	ErrParentInactive = errors.New("parent is not an active agent")
	// ErrAgentInactive rejects attributing leads to an inactive agent.
	ErrAgentInactive = errors.New("agent is not active")
	// ErrParentCannotRecruit rejects attaching to a parent without recruiting rights.
	ErrParentCannotRecruit = errors.New("parent is not allowed to recruit")
	// ErrLeadAlreadyAssigned rejects a conditional assignment of a lead that has an owner.
	ErrLeadAlreadyAssigned = errors.New("lead already assigned")
	// ErrWouldCreateCycle rejects a reparent that makes an agent its own ancestor.
	ErrWouldCreateCycle = errors.New("reparent would create a cycle")
)

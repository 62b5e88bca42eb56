// Package models defines the core domain models for graph-based workflow orchestration.
package models

import "time"

// NodeType identifies the behavior of a definition node. The set is closed:
// the registry refuses to create nodes with unknown types.
type NodeType string

const (
	// Core tier.
	NodeTypeData     NodeType = "data"
	NodeTypeJudgment NodeType = "judgment"
	NodeTypeCode     NodeType = "code"
	NodeTypeSwitch   NodeType = "switch"
	NodeTypeAction   NodeType = "action"

	// Extended tier.
	NodeTypeBI       NodeType = "bi"
	NodeTypeMCP      NodeType = "mcp"
	NodeTypeTrigger  NodeType = "trigger"
	NodeTypeWait     NodeType = "wait"
	NodeTypeApproval NodeType = "approval"

	// Advanced tier.
	NodeTypeParallel     NodeType = "parallel"
	NodeTypeCompensation NodeType = "compensation"
	NodeTypeDeploy       NodeType = "deploy"
	NodeTypeRollback     NodeType = "rollback"
	NodeTypeSimulate     NodeType = "simulate"
	NodeTypeLoop         NodeType = "loop"
)

// DefinitionStatus represents the lifecycle state of a workflow definition.
type DefinitionStatus string

const (
	DefinitionStatusDraft     DefinitionStatus = "draft"
	DefinitionStatusPublished DefinitionStatus = "published"
)

// WorkflowDefinition is a versioned declarative graph of nodes and edges.
// Definitions are authored externally and immutable once published; the
// orchestrator only reads them.
type WorkflowDefinition struct {
	ID          string            `json:"id"           validate:"required"`
	Version     int               `json:"version"      validate:"min=1"`
	Name        string            `json:"name"         validate:"required,min=3"`
	Description string            `json:"description"`
	Status      DefinitionStatus  `json:"status"       validate:"required"`
	Nodes       []*DefinitionNode `json:"nodes"        validate:"required,min=1,dive"`
	Edges       []*Edge           `json:"edges"        validate:"dive"`
	TriggerConf map[string]any    `json:"trigger_conf,omitempty"`
	Variables   map[string]any    `json:"variables,omitempty"`
	Owner       string            `json:"owner"`
	CreatedAt   time.Time         `json:"created_at"`
	PublishedAt *time.Time        `json:"published_at,omitempty"`
}

// DefinitionNode is one node instance in a definition graph.
type DefinitionNode struct {
	ID      string         `json:"id"      validate:"required"`
	Type    NodeType       `json:"type"    validate:"required"`
	Name    string         `json:"name"    validate:"required,min=1"`
	Config  map[string]any `json:"config"`
	Enabled bool           `json:"enabled"`
}

// Edge connects two nodes. Port labels the branch on the source side: a
// switch case, a parallel branch name, or "approved"/"rejected" on an
// approval node. An empty port is the default path.
type Edge struct {
	ID   string `json:"id"`
	From string `json:"from" validate:"required"`
	To   string `json:"to"   validate:"required"`
	Port string `json:"port,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (d *WorkflowDefinition) NodeByID(id string) *DefinitionNode {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n
		}
	}

	return nil
}

// EntryNodes returns nodes with no inbound edges, in declaration order.
func (d *WorkflowDefinition) EntryNodes() []*DefinitionNode {
	inbound := make(map[string]bool, len(d.Nodes))
	for _, e := range d.Edges {
		inbound[e.To] = true
	}

	entries := make([]*DefinitionNode, 0, 1)

	for _, n := range d.Nodes {
		if !inbound[n.ID] {
			entries = append(entries, n)
		}
	}

	return entries
}

// Successors returns the outbound edges of a node whose port matches the
// given port, falling back to unlabeled edges when no labeled edge matches.
func (d *WorkflowDefinition) Successors(nodeID, port string) []*Edge {
	var matched, unlabeled []*Edge

	for _, e := range d.Edges {
		if e.From != nodeID {
			continue
		}

		switch {
		case e.Port == "":
			unlabeled = append(unlabeled, e)
		case e.Port == port:
			matched = append(matched, e)
		}
	}

	if len(matched) == 0 {
		return unlabeled
	}

	return matched
}

// Predecessors returns the ids of nodes with an edge into nodeID.
func (d *WorkflowDefinition) Predecessors(nodeID string) []string {
	var preds []string

	for _, e := range d.Edges {
		if e.To == nodeID {
			preds = append(preds, e.From)
		}
	}

	return preds
}

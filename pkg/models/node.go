package models

import (
	"encoding/json"
	"errors"
	"fmt"
)

// NodeType is the closed set of node variants a workflow graph may contain.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "trigger"
	NodeTypeCondition NodeType = "condition"
	NodeTypeDelay     NodeType = "delay"
	NodeTypeAction    NodeType = "action"
	NodeTypeBranch    NodeType = "branch"
)

// KnownNodeTypes lists every node type the engine can execute.
var KnownNodeTypes = []NodeType{
	NodeTypeTrigger,
	NodeTypeCondition,
	NodeTypeDelay,
	NodeTypeAction,
	NodeTypeBranch,
}

// Node is a typed unit of graph logic. Data carries the variant-specific
// payload and stays schema-flexible in storage; the typed accessors decode
// it at the language boundary.
type Node struct {
	ID        string         `json:"id"   validate:"required"`
	Type      NodeType       `json:"type" validate:"required"`
	Name      string         `json:"name"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
	Data      map[string]any `json:"data"`
}

// ConditionData is the payload of a condition node.
type ConditionData struct {
	Conditions []Condition `json:"conditions"`
	Logic      string      `json:"logic"` // "and" (default) or "or"
}

// DelayData is the payload of a delay node.
type DelayData struct {
	Duration float64 `json:"duration"`
	Unit     string  `json:"unit"` // seconds, minutes, hours, days
}

// ActionData is the payload of an action node.
type ActionData struct {
	ActionType string         `json:"action_type"`
	Config     map[string]any `json:"config"`
	Critical   bool           `json:"critical"` // a failed critical action fails the execution
}

// BranchData is the payload of a branch node.
type BranchData struct {
	Branches []Branch `json:"branches"`
}

// Branch is one named sub-branch of a branch node.
type Branch struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Conditions []Condition `json:"conditions"`
	Logic      string      `json:"logic"`
	IsDefault  bool        `json:"is_default"`
}

var (
	ErrWrongNodeType = errors.New("node data requested for wrong node type")
	ErrInvalidBranch = errors.New("branch node must have at least two branches")
)

func decodeNodeData(data map[string]any, out any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode node data: %w", err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode node data: %w", err)
	}

	return nil
}

// ConditionData decodes the payload of a condition node.
func (n *Node) ConditionData() (*ConditionData, error) {
	if n.Type != NodeTypeCondition {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongNodeType, n.ID, n.Type)
	}

	var data ConditionData
	if err := decodeNodeData(n.Data, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// DelayData decodes the payload of a delay node.
func (n *Node) DelayData() (*DelayData, error) {
	if n.Type != NodeTypeDelay {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongNodeType, n.ID, n.Type)
	}

	var data DelayData
	if err := decodeNodeData(n.Data, &data); err != nil {
		return nil, err
	}

	return &data, nil
}

// ActionData decodes the payload of an action node.
func (n *Node) ActionData() (*ActionData, error) {
	if n.Type != NodeTypeAction {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongNodeType, n.ID, n.Type)
	}

	var data ActionData
	if err := decodeNodeData(n.Data, &data); err != nil {
		return nil, err
	}

	if data.Config == nil {
		data.Config = make(map[string]any)
	}

	return &data, nil
}

// BranchData decodes and validates the payload of a branch node. A branch
// node owns two or more named branches with at most one marked default.
func (n *Node) BranchData() (*BranchData, error) {
	if n.Type != NodeTypeBranch {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongNodeType, n.ID, n.Type)
	}

	var data BranchData
	if err := decodeNodeData(n.Data, &data); err != nil {
		return nil, err
	}

	if len(data.Branches) < 2 {
		return nil, fmt.Errorf("%w: node %s has %d", ErrInvalidBranch, n.ID, len(data.Branches))
	}

	defaults := 0
	for _, branch := range data.Branches {
		if branch.IsDefault {
			defaults++
		}
	}

	if defaults > 1 {
		return nil, fmt.Errorf("node %s has %d default branches, at most one allowed", n.ID, defaults)
	}

	return &data, nil
}

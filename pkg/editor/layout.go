package editor

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/pulsehq/pulse-workflows/pkg/models"
)

// Canvas spacing for scaffolded children. Matches the grid the frontend
// lays new nodes on.
const (
	childSpacingX = 280
	childSpacingY = 160
)

// BranchScaffold builds the placeholder children created when a branch
// node lands on the canvas: one empty action node per branch, fanned out
// left to right under the parent, each connected by an edge whose
// sourceHandle names its branch. Positions are a pure function of the
// parent position and branch order, so collaborating editors produce the
// same layout.
func BranchScaffold(parent *models.Node) ([]*models.Node, []*models.Edge, error) {
	data, err := parent.BranchData()
	if err != nil {
		return nil, nil, err
	}

	count := len(data.Branches)
	nodes := make([]*models.Node, 0, count)
	edges := make([]*models.Edge, 0, count)

	// Center the fan under the parent.
	startX := parent.PositionX - (count-1)*childSpacingX/2

	for i, branch := range data.Branches {
		child := &models.Node{
			ID:        uuid.New().String(),
			Type:      models.NodeTypeAction,
			Name:      branch.Name,
			PositionX: startX + i*childSpacingX,
			PositionY: parent.PositionY + childSpacingY,
			Data:      map[string]any{},
		}

		edge := &models.Edge{
			ID:           fmt.Sprintf("%s-%s", parent.ID, branch.ID),
			Source:       parent.ID,
			Target:       child.ID,
			SourceHandle: branch.ID,
		}

		nodes = append(nodes, child)
		edges = append(edges, edge)
	}

	return nodes, edges, nil
}

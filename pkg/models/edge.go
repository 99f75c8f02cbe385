package models

// Edge is a directed connection between two nodes. SourceHandle names the
// branch of a branch/condition source node the edge continues from; an
// empty handle means the node's single default outgoing path.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source" validate:"required"`
	Target       string `json:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

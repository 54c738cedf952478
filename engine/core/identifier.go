package core

import (
	"github.com/google/uuid"
)

// NodeID identifies a scene-graph node. The zero value is the null node.
type NodeID uuid.UUID

var NullNodeID NodeID

func NewNodeID() NodeID {
	return NodeID(uuid.New())
}

func (id NodeID) IsNull() bool {
	return id == NullNodeID
}

func (id NodeID) String() string {
	return uuid.UUID(id).String()
}

// ParseNodeID accepts the canonical textual uuid form.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NullNodeID, err
	}
	return NodeID(u), nil
}

// Package models defines the core domain types: nodes, the forest, blob
// keys, archives, and the structured error model.
package models

import (
	"time"
)

// NodeKind distinguishes containers from document-holding leaves.
type NodeKind string

const (
	// KindContainer can hold child nodes and no payload.
	KindContainer NodeKind = "container"
	// KindLeaf holds at most one payload and never has children.
	KindLeaf NodeKind = "leaf"
)

// DefaultDescription is used when a node is created without one.
const DefaultDescription = "No description"

// Node is a single tree element, either a Container or a Leaf.
//
// The Expanded flag is UI state but is persisted with the node so the tree
// reopens the way it was left.
type Node struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        NodeKind  `json:"kind"`
	Expanded    bool      `json:"expanded,omitempty"`
	Children    []*Node   `json:"children,omitempty"`
	Created     time.Time `json:"created"`
	Uploaded    time.Time `json:"uploaded,omitzero"`
	Modified    time.Time `json:"modified,omitzero"`
}

// Clone returns a deep copy of the node and all its descendants.
func (n *Node) Clone() *Node {
	c := *n
	if n.Children != nil {
		c.Children = make([]*Node, len(n.Children))
		for i, child := range n.Children {
			c.Children[i] = child.Clone()
		}
	}
	return &c
}

// Validate checks structural invariants of the node and its subtree.
func (n *Node) Validate() error {
	if n.ID.IsZero() {
		return BadRequest("node id is required")
	}
	if n.Name == "" {
		return BadRequest("node name is required")
	}
	switch n.Kind {
	case KindContainer:
	case KindLeaf:
		if len(n.Children) > 0 {
			return BadRequest("leaf node cannot have children")
		}
	default:
		return BadRequest("unknown node kind: " + string(n.Kind))
	}
	for _, child := range n.Children {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of nodes in the subtree, counting the node itself.
func (n *Node) Size() int {
	total := 1
	for _, child := range n.Children {
		total += child.Size()
	}
	return total
}

// Archive is the portable export bundle: a forest snapshot plus every
// referenced payload, self-contained in one JSON document.
//
// Blob values are base64; importers also accept raw strings and the original
// field names "topics" and "pdfs" (see UnmarshalJSON in the archive service).
type Archive struct {
	Version   string            `json:"version"`
	Timestamp time.Time         `json:"timestamp"`
	Forest    []*Node           `json:"forest"`
	Blobs     map[string]string `json:"blobs,omitempty"`
}

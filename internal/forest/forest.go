// Package forest implements the in-memory tree of topics and documents.
//
// A Forest owns the ordered root nodes plus the current leaf selection and
// guards them with one RWMutex. It holds no persistence logic: callers
// snapshot the forest and persist it after every mutation.
package forest

import (
	"strings"
	"sync"
	"time"

	"github.com/docforest/docforest/internal/models"
)

// Forest is the full ordered collection of root-level nodes.
type Forest struct {
	mu       sync.RWMutex
	roots    []*models.Node
	selected models.ID
}

// New creates a Forest owning the given roots.
func New(roots []*models.Node) *Forest {
	return &Forest{roots: roots}
}

// Snapshot returns a deep copy of all roots, safe to serialize or walk
// without holding the forest lock.
func (f *Forest) Snapshot() []*models.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return cloneNodes(f.roots)
}

// ReplaceAll swaps in a new set of roots wholesale and clears the selection.
// Used by archive import; the previous forest is discarded entirely.
func (f *Forest) ReplaceAll(roots []*models.Node) error {
	seen := make(map[models.ID]bool)
	for _, n := range roots {
		if err := n.Validate(); err != nil {
			return err
		}
		if err := checkUniqueIDs(n, seen); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roots = cloneNodes(roots)
	f.selected = 0
	return nil
}

// Count returns the total number of nodes in the forest.
func (f *Forest) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	total := 0
	for _, n := range f.roots {
		total += n.Size()
	}
	return total
}

// FindByID returns a copy of the first node matching id in pre-order, or nil.
func (f *Forest) FindByID(id models.ID) *models.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n := findIn(f.roots, id); n != nil {
		return n.Clone()
	}
	return nil
}

// FindParentOf returns a copy of the direct container holding id, or nil for
// root-level and unknown ids.
func (f *Forest) FindParentOf(id models.ID) *models.Node {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if p := findParentIn(f.roots, id); p != nil {
		return p.Clone()
	}
	return nil
}

// InsertChild adds a node under parentID, or at root level when parentID is
// zero. Root-level names are upper-cased; an empty description gets the
// default placeholder. Fails with INVALID_PARENT when the parent is a leaf
// or does not resolve, and with CONFLICT on a duplicate id.
func (f *Forest) InsertChild(parentID models.ID, n *models.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	node := n.Clone()
	if node.Description == "" {
		node.Description = models.DefaultDescription
	}
	if parentID.IsZero() {
		node.Name = strings.ToUpper(node.Name)
	}
	if err := node.Validate(); err != nil {
		return err
	}
	if findIn(f.roots, node.ID) != nil {
		return models.Conflict("node id " + node.ID.String() + " already exists")
	}

	if parentID.IsZero() {
		f.roots = append(f.roots, node)
		return nil
	}
	parent := findIn(f.roots, parentID)
	if parent == nil {
		return models.InvalidParent("parent " + parentID.String() + " does not resolve")
	}
	if parent.Kind == models.KindLeaf {
		return models.InvalidParent("cannot add children to a leaf node")
	}
	parent.Children = append(parent.Children, node)
	return nil
}

// Remove deletes the first node matching id anywhere in the forest and
// returns the size of the removed subtree. The node's blob entries are not
// touched; they are orphaned deliberately.
func (f *Forest) Remove(id models.ID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed := removeIn(&f.roots, id)
	if removed == nil {
		return 0, models.NotFound("node " + id.String())
	}
	// Clear the selection if it pointed inside the removed subtree.
	if !f.selected.IsZero() && findIn([]*models.Node{removed}, f.selected) != nil {
		f.selected = 0
	}
	return removed.Size(), nil
}

// ToggleExpanded flips the expanded flag. Errors when the node has no
// children, since there is nothing to expand.
func (f *Forest) ToggleExpanded(id models.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := findIn(f.roots, id)
	if n == nil {
		return models.NotFound("node " + id.String())
	}
	if len(n.Children) == 0 {
		return models.BadRequest("node has no children to expand")
	}
	n.Expanded = !n.Expanded
	return nil
}

// Rename updates the node's name and modification time.
func (f *Forest) Rename(id models.ID, name string) error {
	if name == "" {
		return models.BadRequest("name cannot be empty")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n := findIn(f.roots, id)
	if n == nil {
		return models.NotFound("node " + id.String())
	}
	if findParentIn(f.roots, id) == nil {
		// Root-level rename keeps the topic-name casing rule.
		name = strings.ToUpper(name)
	}
	n.Name = name
	n.Modified = time.Now()
	return nil
}

// AttachPayload stamps upload and modification times on a leaf after its
// payload bytes were stored.
func (f *Forest) AttachPayload(id models.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := findIn(f.roots, id)
	if n == nil {
		return models.NotFound("node " + id.String())
	}
	if n.Kind != models.KindLeaf {
		return models.BadRequest("only leaf nodes hold payloads")
	}
	now := time.Now()
	n.Uploaded = now
	n.Modified = now
	return nil
}

// Select sets the current leaf selection. Only leaves are selectable;
// a zero id clears the selection.
func (f *Forest) Select(id models.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id.IsZero() {
		f.selected = 0
		return nil
	}
	n := findIn(f.roots, id)
	if n == nil {
		return models.NotFound("node " + id.String())
	}
	if n.Kind != models.KindLeaf {
		return models.BadRequest("only leaf nodes can be selected")
	}
	f.selected = id
	return nil
}

// Selected returns the currently selected leaf id, zero when none.
func (f *Forest) Selected() models.ID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.selected
}

func cloneNodes(nodes []*models.Node) []*models.Node {
	out := make([]*models.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
	}
	return out
}

// findIn is a depth-first pre-order search. Ids are unique tree-wide, so the
// first match is the only match; shallow nodes are just found faster.
func findIn(nodes []*models.Node, id models.ID) *models.Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
		if found := findIn(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

func findParentIn(nodes []*models.Node, id models.ID) *models.Node {
	for _, n := range nodes {
		for _, child := range n.Children {
			if child.ID == id {
				return n
			}
		}
		if p := findParentIn(n.Children, id); p != nil {
			return p
		}
	}
	return nil
}

// removeIn splices out the first node matching id and returns it.
func removeIn(nodes *[]*models.Node, id models.ID) *models.Node {
	for i, n := range *nodes {
		if n.ID == id {
			*nodes = append((*nodes)[:i], (*nodes)[i+1:]...)
			return n
		}
		if removed := removeIn(&n.Children, id); removed != nil {
			return removed
		}
	}
	return nil
}

func checkUniqueIDs(n *models.Node, seen map[models.ID]bool) error {
	if seen[n.ID] {
		return models.Conflict("duplicate node id " + n.ID.String())
	}
	seen[n.ID] = true
	for _, child := range n.Children {
		if err := checkUniqueIDs(child, seen); err != nil {
			return err
		}
	}
	return nil
}

// WalkNodes visits nodes depth-first pre-order, stopping when fn returns false.
func WalkNodes(nodes []*models.Node, fn func(*models.Node) bool) bool {
	for _, n := range nodes {
		if !fn(n) {
			return false
		}
		if !WalkNodes(n.Children, fn) {
			return false
		}
	}
	return true
}

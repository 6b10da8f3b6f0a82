// Package scenetree assembles a flat stream of blocks into the Group tree
// a page's scene is structured as: nested containers (Groups) holding
// ordered CRDT sequences of nested Groups or leaf items (strokes,
// highlighted-text ranges).
package scenetree

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

// RootID is the node id every page's top-level group is created with.
var RootID = datastream.CrdtId{Part1: 0, Part2: 1}

var (
	// ErrDuplicateNode marks an attempt to add a node id already in the tree.
	ErrDuplicateNode = errors.New("rmscene: node already in tree")
	// ErrUnknownParent marks a reference to a parent or child node id not
	// yet present in the tree.
	ErrUnknownParent = errors.New("rmscene: node id not known")
)

// ChildKind discriminates the payload carried by a Group's children
// sequence.
type ChildKind int

const (
	ChildGroup ChildKind = iota
	ChildLine
	ChildGlyph
)

// Child is one entry of a Group's CRDT children sequence: a reference to
// a nested Group, or a leaf scene item. Exactly one of Group/Line/Glyph is
// set, matching Kind.
type Child struct {
	Kind  ChildKind
	Group *Group
	Line  *blocks.Line
	Glyph *blocks.GlyphRange
}

// Group is one node of the scene tree: a container with last-writer-wins
// metadata and an ordered CRDT sequence of children.
type Group struct {
	NodeID   datastream.CrdtId
	Children *crdt.Sequence[Child]

	Label   datastream.LwwValue[string]
	Visible datastream.LwwValue[bool]

	AnchorID        *datastream.LwwValue[datastream.CrdtId]
	AnchorType      *datastream.LwwValue[uint8]
	AnchorThreshold *datastream.LwwValue[float32]
	AnchorOriginX   *datastream.LwwValue[float32]
}

func newGroup(id datastream.CrdtId) *Group {
	return &Group{
		NodeID:   id,
		Children: crdt.NewSequence[Child](),
		Visible:  datastream.LwwValue[bool]{Value: true},
	}
}

// SceneTree is the node-id -> Group map assembled from a block stream,
// plus the page's optional root text.
type SceneTree struct {
	Root     *Group
	RootText *blocks.RootTextBlock
	Logger   logrus.FieldLogger

	nodes map[datastream.CrdtId]*Group
}

// New returns a tree containing only the fixed root Group.
func New() *SceneTree {
	root := newGroup(RootID)
	return &SceneTree{
		Root:  root,
		nodes: map[datastream.CrdtId]*Group{RootID: root},
	}
}

func (t *SceneTree) logger() logrus.FieldLogger {
	if t.Logger == nil {
		return logrus.StandardLogger()
	}
	return t.Logger
}

// Node looks up a Group by id.
func (t *SceneTree) Node(id datastream.CrdtId) (*Group, bool) {
	g, ok := t.nodes[id]
	return g, ok
}

// AddNode inserts a fresh Group under an existing parent. Duplicate node
// ids and unknown parents both fail; the new Group is not yet attached to
// the parent's children sequence (that happens separately, when a
// SceneGroupItem block references it — see Build).
func (t *SceneTree) AddNode(nodeID, parentID datastream.CrdtId) (*Group, error) {
	if _, exists := t.nodes[nodeID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, nodeID)
	}
	if _, ok := t.nodes[parentID]; !ok {
		return nil, fmt.Errorf("%w: parent %s", ErrUnknownParent, parentID)
	}
	g := newGroup(nodeID)
	t.nodes[nodeID] = g
	return g, nil
}

// AddItem appends a child item to parentID's CRDT children sequence.
// Unknown parent ids fail.
func (t *SceneTree) AddItem(item crdt.Item[Child], parentID datastream.CrdtId) error {
	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrUnknownParent, parentID)
	}
	parent.Children.Add(item)
	return nil
}

// Build consumes a decoded block stream and populates the tree: SceneTree
// blocks create Group placeholders, TreeNode blocks enrich an existing
// Group's metadata, SceneGroupItem/SceneLineItem/SceneGlyphItem blocks
// attach children to their parent's sequence, and RootText blocks set the
// tree's root text (replacing an earlier one with a logged warning).
// Blocks of other kinds, and UnreadableBlock entries, are ignored.
func (t *SceneTree) Build(blockList []blocks.Block) error {
	for _, b := range blockList {
		switch blk := b.(type) {
		case *blocks.SceneTreeBlock:
			if _, err := t.AddNode(blk.TreeID, blk.ParentID); err != nil {
				return err
			}
		case *blocks.TreeNodeBlock:
			node, ok := t.nodes[blk.NodeID]
			if !ok {
				return fmt.Errorf("%w: TreeNode references %s", ErrUnknownParent, blk.NodeID)
			}
			node.Label = blk.Label
			node.Visible = blk.Visible
			node.AnchorID = blk.AnchorID
			node.AnchorType = blk.AnchorType
			node.AnchorThreshold = blk.AnchorThreshold
			node.AnchorOriginX = blk.AnchorOriginX
		case *blocks.SceneGroupItemBlock:
			if blk.Item.Value == nil {
				continue
			}
			child, ok := t.nodes[*blk.Item.Value]
			if !ok {
				return fmt.Errorf("%w: SceneGroupItem references %s", ErrUnknownParent, *blk.Item.Value)
			}
			if err := t.AddItem(crdt.Item[Child]{
				ItemID:        blk.Item.ItemID,
				LeftID:        blk.Item.LeftID,
				RightID:       blk.Item.RightID,
				DeletedLength: blk.Item.DeletedLength,
				Value:         Child{Kind: ChildGroup, Group: child},
			}, blk.ParentID); err != nil {
				return err
			}
		case *blocks.SceneLineItemBlock:
			if err := t.AddItem(crdt.Item[Child]{
				ItemID:        blk.Item.ItemID,
				LeftID:        blk.Item.LeftID,
				RightID:       blk.Item.RightID,
				DeletedLength: blk.Item.DeletedLength,
				Value:         Child{Kind: ChildLine, Line: blk.Item.Value},
			}, blk.ParentID); err != nil {
				return err
			}
		case *blocks.SceneGlyphItemBlock:
			if err := t.AddItem(crdt.Item[Child]{
				ItemID:        blk.Item.ItemID,
				LeftID:        blk.Item.LeftID,
				RightID:       blk.Item.RightID,
				DeletedLength: blk.Item.DeletedLength,
				Value:         Child{Kind: ChildGlyph, Glyph: blk.Item.Value},
			}, blk.ParentID); err != nil {
				return err
			}
		case *blocks.RootTextBlock:
			if t.RootText != nil {
				t.logger().Warnf("overwriting root text: old block id %s, new block id %s",
					t.RootText.BlockID, blk.BlockID)
			}
			t.RootText = blk
		}
	}
	return nil
}

// Walk returns every leaf (non-Group) item in the tree, in tree-and-CRDT
// order: children of a Group are visited in their canonical CRDT order,
// recursing into nested Groups depth-first.
func (t *SceneTree) Walk() ([]Child, error) {
	return walkGroup(t.Root)
}

func walkGroup(g *Group) ([]Child, error) {
	children, err := crdt.Walk(g.Children)
	if err != nil {
		return nil, fmt.Errorf("walking group %s: %w", g.NodeID, err)
	}
	var out []Child
	for _, c := range children {
		if c.Kind == ChildGroup && c.Group != nil {
			nested, err := walkGroup(c.Group)
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

package scenetree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

func cid(n uint64) datastream.CrdtId { return datastream.CrdtId{Part1: 0, Part2: n} }

func TestAddNodeRejectsUnknownParent(t *testing.T) {
	tree := New()
	_, err := tree.AddNode(cid(5), cid(99))
	require.ErrorIs(t, err, ErrUnknownParent)
}

func TestAddNodeRejectsDuplicate(t *testing.T) {
	tree := New()
	_, err := tree.AddNode(cid(2), RootID)
	require.NoError(t, err)
	_, err = tree.AddNode(cid(2), RootID)
	require.ErrorIs(t, err, ErrDuplicateNode)
}

func TestAddItemRejectsUnknownParent(t *testing.T) {
	tree := New()
	err := tree.AddItem(crdt.Item[Child]{ItemID: cid(1), LeftID: datastream.EndMarker, RightID: datastream.EndMarker}, cid(99))
	require.ErrorIs(t, err, ErrUnknownParent)
}

func TestBuildAttachesLineUnderGroupAndWalkOrdersChildren(t *testing.T) {
	tree := New()

	sceneTree := &blocks.SceneTreeBlock{TreeID: cid(2), ParentID: RootID}
	attach := &blocks.SceneGroupItemBlock{
		ParentID: RootID,
		Item: crdt.Item[*datastream.CrdtId]{
			ItemID: cid(20), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: func() *datastream.CrdtId { id := cid(2); return &id }(),
		},
	}
	lineA := &blocks.SceneLineItemBlock{
		ParentID: cid(2),
		Item: crdt.Item[*blocks.Line]{
			ItemID: cid(10), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: &blocks.Line{Tool: blocks.PenFineliner1},
		},
	}
	lineB := &blocks.SceneLineItemBlock{
		ParentID: cid(2),
		Item: crdt.Item[*blocks.Line]{
			ItemID: cid(11), LeftID: cid(10), RightID: datastream.EndMarker,
			Value: &blocks.Line{Tool: blocks.PenBallpoint1},
		},
	}

	require.NoError(t, tree.Build([]blocks.Block{sceneTree, attach, lineA, lineB}))

	group, ok := tree.Node(cid(2))
	require.True(t, ok)
	require.Equal(t, 2, group.Children.Len())

	leaves, err := tree.Walk()
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	require.Equal(t, blocks.PenFineliner1, leaves[0].Line.Tool)
	require.Equal(t, blocks.PenBallpoint1, leaves[1].Line.Tool)
}

func TestBuildNestsGroupsAndWalkRecursesDepthFirst(t *testing.T) {
	tree := New()

	inner := &blocks.SceneTreeBlock{TreeID: cid(3), ParentID: RootID}
	attachInner := &blocks.SceneGroupItemBlock{
		ParentID: RootID,
		Item: crdt.Item[*datastream.CrdtId]{
			ItemID: cid(30), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: func() *datastream.CrdtId { id := cid(3); return &id }(),
		},
	}
	leafInInner := &blocks.SceneGlyphItemBlock{
		ParentID: cid(3),
		Item: crdt.Item[*blocks.GlyphRange]{
			ItemID: cid(31), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: &blocks.GlyphRange{Text: "hi"},
		},
	}

	require.NoError(t, tree.Build([]blocks.Block{inner, attachInner, leafInInner}))

	leaves, err := tree.Walk()
	require.NoError(t, err)
	require.Len(t, leaves, 1)
	require.Equal(t, ChildGlyph, leaves[0].Kind)
	require.Equal(t, "hi", leaves[0].Glyph.Text)
}

func TestBuildTreeNodeEnrichesExistingGroup(t *testing.T) {
	tree := New()
	sceneTree := &blocks.SceneTreeBlock{TreeID: cid(2), ParentID: RootID}
	treeNode := &blocks.TreeNodeBlock{
		NodeID:  cid(2),
		Label:   datastream.LwwValue[string]{Value: "Layer 1"},
		Visible: datastream.LwwValue[bool]{Value: true},
	}
	require.NoError(t, tree.Build([]blocks.Block{sceneTree, treeNode}))

	group, ok := tree.Node(cid(2))
	require.True(t, ok)
	require.Equal(t, "Layer 1", group.Label.Value)
}

func TestBuildTreeNodeFailsOnUnknownNode(t *testing.T) {
	tree := New()
	treeNode := &blocks.TreeNodeBlock{NodeID: cid(99)}
	err := tree.Build([]blocks.Block{treeNode})
	require.True(t, errors.Is(err, ErrUnknownParent))
}

func TestBuildSetsRootText(t *testing.T) {
	tree := New()
	rt := &blocks.RootTextBlock{BlockID: datastream.EndMarker, PosX: 1, PosY: 2}
	require.NoError(t, tree.Build([]blocks.Block{rt}))
	require.Same(t, rt, tree.RootText)
}

package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

func tid(n uint64) datastream.CrdtId { return datastream.CrdtId{Part1: 0, Part2: n} }

func TestExpandTextItemFourCharRun(t *testing.T) {
	item := crdt.Item[blocks.TextItemValue]{
		ItemID: tid(17), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
		Value: blocks.TextItemValue{Text: "AAAA"},
	}
	got, err := ExpandTextItem(item)
	require.NoError(t, err)
	require.Len(t, got, 4)

	want := []crdt.Item[blocks.TextItemValue]{
		{ItemID: tid(17), LeftID: datastream.EndMarker, RightID: tid(18), Value: blocks.TextItemValue{Text: "A"}},
		{ItemID: tid(18), LeftID: tid(17), RightID: tid(19), Value: blocks.TextItemValue{Text: "A"}},
		{ItemID: tid(19), LeftID: tid(18), RightID: tid(20), Value: blocks.TextItemValue{Text: "A"}},
		{ItemID: tid(20), LeftID: tid(19), RightID: datastream.EndMarker, Value: blocks.TextItemValue{Text: "A"}},
	}
	require.Equal(t, want, got)
}

func TestExpandTextItemSingleCharUnchanged(t *testing.T) {
	item := crdt.Item[blocks.TextItemValue]{
		ItemID: tid(5), LeftID: tid(4), RightID: tid(6),
		Value: blocks.TextItemValue{Text: "Z"},
	}
	got, err := ExpandTextItem(item)
	require.NoError(t, err)
	require.Equal(t, []crdt.Item[blocks.TextItemValue]{item}, got)
}

func TestExpandTextItemThreeCharsIncludingNewline(t *testing.T) {
	item := crdt.Item[blocks.TextItemValue]{
		ItemID: tid(21), LeftID: tid(20), RightID: datastream.EndMarker,
		Value: blocks.TextItemValue{Text: "A\nB"},
	}
	got, err := ExpandTextItem(item)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []datastream.CrdtId{tid(21), tid(22), tid(23)}, []datastream.CrdtId{got[0].ItemID, got[1].ItemID, got[2].ItemID})
	require.Equal(t, []string{"A", "\n", "B"}, []string{got[0].Value.Text, got[1].Value.Text, got[2].Value.Text})
}

func TestExpandTextItemEmptyDeletedExpandsToTombstones(t *testing.T) {
	item := crdt.Item[blocks.TextItemValue]{
		ItemID: tid(1), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
		DeletedLength: 2,
		Value:         blocks.TextItemValue{Text: ""},
	}
	got, err := ExpandTextItem(item)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, g := range got {
		require.EqualValues(t, 1, g.DeletedLength)
		require.Equal(t, "", g.Value.Text)
	}
}

func TestExpandTextItemFormatCodePassesThroughUnchanged(t *testing.T) {
	code := int32(1)
	item := crdt.Item[blocks.TextItemValue]{
		ItemID: tid(9), LeftID: tid(8), RightID: tid(10),
		Value: blocks.TextItemValue{FormatCode: &code},
	}
	got, err := ExpandTextItem(item)
	require.NoError(t, err)
	require.Equal(t, []crdt.Item[blocks.TextItemValue]{item}, got)
}

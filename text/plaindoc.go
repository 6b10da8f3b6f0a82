package text

import (
	"strings"

	"github.com/google/uuid"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

func crdtID(part1 uint8, part2 uint64) datastream.CrdtId {
	return datastream.CrdtId{Part1: part1, Part2: part2}
}

// NewPlainDocument returns the minimal block sequence representing s as a
// valid lines file: one author, one page, one layer, and a single
// unformatted RootText item holding all of s, styled as plain text (each
// newline in s starts a further paragraph).
func NewPlainDocument(s string, authorUUID uuid.UUID) []blocks.Block {
	return []blocks.Block{
		&blocks.AuthorIdsBlock{AuthorUUIDs: map[uint16]uuid.UUID{1: authorUUID}},
		&blocks.MigrationInfoBlock{MigrationID: crdtID(1, 1), IsDevice: true},
		&blocks.PageInfoBlock{
			LoadsCount:     1,
			MergesCount:    0,
			TextCharsCount: int32(len([]rune(s)) + 1),
			TextLinesCount: int32(strings.Count(s, "\n") + 1),
		},
		&blocks.SceneTreeBlock{
			TreeID:   crdtID(0, 11),
			NodeID:   crdtID(0, 0),
			IsUpdate: true,
			ParentID: crdtID(0, 1),
		},
		&blocks.RootTextBlock{
			BlockID: datastream.EndMarker,
			Items: []crdt.Item[blocks.TextItemValue]{{
				ItemID:  crdtID(1, 16),
				LeftID:  datastream.EndMarker,
				RightID: datastream.EndMarker,
				Value:   blocks.TextItemValue{Text: s},
			}},
			Formats: []blocks.TextFormatEntry{{
				Key:       datastream.EndMarker,
				Timestamp: crdtID(1, 15),
				StyleByte: uint8(ParagraphPlain),
			}},
			PosX:  -468.0,
			PosY:  234.0,
			Width: 936.0,
		},
		&blocks.TreeNodeBlock{
			NodeID:  crdtID(0, 1),
			Label:   datastream.LwwValue[string]{Timestamp: datastream.EndMarker, Value: ""},
			Visible: datastream.LwwValue[bool]{Timestamp: datastream.EndMarker, Value: true},
		},
		&blocks.TreeNodeBlock{
			NodeID:  crdtID(0, 11),
			Label:   datastream.LwwValue[string]{Timestamp: crdtID(0, 12), Value: "Layer 1"},
			Visible: datastream.LwwValue[bool]{Timestamp: datastream.EndMarker, Value: true},
		},
		&blocks.SceneGroupItemBlock{
			ParentID: crdtID(0, 1),
			Item: crdt.Item[*datastream.CrdtId]{
				ItemID:  crdtID(0, 13),
				LeftID:  datastream.EndMarker,
				RightID: datastream.EndMarker,
				Value:   func() *datastream.CrdtId { id := crdtID(0, 11); return &id }(),
			},
		},
	}
}

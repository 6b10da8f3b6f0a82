// Package text turns a RootText block's raw CRDT character sequence into
// paragraphs of styled runs.
package text

import (
	"fmt"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

// ExpandTextItem expands a TextItem carrying a multi-character string (or
// a multi-length tombstone) into one-character TextItems chained by
// left/right ids, preserving the outer left_id/right_id. An item carrying
// an inline-format code instead of a string passes through unchanged.
func ExpandTextItem(item crdt.Item[blocks.TextItemValue]) ([]crdt.Item[blocks.TextItemValue], error) {
	if item.Value.FormatCode != nil {
		return []crdt.Item[blocks.TextItemValue]{item}, nil
	}

	var chars []string
	var deletedLength uint32
	if item.DeletedLength > 0 {
		if item.Value.Text != "" {
			return nil, fmt.Errorf("rmscene: deleted text item %s carries non-empty text", item.ItemID)
		}
		chars = make([]string, item.DeletedLength)
		deletedLength = 1
	} else {
		runes := []rune(item.Value.Text)
		if len(runes) == 0 {
			return nil, fmt.Errorf("rmscene: text item %s has an empty value and zero deleted length", item.ItemID)
		}
		chars = make([]string, len(runes))
		for i, r := range runes {
			chars[i] = string(r)
		}
	}

	out := make([]crdt.Item[blocks.TextItemValue], 0, len(chars))
	itemID := item.ItemID
	leftID := item.LeftID
	for _, c := range chars[:len(chars)-1] {
		rightID := datastream.CrdtId{Part1: itemID.Part1, Part2: itemID.Part2 + 1}
		out = append(out, crdt.Item[blocks.TextItemValue]{
			ItemID:        itemID,
			LeftID:        leftID,
			RightID:       rightID,
			DeletedLength: deletedLength,
			Value:         blocks.TextItemValue{Text: c},
		})
		leftID = itemID
		itemID = rightID
	}
	out = append(out, crdt.Item[blocks.TextItemValue]{
		ItemID:        itemID,
		LeftID:        leftID,
		RightID:       item.RightID,
		DeletedLength: deletedLength,
		Value:         blocks.TextItemValue{Text: chars[len(chars)-1]},
	})
	return out, nil
}

// ExpandTextItems expands a sequence of TextItems into single-character
// TextItems.
func ExpandTextItems(items []crdt.Item[blocks.TextItemValue]) ([]crdt.Item[blocks.TextItemValue], error) {
	out := make([]crdt.Item[blocks.TextItemValue], 0, len(items))
	for _, item := range items {
		expanded, err := ExpandTextItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

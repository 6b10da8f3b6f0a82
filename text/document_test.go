package text

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

func pid(part2 uint64) datastream.CrdtId { return datastream.CrdtId{Part1: 1, Part2: part2} }

// TestFromSceneItemSingleParagraph reproduces the "Normal_AB" scenario at
// the block level: a single unformatted text run "AB" extracts into
// exactly one PLAIN paragraph with a single run "AB".
func TestFromSceneItemSingleParagraph(t *testing.T) {
	block := &blocks.RootTextBlock{
		Items: []crdt.Item[blocks.TextItemValue]{{
			ItemID: pid(1), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: blocks.TextItemValue{Text: "AB"},
		}},
	}
	doc, err := FromSceneItem(block, nil)
	require.NoError(t, err)
	require.Len(t, doc.Paragraphs, 1)
	p := doc.Paragraphs[0]
	require.Equal(t, ParagraphPlain, p.Style)
	require.Equal(t, datastream.EndMarker, p.StartID)
	require.Equal(t, "AB", p.Text())
	require.Len(t, p.Runs, 1)
}

// TestFromSceneItemFourStyledParagraphs reproduces the Bold/Heading/
// Bullet/Normal document scenario.
func TestFromSceneItemFourStyledParagraphs(t *testing.T) {
	text := "A\nnew line\nB is a letter of the alphabet\nC"
	block := &blocks.RootTextBlock{
		Items: []crdt.Item[blocks.TextItemValue]{{
			ItemID: pid(100), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: blocks.TextItemValue{Text: text},
		}},
		Formats: []blocks.TextFormatEntry{
			{Key: datastream.EndMarker, Timestamp: pid(1), StyleByte: uint8(ParagraphBold)},
			{Key: pid(101), Timestamp: pid(2), StyleByte: uint8(ParagraphHeading)},
			{Key: pid(110), Timestamp: pid(3), StyleByte: uint8(ParagraphBullet)},
		},
	}
	doc, err := FromSceneItem(block, nil)
	require.NoError(t, err)
	require.Len(t, doc.Paragraphs, 4)

	wantStyles := []ParagraphStyle{ParagraphBold, ParagraphHeading, ParagraphBullet, ParagraphPlain}
	wantTexts := []string{"A", "new line", "B is a letter of the alphabet", "C"}
	for i, p := range doc.Paragraphs {
		require.Equal(t, wantStyles[i], p.Style, "paragraph %d style", i)
		require.Equal(t, wantTexts[i], p.Text(), "paragraph %d text", i)
	}
}

// TestFromSceneItemInlineFormatting reproduces the inline-format document
// scenario: "Normal " + start-bold + "bold" + end-bold + " " + start-italic
// + "italic" + end-italic extracts into four runs with the expected
// weight/style flags.
func TestFromSceneItemInlineFormatting(t *testing.T) {
	startBold, endBold := int32(1), int32(2)
	startItalic, endItalic := int32(3), int32(4)

	items := []crdt.Item[blocks.TextItemValue]{
		{ItemID: pid(10), LeftID: datastream.EndMarker, RightID: pid(20), Value: blocks.TextItemValue{Text: "Normal "}},
		{ItemID: pid(20), LeftID: pid(16), RightID: pid(21), Value: blocks.TextItemValue{FormatCode: &startBold}},
		{ItemID: pid(21), LeftID: pid(20), RightID: pid(30), Value: blocks.TextItemValue{Text: "bold"}},
		{ItemID: pid(30), LeftID: pid(24), RightID: pid(31), Value: blocks.TextItemValue{FormatCode: &endBold}},
		{ItemID: pid(31), LeftID: pid(30), RightID: pid(40), Value: blocks.TextItemValue{Text: " "}},
		{ItemID: pid(40), LeftID: pid(31), RightID: pid(41), Value: blocks.TextItemValue{FormatCode: &startItalic}},
		{ItemID: pid(41), LeftID: pid(40), RightID: pid(50), Value: blocks.TextItemValue{Text: "italic"}},
		{ItemID: pid(50), LeftID: pid(46), RightID: datastream.EndMarker, Value: blocks.TextItemValue{FormatCode: &endItalic}},
	}
	block := &blocks.RootTextBlock{Items: items}

	doc, err := FromSceneItem(block, nil)
	require.NoError(t, err)
	require.Len(t, doc.Paragraphs, 1)
	runs := doc.Paragraphs[0].Runs
	require.Len(t, runs, 4)

	require.Equal(t, Run{Text: "Normal ", Bold: false, Italic: false}, runs[0])
	require.Equal(t, Run{Text: "bold", Bold: true, Italic: false}, runs[1])
	require.Equal(t, Run{Text: " ", Bold: false, Italic: false}, runs[2])
	require.Equal(t, Run{Text: "italic", Bold: false, Italic: true}, runs[3])
}

func TestExtractLinesFlattensParagraphs(t *testing.T) {
	block := &blocks.RootTextBlock{
		Items: []crdt.Item[blocks.TextItemValue]{{
			ItemID: pid(1), LeftID: datastream.EndMarker, RightID: datastream.EndMarker,
			Value: blocks.TextItemValue{Text: "hi\nthere"},
		}},
	}
	lines, err := ExtractLines(block, nil)
	require.NoError(t, err)
	require.Equal(t, []Line{
		{Style: ParagraphPlain, Text: "hi"},
		{Style: ParagraphPlain, Text: "there"},
	}, lines)
}

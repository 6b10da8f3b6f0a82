package text

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rmscene/rmscene/blocks"
	"github.com/rmscene/rmscene/crdt"
	"github.com/rmscene/rmscene/datastream"
)

// ParagraphStyle is the closed set of per-paragraph typographic roles a
// RootText block's format table can assign.
type ParagraphStyle uint8

const (
	ParagraphBasic ParagraphStyle = iota
	ParagraphPlain
	ParagraphHeading
	ParagraphBold
	ParagraphBullet
	ParagraphBullet2
	ParagraphCheckbox
	ParagraphCheckboxChecked
)

// Inline-format codes carried by TextItemValue.FormatCode.
const (
	formatStartBold   = 1
	formatEndBold     = 2
	formatStartItalic = 3
	formatEndItalic   = 4
)

// Run is a maximal span of text with constant font-weight/font-style.
type Run struct {
	Text   string
	Bold   bool
	Italic bool
}

// Paragraph is one line of text (ended by '\n', or by end of stream),
// carrying the style assigned to the character id that opened it.
type Paragraph struct {
	StartID datastream.CrdtId
	Style   ParagraphStyle
	Runs    []Run
}

// Text concatenates a paragraph's runs without formatting.
func (p Paragraph) Text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// TextDocument is a RootText block's content reassembled into styled
// paragraphs, in CRDT order.
type TextDocument struct {
	Paragraphs []Paragraph
	PosX       float64
	PosY       float64
	Width      float32
}

func buildStyles(formats []blocks.TextFormatEntry) map[datastream.CrdtId]datastream.LwwValue[ParagraphStyle] {
	styles := make(map[datastream.CrdtId]datastream.LwwValue[ParagraphStyle], len(formats))
	for _, f := range formats {
		candidate := datastream.LwwValue[ParagraphStyle]{Timestamp: f.Timestamp, Value: ParagraphStyle(f.StyleByte)}
		existing, ok := styles[f.Key]
		if !ok || existing.Timestamp.Less(candidate.Timestamp) {
			styles[f.Key] = candidate
		}
	}
	return styles
}

func styleFor(styles map[datastream.CrdtId]datastream.LwwValue[ParagraphStyle], id datastream.CrdtId) ParagraphStyle {
	if v, ok := styles[id]; ok {
		return v.Value
	}
	return ParagraphPlain
}

// FromSceneItem reassembles a RootText block's raw CRDT character/format
// sequence into a TextDocument: paragraphs of styled runs, in CRDT order.
func FromSceneItem(block *blocks.RootTextBlock, logger logrus.FieldLogger) (*TextDocument, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	styles := buildStyles(block.Formats)

	expanded, err := ExpandTextItems(block.Items)
	if err != nil {
		return nil, err
	}

	seq := crdt.NewSequence[blocks.TextItemValue]()
	for _, item := range expanded {
		seq.Add(item)
	}
	order, err := crdt.Order(seq)
	if err != nil {
		return nil, err
	}

	doc := &TextDocument{PosX: block.PosX, PosY: block.PosY, Width: block.Width}

	bold, italic := false, false
	startID := datastream.EndMarker
	style := styleFor(styles, startID)
	var runs []Run
	var current strings.Builder

	flushRun := func() {
		if current.Len() == 0 {
			return
		}
		runs = append(runs, Run{Text: current.String(), Bold: bold, Italic: italic})
		current.Reset()
	}
	flushParagraph := func() {
		flushRun()
		doc.Paragraphs = append(doc.Paragraphs, Paragraph{StartID: startID, Style: style, Runs: runs})
		runs = nil
	}

	for _, id := range order {
		item, ok := seq.Get(id)
		if !ok || item.DeletedLength > 0 {
			continue
		}
		if item.Value.FormatCode != nil {
			switch *item.Value.FormatCode {
			case formatStartBold:
				flushRun()
				bold = true
			case formatEndBold:
				flushRun()
				bold = false
			case formatStartItalic:
				flushRun()
				italic = true
			case formatEndItalic:
				flushRun()
				italic = false
			default:
				logger.Warnf("rmscene: ignoring unknown inline format code %d at %s", *item.Value.FormatCode, id)
			}
			continue
		}
		if item.Value.Text == "\n" {
			flushParagraph()
			startID = id
			style = styleFor(styles, startID)
			continue
		}
		current.WriteString(item.Value.Text)
	}
	flushParagraph()

	return doc, nil
}

// Line pairs a paragraph's style with its flattened (unformatted) text —
// the coarser view the original project's print-text command consumes.
type Line struct {
	Style ParagraphStyle
	Text  string
}

// ExtractLines flattens a RootText block's paragraphs into (style, text)
// pairs atop the full TextDocument model.
func ExtractLines(block *blocks.RootTextBlock, logger logrus.FieldLogger) ([]Line, error) {
	doc, err := FromSceneItem(block, logger)
	if err != nil {
		return nil, err
	}
	lines := make([]Line, 0, len(doc.Paragraphs))
	for _, p := range doc.Paragraphs {
		lines = append(lines, Line{Style: p.Style, Text: p.Text()})
	}
	return lines, nil
}

package blocks

import "fmt"

// PenColor is the color-index enum used by Line and GlyphRange items.
// The range beyond 13 (highlighter and shader colors) reflects palettes
// introduced by newer reMarkable software generations; readers must
// accept any value and writers never invent new ones.
type PenColor uint32

const (
	ColorBlack       PenColor = 0
	ColorGray        PenColor = 1
	ColorWhite       PenColor = 2
	ColorYellow      PenColor = 3
	ColorGreen       PenColor = 4
	ColorPink        PenColor = 5
	ColorBlue        PenColor = 6
	ColorRed         PenColor = 7
	ColorGrayOverlap PenColor = 8
	ColorHighlight   PenColor = 9
	ColorGreen2      PenColor = 10
	ColorCyan        PenColor = 11
	ColorMagenta     PenColor = 12
	ColorYellow2     PenColor = 13

	ColorHighlightYellow PenColor = 14
	ColorHighlightBlue   PenColor = 15
	ColorHighlightPink   PenColor = 16
	ColorHighlightOrange PenColor = 17
	ColorHighlightGreen  PenColor = 18
	ColorHighlightGray   PenColor = 19

	ColorShaderGray    PenColor = 20
	ColorShaderOrange  PenColor = 21
	ColorShaderMagenta PenColor = 22
	ColorShaderBlue    PenColor = 23
	ColorShaderRed     PenColor = 24
	ColorShaderGreen   PenColor = 25
	ColorShaderYellow  PenColor = 26
	ColorShaderCyan    PenColor = 27
)

func (c PenColor) String() string {
	return fmt.Sprintf("PenColor(%d)", uint32(c))
}

// Pen is the tool-index enum used by Line items.
type Pen uint32

const (
	PenPaintbrush1       Pen = 0
	PenPencil1           Pen = 1
	PenBallpoint1        Pen = 2
	PenMarker1           Pen = 3
	PenFineliner1        Pen = 4
	PenHighlighter1      Pen = 5
	PenEraser            Pen = 6
	PenMechanicalPencil1 Pen = 7
	PenEraserArea        Pen = 8
	PenPaintbrush2       Pen = 12
	PenMechanicalPencil2 Pen = 13
	PenPencil2           Pen = 14
	PenBallpoint2        Pen = 15
	PenMarker2           Pen = 16
	PenFineliner2        Pen = 17
	PenHighlighter2      Pen = 18
	PenCalligraphy       Pen = 21
	PenShader            Pen = 23
)

// IsHighlighter reports whether the tool is one of the two highlighter
// generations, which render translucent strokes.
func (p Pen) IsHighlighter() bool {
	return p == PenHighlighter1 || p == PenHighlighter2
}

// ItemType is the redundant in-payload discriminator carried by every
// SceneItem-family payload sub-block, alongside the block-type constant
// that already names the kind.
type ItemType uint8

const (
	ItemTypeGlyph ItemType = 0x01
	ItemTypeGroup ItemType = 0x02
	ItemTypeLine  ItemType = 0x03
	ItemTypeText  ItemType = 0x05
)

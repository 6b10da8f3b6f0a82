package blocks

import (
	"errors"
	"fmt"
	"math"

	"github.com/rmscene/rmscene/datastream"
	"github.com/rmscene/rmscene/tagged"
)

// Point is a single sample of a pen stroke. Speed, Direction and Pressure
// are kept as float64 even though version 2 stores them as small integers,
// because a version-1 source carries them as unrounded floats and a
// write-after-read of a v1 point must reproduce the exact original bytes.
// Width is always integral in both versions; version 1 rounds it on read.
type Point struct {
	X, Y      float32
	Speed     float64
	Direction float64
	Width     int32
	Pressure  float64
}

// PointWireSize returns a point's serialized size for the given payload
// version (1 or 2).
func PointWireSize(version uint8) int {
	if version == 1 {
		return 24
	}
	return 14
}

// ReadPoint decodes one point using the given payload version.
func ReadPoint(r *tagged.Reader, version uint8) (Point, error) {
	switch version {
	case 1:
		x, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		y, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		speedRaw, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		dirRaw, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		widthRaw, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		pressureRaw, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		return Point{
			X:         x,
			Y:         y,
			Speed:     float64(speedRaw) * 4,
			Direction: float64(dirRaw) * 255 / (2 * math.Pi),
			Width:     int32(math.Round(float64(widthRaw) * 4)),
			Pressure:  float64(pressureRaw) * 255,
		}, nil
	case 2:
		x, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		y, err := r.DS.ReadFloat32()
		if err != nil {
			return Point{}, err
		}
		speed, err := r.DS.ReadUint16()
		if err != nil {
			return Point{}, err
		}
		width, err := r.DS.ReadUint16()
		if err != nil {
			return Point{}, err
		}
		direction, err := r.DS.ReadUint8()
		if err != nil {
			return Point{}, err
		}
		pressure, err := r.DS.ReadUint8()
		if err != nil {
			return Point{}, err
		}
		return Point{
			X:         x,
			Y:         y,
			Speed:     float64(speed),
			Direction: float64(direction),
			Width:     int32(width),
			Pressure:  float64(pressure),
		}, nil
	default:
		return Point{}, fmt.Errorf("%w: unsupported point version %d", datastream.ErrValue, version)
	}
}

// WritePoint encodes p using the given payload version.
func WritePoint(w *tagged.Writer, p Point, version uint8) error {
	switch version {
	case 1:
		if err := w.DS.WriteFloat32(p.X); err != nil {
			return err
		}
		if err := w.DS.WriteFloat32(p.Y); err != nil {
			return err
		}
		if err := w.DS.WriteFloat32(float32(p.Speed / 4)); err != nil {
			return err
		}
		if err := w.DS.WriteFloat32(float32(p.Direction * 2 * math.Pi / 255)); err != nil {
			return err
		}
		if err := w.DS.WriteFloat32(float32(float64(p.Width) / 4)); err != nil {
			return err
		}
		return w.DS.WriteFloat32(float32(p.Pressure / 255))
	case 2:
		if err := w.DS.WriteFloat32(p.X); err != nil {
			return err
		}
		if err := w.DS.WriteFloat32(p.Y); err != nil {
			return err
		}
		if err := w.DS.WriteUint16(uint16(p.Speed)); err != nil {
			return err
		}
		if err := w.DS.WriteUint16(uint16(p.Width)); err != nil {
			return err
		}
		if err := w.DS.WriteUint8(uint8(p.Direction)); err != nil {
			return err
		}
		return w.DS.WriteUint8(uint8(p.Pressure))
	default:
		return fmt.Errorf("%w: unsupported point version %d", datastream.ErrValue, version)
	}
}

// Line is the payload of a SceneLineItem: a pen stroke.
type Line struct {
	Tool           Pen
	Color          PenColor
	ThicknessScale float64
	StartingLength float32
	Points         []Point
	Timestamp      datastream.CrdtId
	MoveID         *datastream.CrdtId
}

func readLinePayload(r *tagged.Reader, scope *tagged.Scope, pointVersion uint8) (*Line, error) {
	tool, err := r.ReadInt(1)
	if err != nil {
		return nil, err
	}
	color, err := r.ReadInt(2)
	if err != nil {
		return nil, err
	}
	thicknessScale, err := r.ReadDouble(3)
	if err != nil {
		return nil, err
	}
	startingLength, err := r.ReadFloat(4)
	if err != nil {
		return nil, err
	}

	sb, err := r.EnterSubblock(5)
	if err != nil {
		return nil, err
	}
	pointSize := PointWireSize(pointVersion)
	bodyLen := sb.BodyLen()
	if bodyLen%int64(pointSize) != 0 {
		return nil, fmt.Errorf("%w: points sub-block length %d is not a multiple of point size %d",
			datastream.ErrValue, bodyLen, pointSize)
	}
	count := bodyLen / int64(pointSize)
	points := make([]Point, 0, count)
	var readErr error
	for i := int64(0); i < count && readErr == nil; i++ {
		var p Point
		p, readErr = ReadPoint(r, pointVersion)
		if readErr == nil {
			points = append(points, p)
		}
	}
	if cerr := sb.Close(); cerr != nil && readErr == nil {
		readErr = cerr
	}
	if readErr != nil {
		return nil, readErr
	}

	timestamp, err := r.ReadID(6)
	if err != nil {
		return nil, err
	}

	var moveID *datastream.CrdtId
	if scope.Remaining() {
		id, err := r.ReadID(7)
		if err != nil {
			if !errors.Is(err, tagged.ErrUnexpectedBlock) {
				return nil, err
			}
		} else {
			moveID = &id
		}
	}

	return &Line{
		Tool:           Pen(tool),
		Color:          PenColor(color),
		ThicknessScale: thicknessScale,
		StartingLength: startingLength,
		Points:         points,
		Timestamp:      timestamp,
		MoveID:         moveID,
	}, nil
}

func writeLinePayload(w *tagged.Writer, l *Line, pointVersion uint8) error {
	if err := w.WriteInt(1, int32(l.Tool)); err != nil {
		return err
	}
	if err := w.WriteInt(2, int32(l.Color)); err != nil {
		return err
	}
	if err := w.WriteDouble(3, l.ThicknessScale); err != nil {
		return err
	}
	if err := w.WriteFloat(4, l.StartingLength); err != nil {
		return err
	}
	err := w.WithSubblock(5, nil, func(w *tagged.Writer) error {
		for _, p := range l.Points {
			if err := WritePoint(w, p, pointVersion); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := w.WriteID(6, l.Timestamp); err != nil {
		return err
	}
	if l.MoveID != nil {
		return w.WriteID(7, *l.MoveID)
	}
	return nil
}

// Rectangle is one bounding box of a GlyphRange's highlighted text.
type Rectangle struct {
	X, Y, W, H float64
}

// GlyphRange is the payload of a SceneGlyphItem: a run of highlighted text
// and the rectangles it covers on the page.
type GlyphRange struct {
	Start      *int32
	Length     *int32
	Color      PenColor
	Text       string
	Rectangles []Rectangle
}

// EffectiveLength returns Length if present, else the text's rune count —
// the newer-schema default.
func (g *GlyphRange) EffectiveLength() int32 {
	if g.Length != nil {
		return *g.Length
	}
	return int32(len([]rune(g.Text)))
}

func readGlyphRangePayload(r *tagged.Reader) (*GlyphRange, error) {
	var start *int32
	if r.CheckTag(2, tagged.Byte4) {
		v, err := r.ReadInt(2)
		if err != nil {
			return nil, err
		}
		start = &v
	}
	var length *int32
	if r.CheckTag(3, tagged.Byte4) {
		v, err := r.ReadInt(3)
		if err != nil {
			return nil, err
		}
		length = &v
	}
	color, err := r.ReadInt(4)
	if err != nil {
		return nil, err
	}
	text, err := r.ReadString(5)
	if err != nil {
		return nil, err
	}

	sb, err := r.EnterSubblock(6)
	if err != nil {
		return nil, err
	}
	n, err := r.DS.ReadVarUint()
	var rectErr error
	rects := make([]Rectangle, 0, n)
	for i := uint64(0); i < n && rectErr == nil; i++ {
		var x, y, w, h float64
		x, rectErr = r.DS.ReadFloat64()
		if rectErr == nil {
			y, rectErr = r.DS.ReadFloat64()
		}
		if rectErr == nil {
			w, rectErr = r.DS.ReadFloat64()
		}
		if rectErr == nil {
			h, rectErr = r.DS.ReadFloat64()
		}
		if rectErr == nil {
			rects = append(rects, Rectangle{X: x, Y: y, W: w, H: h})
		}
	}
	if err == nil {
		err = rectErr
	}
	if cerr := sb.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}

	return &GlyphRange{
		Start:      start,
		Length:     length,
		Color:      PenColor(color),
		Text:       text,
		Rectangles: rects,
	}, nil
}

func writeGlyphRangePayload(w *tagged.Writer, g *GlyphRange) error {
	if g.Start != nil {
		if err := w.WriteInt(2, *g.Start); err != nil {
			return err
		}
	}
	if g.Length != nil {
		if err := w.WriteInt(3, *g.Length); err != nil {
			return err
		}
	}
	if err := w.WriteInt(4, int32(g.Color)); err != nil {
		return err
	}
	if err := w.WriteString(5, g.Text); err != nil {
		return err
	}
	return w.WithSubblock(6, nil, func(w *tagged.Writer) error {
		if err := w.DS.WriteVarUint(uint64(len(g.Rectangles))); err != nil {
			return err
		}
		for _, rect := range g.Rectangles {
			if err := w.DS.WriteFloat64(rect.X); err != nil {
				return err
			}
			if err := w.DS.WriteFloat64(rect.Y); err != nil {
				return err
			}
			if err := w.DS.WriteFloat64(rect.W); err != nil {
				return err
			}
			if err := w.DS.WriteFloat64(rect.H); err != nil {
				return err
			}
		}
		return nil
	})
}

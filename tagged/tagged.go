// Package tagged implements the tagged-value codec layered above
// datastream: tag packing, scoped block and sub-block acquisition with
// position checks and extra-data preservation, and the typed/LWW/string
// read-write helpers built on top of scopes.
package tagged

import (
	"bytes"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/rmscene/rmscene/datastream"
)

// TagType is the low nibble of a tag varuint, naming the payload shape
// that follows.
type TagType uint8

const (
	Byte1   TagType = 0x1
	Byte4   TagType = 0x4
	Byte8   TagType = 0x8
	Length4 TagType = 0xC
	ID      TagType = 0xF
)

func (t TagType) String() string {
	switch t {
	case Byte1:
		return "Byte1"
	case Byte4:
		return "Byte4"
	case Byte8:
		return "Byte8"
	case Length4:
		return "Length4"
	case ID:
		return "ID"
	default:
		return fmt.Sprintf("Unknown(0x%X)", uint8(t))
	}
}

// ErrUnexpectedBlock marks a tag/index mismatch; always rewindable, so
// callers may retry with a different expectation.
var ErrUnexpectedBlock = errors.New("rmscene: unexpected block tag")

// ErrBlockOverflow marks a block or sub-block that consumed more bytes
// than its declared length; fatal to the enclosing scope.
var ErrBlockOverflow = errors.New("rmscene: block overflow")

// ErrTruncatedBlockHeader marks a stream that ran out of bytes partway
// through a block header, after its length field was already read
// successfully. Unlike running out of bytes before the length field (the
// ordinary, expected end of a block stream), this is a corrupt file and
// must abort iteration rather than be read as "no more blocks".
var ErrTruncatedBlockHeader = errors.New("rmscene: block header truncated after length field")

func packTag(index int, ty TagType) uint64 {
	return uint64(index)<<4 | uint64(ty)
}

// Reader decodes tagged values and scoped blocks/sub-blocks from an
// underlying datastream.Reader.
type Reader struct {
	DS     *datastream.Reader
	Logger logrus.FieldLogger

	warnedExtraData bool
}

// NewReader wraps ds. A nil logger falls back to logrus's standard logger.
func NewReader(ds *datastream.Reader, logger logrus.FieldLogger) *Reader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reader{DS: ds, Logger: logger}
}

// peekTag reads the next tag varuint and restores position regardless of
// outcome; ok is false on a parse error or EOF.
func (r *Reader) peekTag() (index int, ty TagType, ok bool) {
	start := r.DS.Pos()
	tag, err := r.DS.ReadVarUint()
	_ = r.DS.SeekTo(start)
	if err != nil {
		return 0, 0, false
	}
	return int(tag >> 4), TagType(tag & 0xF), true
}

// CheckTag peeks the next tag without advancing the read position.
func (r *Reader) CheckTag(index int, ty TagType) bool {
	gotIndex, gotType, ok := r.peekTag()
	return ok && gotIndex == index && gotType == ty
}

// ReadTag asserts that the next tag matches; on mismatch it rewinds to
// the position before the tag and returns ErrUnexpectedBlock, so callers
// can try an alternative read.
func (r *Reader) ReadTag(index int, ty TagType) error {
	start := r.DS.Pos()
	tag, err := r.DS.ReadVarUint()
	if err != nil {
		_ = r.DS.SeekTo(start)
		return fmt.Errorf("%w: reading tag at index %d: %v", ErrUnexpectedBlock, index, err)
	}
	gotIndex := int(tag >> 4)
	gotType := TagType(tag & 0xF)
	if gotIndex != index || gotType != ty {
		_ = r.DS.SeekTo(start)
		return fmt.Errorf("%w: expected (index=%d, type=%s), got (index=%d, type=%s)",
			ErrUnexpectedBlock, index, ty, gotIndex, gotType)
	}
	return nil
}

// ReadID reads a tagged CrdtId.
func (r *Reader) ReadID(index int) (datastream.CrdtId, error) {
	if err := r.ReadTag(index, ID); err != nil {
		return datastream.CrdtId{}, err
	}
	return r.DS.ReadCrdtId()
}

// ReadIDOptional returns def if the expected tag is not present.
func (r *Reader) ReadIDOptional(index int, def datastream.CrdtId) (datastream.CrdtId, error) {
	if !r.CheckTag(index, ID) {
		return def, nil
	}
	return r.ReadID(index)
}

// ReadBool reads a tagged boolean (Byte1 payload).
func (r *Reader) ReadBool(index int) (bool, error) {
	if err := r.ReadTag(index, Byte1); err != nil {
		return false, err
	}
	return r.DS.ReadBool()
}

// ReadBoolOptional returns def if the expected tag is not present.
func (r *Reader) ReadBoolOptional(index int, def bool) (bool, error) {
	if !r.CheckTag(index, Byte1) {
		return def, nil
	}
	return r.ReadBool(index)
}

// ReadByte reads a tagged byte (Byte1 payload).
func (r *Reader) ReadByte(index int) (uint8, error) {
	if err := r.ReadTag(index, Byte1); err != nil {
		return 0, err
	}
	return r.DS.ReadUint8()
}

// ReadByteOptional returns def if the expected tag is not present.
func (r *Reader) ReadByteOptional(index int, def uint8) (uint8, error) {
	if !r.CheckTag(index, Byte1) {
		return def, nil
	}
	return r.ReadByte(index)
}

// ReadInt reads a tagged 32-bit integer (Byte4 payload).
func (r *Reader) ReadInt(index int) (int32, error) {
	if err := r.ReadTag(index, Byte4); err != nil {
		return 0, err
	}
	v, err := r.DS.ReadUint32()
	return int32(v), err
}

// ReadIntOptional returns def if the expected tag is not present.
func (r *Reader) ReadIntOptional(index int, def int32) (int32, error) {
	if !r.CheckTag(index, Byte4) {
		return def, nil
	}
	return r.ReadInt(index)
}

// ReadFloat reads a tagged float32 (Byte4 payload).
func (r *Reader) ReadFloat(index int) (float32, error) {
	if err := r.ReadTag(index, Byte4); err != nil {
		return 0, err
	}
	return r.DS.ReadFloat32()
}

// ReadFloatOptional returns def if the expected tag is not present.
func (r *Reader) ReadFloatOptional(index int, def float32) (float32, error) {
	if !r.CheckTag(index, Byte4) {
		return def, nil
	}
	return r.ReadFloat(index)
}

// ReadDouble reads a tagged float64 (Byte8 payload).
func (r *Reader) ReadDouble(index int) (float64, error) {
	if err := r.ReadTag(index, Byte8); err != nil {
		return 0, err
	}
	return r.DS.ReadFloat64()
}

// Scope is a handle to an acquired block or sub-block body. Close must
// be called exactly once, typically via defer, before the enclosing
// function returns; callers must not retain the handle past that point.
type Scope struct {
	reader *Reader
	start  int64
	end    int64

	// ExtraData holds any unread trailing bytes discovered at Close,
	// populated only after Close has run.
	ExtraData []byte
}

// Close verifies the read position against the scope's declared end,
// harvesting unread trailing bytes as ExtraData (with a single logged
// warning per reader) or reporting ErrBlockOverflow if the body read
// past its declared length. It always leaves the reader positioned at
// the scope's end so an outer scope or the top-level block loop can
// resume correctly, whether or not the body read succeeded.
func (s *Scope) Close() error {
	pos := s.reader.DS.Pos()
	if pos > s.end {
		_ = s.reader.DS.SeekTo(s.end)
		return fmt.Errorf("%w: read %d bytes past declared length", ErrBlockOverflow, pos-s.end)
	}
	if pos < s.end {
		extra, err := s.reader.DS.ReadBytes(int(s.end - pos))
		if err != nil {
			return err
		}
		s.ExtraData = extra
		if !s.reader.warnedExtraData {
			s.reader.warnedExtraData = true
			s.reader.Logger.Warn("rmscene: preserving unread trailing bytes in block/sub-block as extra data")
		}
	}
	return nil
}

// EnterBlock reads a top-level block's 8-byte header and returns its
// info plus a scope bounding the declared body length. Running out of
// bytes on the length field itself is the ordinary end of the block
// stream and surfaces as plain datastream.ErrEOF; running out of bytes on
// any field after it means the stream was cut off mid-header, which is a
// fatal, non-EOF error (ErrTruncatedBlockHeader) so callers iterating
// blocks don't mistake truncation for a clean finish.
func (r *Reader) EnterBlock() (BlockInfo, *Scope, error) {
	offset := r.DS.Pos()
	length, err := r.DS.ReadUint32()
	if err != nil {
		return BlockInfo{}, nil, err
	}
	reserved, err := r.DS.ReadUint8()
	if err != nil {
		return BlockInfo{}, nil, truncatedHeaderErr(err)
	}
	if reserved != 0 {
		return BlockInfo{}, nil, fmt.Errorf("%w: block reserved byte must be 0, got %d", datastream.ErrValue, reserved)
	}
	minVersion, err := r.DS.ReadUint8()
	if err != nil {
		return BlockInfo{}, nil, truncatedHeaderErr(err)
	}
	currentVersion, err := r.DS.ReadUint8()
	if err != nil {
		return BlockInfo{}, nil, truncatedHeaderErr(err)
	}
	blockType, err := r.DS.ReadUint8()
	if err != nil {
		return BlockInfo{}, nil, truncatedHeaderErr(err)
	}
	start := r.DS.Pos()
	info := BlockInfo{
		Offset:         offset,
		MinVersion:     minVersion,
		CurrentVersion: currentVersion,
		BlockType:      blockType,
		Length:         length,
	}
	return info, &Scope{reader: r, start: start, end: start + int64(length)}, nil
}

// truncatedHeaderErr turns running out of bytes into ErrTruncatedBlockHeader
// rather than plain datastream.ErrEOF, so it can no longer be mistaken for
// the ordinary end-of-stream case. Any other error (a real I/O failure)
// passes through unchanged.
func truncatedHeaderErr(err error) error {
	if errors.Is(err, datastream.ErrEOF) {
		return fmt.Errorf("%w: %v", ErrTruncatedBlockHeader, err)
	}
	return err
}

// BlockInfo carries a block's frame metadata.
type BlockInfo struct {
	Offset         int64
	Length         uint32
	MinVersion     uint8
	CurrentVersion uint8
	BlockType      uint8
}

// EnterSubblock consumes a Length4 tag at index and returns a scope
// bounding its declared u32 body length.
func (r *Reader) EnterSubblock(index int) (*Scope, error) {
	if err := r.ReadTag(index, Length4); err != nil {
		return nil, err
	}
	length, err := r.DS.ReadUint32()
	if err != nil {
		return nil, err
	}
	start := r.DS.Pos()
	return &Scope{reader: r, start: start, end: start + int64(length)}, nil
}

// HasSubblock reports whether a Length4 tag at index immediately follows,
// without advancing position. It always returns false once the scope's
// declared end has been reached, even if the following bytes (belonging
// to whatever comes after this scope) would otherwise tag-match — the
// check must happen before any peek is attempted.
func (s *Scope) HasSubblock(index int) bool {
	if s.reader.DS.Pos() >= s.end {
		return false
	}
	return s.reader.CheckTag(index, Length4)
}

// Remaining reports whether unread bytes remain in the scope.
func (s *Scope) Remaining() bool {
	return s.reader.DS.Pos() < s.end
}

// BodyLen returns the scope's total declared body length in bytes.
func (s *Scope) BodyLen() int64 {
	return s.end - s.start
}

// ReadLwwBool reads a sub-block of the shape {id@1; bool@2}.
func (r *Reader) ReadLwwBool(index int) (out datastream.LwwValue[bool], err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ts, err := r.ReadID(1)
	if err != nil {
		return out, err
	}
	val, err := r.ReadBool(2)
	if err != nil {
		return out, err
	}
	return datastream.LwwValue[bool]{Timestamp: ts, Value: val}, nil
}

// ReadLwwByte reads a sub-block of the shape {id@1; byte@2}.
func (r *Reader) ReadLwwByte(index int) (out datastream.LwwValue[uint8], err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ts, err := r.ReadID(1)
	if err != nil {
		return out, err
	}
	val, err := r.ReadByte(2)
	if err != nil {
		return out, err
	}
	return datastream.LwwValue[uint8]{Timestamp: ts, Value: val}, nil
}

// ReadLwwFloat reads a sub-block of the shape {id@1; float@2}.
func (r *Reader) ReadLwwFloat(index int) (out datastream.LwwValue[float32], err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ts, err := r.ReadID(1)
	if err != nil {
		return out, err
	}
	val, err := r.ReadFloat(2)
	if err != nil {
		return out, err
	}
	return datastream.LwwValue[float32]{Timestamp: ts, Value: val}, nil
}

// ReadLwwID reads a sub-block of the shape {id@1; id@2}.
func (r *Reader) ReadLwwID(index int) (out datastream.LwwValue[datastream.CrdtId], err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ts, err := r.ReadID(1)
	if err != nil {
		return out, err
	}
	val, err := r.ReadID(2)
	if err != nil {
		return out, err
	}
	return datastream.LwwValue[datastream.CrdtId]{Timestamp: ts, Value: val}, nil
}

// ReadLwwString reads a sub-block of the shape {id@1; string@2}.
func (r *Reader) ReadLwwString(index int) (out datastream.LwwValue[string], err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return out, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ts, err := r.ReadID(1)
	if err != nil {
		return out, err
	}
	val, err := r.ReadString(2)
	if err != nil {
		return out, err
	}
	return datastream.LwwValue[string]{Timestamp: ts, Value: val}, nil
}

// readStringBody reads {varuint length; u8 is_ascii; <length> bytes}
// without entering/leaving a scope of its own — callers already hold one.
func (r *Reader) readStringBody() (string, error) {
	length, err := r.DS.ReadVarUint()
	if err != nil {
		return "", err
	}
	isASCII, err := r.DS.ReadUint8()
	if err != nil {
		return "", err
	}
	if isASCII != 1 {
		return "", fmt.Errorf("%w: is_ascii flag expected 1, got %d", datastream.ErrValue, isASCII)
	}
	buf, err := r.DS.ReadBytes(int(length))
	if err != nil {
		return "", err
	}
	s := string(buf)
	if utf8.RuneCountInString(s) != len(buf) {
		r.Logger.WithField("declared_bytes", length).Debug("rmscene: string byte length differs from decoded rune count")
	}
	return s, nil
}

// ReadString reads a sub-block string: varuint length; u8 is_ascii;
// <length> UTF-8 bytes.
func (r *Reader) ReadString(index int) (s string, err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return r.readStringBody()
}

// ReadStringWithFormat reads a string sub-block and then, within the
// same scope, an optional trailing Byte4 tagged integer at index 2
// interpreted as an inline paragraph format code.
func (r *Reader) ReadStringWithFormat(index int) (s string, format *int32, err error) {
	sb, err := r.EnterSubblock(index)
	if err != nil {
		return "", nil, err
	}
	defer func() {
		if cerr := sb.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	s, err = r.readStringBody()
	if err != nil {
		return "", nil, err
	}
	if r.CheckTag(2, Byte4) {
		v, err := r.ReadInt(2)
		if err != nil {
			return "", nil, err
		}
		return s, &v, nil
	}
	return s, nil, nil
}

// Writer encodes tagged values and scoped blocks/sub-blocks to an
// underlying datastream.Writer.
type Writer struct {
	DS     *datastream.Writer
	Logger logrus.FieldLogger
}

// NewWriter wraps ds. A nil logger falls back to logrus's standard logger.
func NewWriter(ds *datastream.Writer, logger logrus.FieldLogger) *Writer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Writer{DS: ds, Logger: logger}
}

func (w *Writer) writeTag(index int, ty TagType) error {
	return w.DS.WriteVarUint(packTag(index, ty))
}

// WriteID writes a tagged CrdtId.
func (w *Writer) WriteID(index int, id datastream.CrdtId) error {
	if err := w.writeTag(index, ID); err != nil {
		return err
	}
	return w.DS.WriteCrdtId(id)
}

// WriteBool writes a tagged boolean.
func (w *Writer) WriteBool(index int, v bool) error {
	if err := w.writeTag(index, Byte1); err != nil {
		return err
	}
	return w.DS.WriteBool(v)
}

// WriteByte writes a tagged byte.
func (w *Writer) WriteByte(index int, v uint8) error {
	if err := w.writeTag(index, Byte1); err != nil {
		return err
	}
	return w.DS.WriteUint8(v)
}

// WriteInt writes a tagged 32-bit integer.
func (w *Writer) WriteInt(index int, v int32) error {
	if err := w.writeTag(index, Byte4); err != nil {
		return err
	}
	return w.DS.WriteUint32(uint32(v))
}

// WriteFloat writes a tagged float32.
func (w *Writer) WriteFloat(index int, v float32) error {
	if err := w.writeTag(index, Byte4); err != nil {
		return err
	}
	return w.DS.WriteFloat32(v)
}

// WriteDouble writes a tagged float64.
func (w *Writer) WriteDouble(index int, v float64) error {
	if err := w.writeTag(index, Byte8); err != nil {
		return err
	}
	return w.DS.WriteFloat64(v)
}

// withBuffer runs body against a fresh in-memory writer and returns its
// buffered bytes. The parent writer is untouched until the caller
// chooses to flush the buffer, so a body that returns an error leaves no
// trace on the parent sink — this is the Go equivalent of the buffer
// swap-and-restore pattern, implemented via the call stack instead of a
// mutable field swap.
func (w *Writer) withBuffer(body func(w *Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	inner := &Writer{DS: datastream.NewWriter(&buf), Logger: w.Logger}
	if err := body(inner); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WithSubblock buffers body's output, then writes it as a Length4-tagged
// sub-block at index, followed by extraData (for round-trip fidelity).
func (w *Writer) WithSubblock(index int, extraData []byte, body func(w *Writer) error) error {
	out, err := w.withBuffer(body)
	if err != nil {
		return err
	}
	out = append(out, extraData...)
	if err := w.writeTag(index, Length4); err != nil {
		return err
	}
	if err := w.DS.WriteUint32(uint32(len(out))); err != nil {
		return err
	}
	return w.DS.WriteBytes(out)
}

// WithBlock buffers body's output, then writes the 8-byte block header
// (with the given type and version pair) followed by the body and
// extraData.
func (w *Writer) WithBlock(blockType, minVersion, currentVersion uint8, extraData []byte, body func(w *Writer) error) error {
	out, err := w.withBuffer(body)
	if err != nil {
		return err
	}
	out = append(out, extraData...)
	if err := w.DS.WriteUint32(uint32(len(out))); err != nil {
		return err
	}
	if err := w.DS.WriteUint8(0); err != nil {
		return err
	}
	if err := w.DS.WriteUint8(minVersion); err != nil {
		return err
	}
	if err := w.DS.WriteUint8(currentVersion); err != nil {
		return err
	}
	if err := w.DS.WriteUint8(blockType); err != nil {
		return err
	}
	return w.DS.WriteBytes(out)
}

// WriteLwwBool writes a sub-block of the shape {id@1; bool@2}.
func (w *Writer) WriteLwwBool(index int, v datastream.LwwValue[bool]) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.WriteID(1, v.Timestamp); err != nil {
			return err
		}
		return w.WriteBool(2, v.Value)
	})
}

// WriteLwwByte writes a sub-block of the shape {id@1; byte@2}.
func (w *Writer) WriteLwwByte(index int, v datastream.LwwValue[uint8]) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.WriteID(1, v.Timestamp); err != nil {
			return err
		}
		return w.WriteByte(2, v.Value)
	})
}

// WriteLwwFloat writes a sub-block of the shape {id@1; float@2}.
func (w *Writer) WriteLwwFloat(index int, v datastream.LwwValue[float32]) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.WriteID(1, v.Timestamp); err != nil {
			return err
		}
		return w.WriteFloat(2, v.Value)
	})
}

// WriteLwwID writes a sub-block of the shape {id@1; id@2}.
func (w *Writer) WriteLwwID(index int, v datastream.LwwValue[datastream.CrdtId]) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.WriteID(1, v.Timestamp); err != nil {
			return err
		}
		return w.WriteID(2, v.Value)
	})
}

// WriteLwwString writes a sub-block of the shape {id@1; string@2}.
func (w *Writer) WriteLwwString(index int, v datastream.LwwValue[string]) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.WriteID(1, v.Timestamp); err != nil {
			return err
		}
		return w.WriteString(2, v.Value)
	})
}

// WriteString writes a sub-block string: varuint length; u8 is_ascii==1;
// <length> UTF-8 bytes.
func (w *Writer) WriteString(index int, s string) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.DS.WriteVarUint(uint64(len(s))); err != nil {
			return err
		}
		if err := w.DS.WriteBool(true); err != nil {
			return err
		}
		return w.DS.WriteBytes([]byte(s))
	})
}

// WriteStringWithFormat writes a string sub-block followed, in the same
// scope, by an optional Byte4 tagged integer at index 2.
func (w *Writer) WriteStringWithFormat(index int, s string, format *int32) error {
	return w.WithSubblock(index, nil, func(w *Writer) error {
		if err := w.DS.WriteVarUint(uint64(len(s))); err != nil {
			return err
		}
		if err := w.DS.WriteBool(true); err != nil {
			return err
		}
		if err := w.DS.WriteBytes([]byte(s)); err != nil {
			return err
		}
		if format != nil {
			return w.WriteInt(2, *format)
		}
		return nil
	})
}

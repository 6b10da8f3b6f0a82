package tagged

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rmscene/rmscene/datastream"
)

func newTestReader(data []byte) *Reader {
	return NewReader(datastream.NewReader(bytes.NewReader(data)), nil)
}

func TestReadTagRewindsOnMismatch(t *testing.T) {
	// tag for (index=2, type=Byte1) = 0x21
	r := newTestReader([]byte{0x21, 0x01})
	err := r.ReadTag(1, Byte1)
	require.ErrorIs(t, err, ErrUnexpectedBlock)
	require.EqualValues(t, 0, r.DS.Pos())

	// A caller can now retry with the correct expectation.
	require.NoError(t, r.ReadTag(2, Byte1))
	v, err := r.DS.ReadUint8()
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

func TestCheckTagNeverAdvances(t *testing.T) {
	r := newTestReader([]byte{0x21, 0x01})
	require.False(t, r.CheckTag(9, Byte1))
	require.EqualValues(t, 0, r.DS.Pos())
	require.True(t, r.CheckTag(2, Byte1))
	require.EqualValues(t, 0, r.DS.Pos())
}

func TestHasSubblockPurityAtEndOfBlock(t *testing.T) {
	// Scope covering zero bytes, immediately followed by bytes that
	// would tag-match a Length4 sub-block if peeked — has_subblock must
	// not look past its own declared end.
	tailTag := []byte{0xFC, 0x01, 0x00, 0x00, 0x00, 0x00} // index 15, Length4, length 0
	r := newTestReader(tailTag)
	scope := &Scope{reader: r, start: 0, end: 0}
	require.False(t, scope.HasSubblock(15))
	require.EqualValues(t, 0, r.DS.Pos())
}

func TestHasSubblockPurityWithinBlock(t *testing.T) {
	// index 3 Length4 tag with 0-length body.
	data := []byte{0x3C, 0x00, 0x00, 0x00, 0x00}
	r := newTestReader(data)
	scope := &Scope{reader: r, start: 0, end: int64(len(data))}
	require.True(t, scope.HasSubblock(3))
	require.EqualValues(t, 0, r.DS.Pos())
	require.False(t, scope.HasSubblock(4))
}

func TestSubblockExtraDataPreservedAndWarnedOnce(t *testing.T) {
	// Sub-block at index 0, length 3, body "AB" (2 bytes) + 1 unread byte 0x7F.
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	require.NoError(t, w.writeTag(0, Length4))
	require.NoError(t, w.DS.WriteUint32(3))
	require.NoError(t, w.DS.WriteBytes([]byte{'A', 'B', 0x7F}))

	r := newTestReader(buf.Bytes())
	sb, err := r.EnterSubblock(0)
	require.NoError(t, err)
	body, err := r.DS.ReadBytes(2)
	require.NoError(t, err)
	require.Equal(t, "AB", string(body))
	require.NoError(t, sb.Close())
	require.Equal(t, []byte{0x7F}, sb.ExtraData)
	require.True(t, r.warnedExtraData)
}

func TestBlockOverflowDetectedAtClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	require.NoError(t, w.DS.WriteUint32(1)) // declares a 1-byte body
	require.NoError(t, w.DS.WriteUint8(0))
	require.NoError(t, w.DS.WriteUint8(1))
	require.NoError(t, w.DS.WriteUint8(1))
	require.NoError(t, w.DS.WriteUint8(0))
	require.NoError(t, w.DS.WriteBytes([]byte{0xAA, 0xBB})) // one byte too many

	r := newTestReader(buf.Bytes())
	_, scope, err := r.EnterBlock()
	require.NoError(t, err)
	_, err = r.DS.ReadBytes(2) // over-reads by one byte
	require.NoError(t, err)
	err = scope.Close()
	require.ErrorIs(t, err, ErrBlockOverflow)
}

func TestEnterBlockCleanEOFBeforeLengthField(t *testing.T) {
	r := newTestReader(nil)
	_, _, err := r.EnterBlock()
	require.ErrorIs(t, err, datastream.ErrEOF)
	require.False(t, errors.Is(err, ErrTruncatedBlockHeader))
}

func TestEnterBlockFatalOnTruncationAfterLengthField(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	require.NoError(t, w.DS.WriteUint32(1)) // length field, header cut off shortly after it
	require.NoError(t, w.DS.WriteUint8(0))  // reserved byte present...
	// ...but minVersion/currentVersion/blockType are missing entirely.

	r := newTestReader(buf.Bytes())
	_, _, err := r.EnterBlock()
	require.ErrorIs(t, err, ErrTruncatedBlockHeader)
	require.False(t, errors.Is(err, datastream.ErrEOF))
}

func TestMinimalWriteMigrationInfoVector(t *testing.T) {
	// One MigrationInfo((1,1), true) block at writer version 3.1: the
	// optional bool@3 (gated on >=3.2.2) is absent.
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	err := w.WithBlock(0x00, 1, 1, nil, func(w *Writer) error {
		if err := w.WriteID(1, datastream.CrdtId{Part1: 1, Part2: 1}); err != nil {
			return err
		}
		return w.WriteBool(2, true)
	})
	require.NoError(t, err)
	require.Equal(t, "05000000000101001f01012101", hex.EncodeToString(buf.Bytes()))
}

func TestBlockRoundTripWithExtraData(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	extra := []byte{0x7F, 0x01, 0x0F}
	err := w.WithBlock(0x05, 1, 1, extra, func(w *Writer) error {
		return w.WriteID(1, datastream.CrdtId{Part1: 0, Part2: 2})
	})
	require.NoError(t, err)

	r := newTestReader(buf.Bytes())
	info, scope, err := r.EnterBlock()
	require.NoError(t, err)
	require.EqualValues(t, 0x05, info.BlockType)
	id, err := r.ReadID(1)
	require.NoError(t, err)
	require.Equal(t, datastream.CrdtId{Part1: 0, Part2: 2}, id)
	require.NoError(t, scope.Close())
	require.Equal(t, extra, scope.ExtraData)
}

func TestOptionalFieldDefaultsWhenTagAbsent(t *testing.T) {
	r := newTestReader([]byte{})
	got, err := r.ReadBoolOptional(5, true)
	require.NoError(t, err)
	require.True(t, got)
}

func TestStringRoundTripASCIIAndNonASCII(t *testing.T) {
	for _, s := range []string{"hello", "a×", ""} {
		var buf bytes.Buffer
		w := NewWriter(datastream.NewWriter(&buf), nil)
		require.NoError(t, w.WriteString(0, s))

		r := newTestReader(buf.Bytes())
		got, err := r.ReadString(0)
		require.NoError(t, err)
		require.Equal(t, s, got)
	}
}

func TestLwwBoolRoundTrip(t *testing.T) {
	v := datastream.LwwValue[bool]{Timestamp: datastream.CrdtId{Part1: 1, Part2: 9}, Value: true}
	var buf bytes.Buffer
	w := NewWriter(datastream.NewWriter(&buf), nil)
	require.NoError(t, w.WriteLwwBool(3, v))

	r := newTestReader(buf.Bytes())
	got, err := r.ReadLwwBool(3)
	require.NoError(t, err)
	require.Equal(t, v, got)
}

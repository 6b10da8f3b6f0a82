package datastream

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarUintRoundTrip(t *testing.T) {
	cases := []struct {
		n    uint64
		hex  string
	}{
		{0, "00"},
		{3, "03"},
		{0x7F, "7f"},
		{0x8C, "8c01"},
		{0x9C, "9c01"},
		{0x3FFF, "ff7f"},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		require.NoError(t, w.WriteVarUint(c.n))
		require.Equal(t, c.hex, hex.EncodeToString(buf.Bytes()))

		r := NewReader(bytes.NewReader(buf.Bytes()))
		got, err := r.ReadVarUint()
		require.NoError(t, err)
		require.Equal(t, c.n, got)
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteHeader())
	require.Equal(t, 43, buf.Len())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, r.ReadHeader())
	require.EqualValues(t, 43, r.Pos())
}

func TestBadHeaderRejected(t *testing.T) {
	r := NewReader(bytes.NewReader(make([]byte, 43)))
	require.Error(t, r.ReadHeader())
}

func TestCrdtIdRoundTrip(t *testing.T) {
	id := CrdtId{Part1: 7, Part2: 0x3FFF}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.WriteCrdtId(id))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	got, err := r.ReadCrdtId()
	require.NoError(t, err)
	require.Equal(t, id, got)
}

func TestCrdtIdOrdering(t *testing.T) {
	a := CrdtId{Part1: 1, Part2: 5}
	b := CrdtId{Part1: 1, Part2: 6}
	c := CrdtId{Part1: 2, Part2: 0}
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, b.Less(a))
	require.True(t, EndMarker.IsEndMarker())
}

func TestEOFOnShortRead(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2}))
	_, err := r.ReadUint32()
	require.ErrorIs(t, err, ErrEOF)
}

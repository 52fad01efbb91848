// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux
// +build linux

package channel

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeHeader(t *testing.T, w *os.File, h Header) {
	t.Helper()
	require.NoError(t, binary.Write(w, binary.LittleEndian, h))
}

// TestFramingDecodesExactCounts covers testable property 9: given a
// synthetic well-formed stream of N events, the reader decodes exactly N
// events with the expected per-type dispatch counts.
func TestFramingDecodesExactCounts(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	go func() {
		defer w.Close()
		writeHeader(t, w, Header{MsgType: MsgCond, Label: 1})
		require.NoError(t, binary.Write(w, binary.LittleEndian, CondTrailer{Addr: 0x1000}))

		writeHeader(t, w, Header{MsgType: MsgGEP})
		require.NoError(t, binary.Write(w, binary.LittleEndian, GEPTrailer{IndexLabel: 7}))

		writeHeader(t, w, Header{MsgType: MsgMemcmp, Result: 3})
		_, err := w.Write([]byte{1, 2, 3})
		require.NoError(t, err)

		writeHeader(t, w, Header{MsgType: MsgFsize})
		writeHeader(t, w, Header{MsgType: MsgLoop})
		writeHeader(t, w, Header{MsgType: MsgFini, Result: 42})
	}()

	reader := NewReader(r)
	counts := map[MsgType]int{}
	var n int
	for {
		ev, err := reader.Next()
		require.NoError(t, err)
		if ev == nil {
			break
		}
		n++
		switch e := ev.(type) {
		case CondEvent:
			counts[MsgCond]++
			require.EqualValues(t, 0x1000, e.Trailer.Addr)
		case GEPEvent:
			counts[MsgGEP]++
			require.EqualValues(t, 7, e.Trailer.IndexLabel)
		case MemcmpEvent:
			counts[MsgMemcmp]++
			require.Equal(t, []byte{1, 2, 3}, e.Data)
		case FsizeEvent:
			counts[MsgFsize]++
		case LoopEvent:
			counts[MsgLoop]++
		case FiniEvent:
			counts[MsgFini]++
			require.EqualValues(t, 42, e.Header.Result)
		}
	}
	require.Equal(t, 6, n)
	require.Equal(t, 1, counts[MsgCond])
	require.Equal(t, 1, counts[MsgGEP])
	require.Equal(t, 1, counts[MsgMemcmp])
	require.Equal(t, 1, counts[MsgFsize])
	require.Equal(t, 1, counts[MsgLoop])
	require.Equal(t, 1, counts[MsgFini])
}

// TestTruncatedTrailerAborts covers the second half of property 9: a
// truncated trailer aborts the loop without consuming later bytes.
func TestTruncatedTrailerAborts(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	go func() {
		defer w.Close()
		writeHeader(t, w, Header{MsgType: MsgCond})
		// Write a short trailer -- less than CondTrailerSize.
		_, _ = w.Write([]byte{1, 2, 3})
	}()

	reader := NewReader(r)
	_, err = reader.Next()
	require.ErrorIs(t, err, ErrTruncatedMessage)
}

func TestUnknownMessageTypeAborts(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()

	go func() {
		defer w.Close()
		writeHeader(t, w, Header{MsgType: MsgType(99)})
	}()

	reader := NewReader(r)
	_, err = reader.Next()
	require.ErrorIs(t, err, ErrUnknownMessageType)
}

package packetio

import (
	"bytes"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{Stream: 0, PTS: 0, Seq: 1, TraceID: "a", ArrivedAt: at, Data: bytes.Repeat([]byte{1}, 1024)},
		{Stream: 1, PTS: 400, Seq: 2, TraceID: "b", ArrivedAt: at.Add(time.Millisecond), Data: []byte{9, 8, 7}},
		{Stream: 0, PTS: 33333, Seq: 3, TraceID: "c", ArrivedAt: at.Add(33 * time.Millisecond), Data: bytes.Repeat([]byte{2}, 4096)},
	}
}

func TestWriterReader(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "zstd"
		}
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, compress)
			require.NoError(t, err)

			want := sampleRecords()
			for _, r := range want {
				require.NoError(t, w.Write(r))
			}
			require.NoError(t, w.Close())
			assert.Equal(t, len(want), w.Count())

			r, err := NewReader(&buf)
			require.NoError(t, err)
			defer r.Close()
			assert.Equal(t, compress, r.Compressed())

			for i := range want {
				got, err := r.Next()
				require.NoError(t, err, "record %d", i)
				assert.Equal(t, want[i].Seq, got.Seq)
				assert.Equal(t, want[i].Stream, got.Stream)
				assert.Equal(t, want[i].PTS, got.PTS)
				assert.Equal(t, want[i].TraceID, got.TraceID)
				assert.True(t, want[i].ArrivedAt.Equal(got.ArrivedAt))
				assert.Equal(t, want[i].Data, got.Data)
			}

			_, err = r.Next()
			assert.ErrorIs(t, err, io.EOF)
		})
	}
}

func TestCompressionShrinksRepetitiveData(t *testing.T) {
	sizeOf := func(compress bool) int {
		var buf bytes.Buffer
		w, err := NewWriter(&buf, compress)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			require.NoError(t, w.Write(Record{Seq: uint64(i), Data: make([]byte, 8192)}))
		}
		require.NoError(t, w.Close())
		return buf.Len()
	}

	assert.Less(t, sizeOf(true), sizeOf(false)/10)
}

func TestReader_BadHeader(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("XXXX\x01\x00")},
		{"future version", []byte("DCAP\x09\x00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data))
			assert.ErrorIs(t, err, ErrBadHeader)
		})
	}
}

func TestReader_Truncated(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, false)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecords()[0]))
	require.NoError(t, w.Close())

	cut := buf.Bytes()[:buf.Len()-10]
	r, err := NewReader(bytes.NewReader(cut))
	require.NoError(t, err)

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF), "got %v", err)
}

func TestReader_RecordTooLarge(t *testing.T) {
	data := append([]byte("DCAP\x01\x00"), 0xFF, 0xFF, 0xFF, 0xFF)
	r, err := NewReader(bytes.NewReader(data))
	require.NoError(t, err)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestWriter_RecordTooLarge(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, false)
	require.NoError(t, err)

	big := sampleRecords()[0]
	big.Data = make([]byte, maxRecordSize+1)
	assert.ErrorIs(t, w.Write(big), ErrRecordTooLarge)
	assert.Equal(t, 0, w.Count())

	// The stream stays readable after a rejected record
	require.NoError(t, w.Write(sampleRecords()[1]))
	require.NoError(t, w.Close())

	r, err := NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	rec, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, sampleRecords()[1].Seq, rec.Seq)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dump.dcap")
	w, err := Create(path, true)
	require.NoError(t, err)
	require.NoError(t, w.Write(sampleRecords()[1]))
	require.NoError(t, w.Close())

	_, err = Create(filepath.Join(t.TempDir(), "missing", "dump.dcap"), false)
	assert.Error(t, err)
}

package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xivanov/dex-core/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	sink := NewJsonlStorage(path)

	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 1, Topics: []string{"0x01"}}}))
	require.NoError(t, sink.PutLogBatch(nil))
	require.NoError(t, sink.PutLogBatch([]model.LogRecord{{BlockNumber: 2}, {BlockNumber: 3}}))

	records, err := ReadLogRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, uint64(1), records[0].BlockNumber)
	assert.Equal(t, "0x01", records[0].Topic0())
	assert.Equal(t, uint64(3), records[2].BlockNumber)
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		w, err := NewJSONLWriter(path, false)
		require.NoError(t, err)
		require.NoError(t, w.Write(map[string]int{"n": i}))
		require.NoError(t, w.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"n\":1}\n", string(data))
}

func TestReadJSONLSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n\n  \n{\"a\":1}\n"), 0o644))

	var lines []string
	require.NoError(t, ReadJSONL(path, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}))
	assert.Equal(t, []string{"{}", "{\"a\":1}"}, lines)

	stop := errors.New("stop")
	err := ReadJSONL(path, func([]byte) error { return stop })
	require.ErrorIs(t, err, stop)

	_, err = ReadLogRecords(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestJSONFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cursor.json")
	var got struct{ Last uint64 }

	ok, err := ReadJSONFile(path, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteJSONFile(path, struct{ Last uint64 }{Last: 42}))
	ok, err = ReadJSONFile(path, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(42), got.Last)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, errors.Is(err, os.ErrNotExist))

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, err = ReadJSONFile(path, &got)
	assert.Error(t, err)
}

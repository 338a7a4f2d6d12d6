package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, data []byte) []string {
	t.Helper()
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRecorderWritesHeaderAndEvents(t *testing.T) {
	var out bytes.Buffer
	rec, err := NewRecorderWithWriter(&out, 80, 24)
	require.NoError(t, err)

	require.NoError(t, rec.Output([]byte("\x1b[32m$ \x1b[0m")))
	require.NoError(t, rec.Input([]byte("ls\r")))
	require.NoError(t, rec.Resize(120, 40))
	require.NoError(t, rec.Close())

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 4)

	var header Header
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, 2, header.Version)
	assert.Equal(t, 80, header.Width)
	assert.Equal(t, 24, header.Height)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, EventOutput, ev.Type)
	assert.Equal(t, "\x1b[32m$ \x1b[0m", ev.Data)

	require.NoError(t, json.Unmarshal([]byte(lines[2]), &ev))
	assert.Equal(t, EventInput, ev.Type)
	assert.Equal(t, "ls\r", ev.Data)

	require.NoError(t, json.Unmarshal([]byte(lines[3]), &ev))
	assert.Equal(t, EventResize, ev.Type)
	assert.Equal(t, "120x40", ev.Data)
}

func TestRecorderJoinsSplitOutput(t *testing.T) {
	var out bytes.Buffer
	rec, err := NewRecorderWithWriter(&out, 80, 24)
	require.NoError(t, err)

	euro := []byte("€")
	require.NoError(t, rec.Output(append([]byte("a"), euro[:1]...)))
	require.NoError(t, rec.Output(euro[1:2]))
	require.NoError(t, rec.Output(append(euro[2:], 'b')))

	lines := readLines(t, out.Bytes())
	require.Len(t, lines, 3)

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &ev))
	assert.Equal(t, "a", ev.Data)
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &ev))
	assert.Equal(t, "€b", ev.Data)
}

func TestRecorderIgnoresWritesAfterClose(t *testing.T) {
	var out bytes.Buffer
	rec, err := NewRecorderWithWriter(&out, 80, 24)
	require.NoError(t, err)
	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	require.NoError(t, rec.Output([]byte("late")))
	assert.Len(t, readLines(t, out.Bytes()), 1)
}

func TestNewRecorderCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "room-1.cast")
	rec, err := NewRecorder(path, "room 1", 100, 30)
	require.NoError(t, err)
	require.NoError(t, rec.Output([]byte("hi")))
	require.NoError(t, rec.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := readLines(t, data)
	require.Len(t, lines, 2)

	var header Header
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &header))
	assert.Equal(t, "room 1", header.Title)
}

func TestEventUnmarshalRejectsBadShape(t *testing.T) {
	var ev Event
	assert.Error(t, json.Unmarshal([]byte(`[1.0, "o"]`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`["x", "o", "d"]`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`[1.0, 2, "d"]`), &ev))
	assert.Error(t, json.Unmarshal([]byte(`[1.0, "o", 3]`), &ev))
}

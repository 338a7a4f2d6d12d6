// Package logger records shared terminal sessions as asciinema v2 casts.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/collab-hub/relay/internal/buffer"
)

// Event types of the asciinema v2 format.
const (
	EventOutput = "o"
	EventInput  = "i"
	EventResize = "r"
)

// Header is the first line of an asciinema v2 recording.
type Header struct {
	Version   int               `json:"version"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Timestamp int64             `json:"timestamp"`
	Title     string            `json:"title,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
}

// Event is one recorded line: [time_offset, event_type, data].
type Event struct {
	TimeOffset float64
	Type       string
	Data       string
}

// MarshalJSON encodes the event as a three element array.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.TimeOffset, e.Type, e.Data})
}

// UnmarshalJSON decodes a three element array.
func (e *Event) UnmarshalJSON(data []byte) error {
	var arr []any
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid event format: expected 3 elements, got %d", len(arr))
	}

	offset, ok := arr[0].(float64)
	if !ok {
		return fmt.Errorf("invalid time offset type")
	}
	typ, ok := arr[1].(string)
	if !ok {
		return fmt.Errorf("invalid event type")
	}
	payload, ok := arr[2].(string)
	if !ok {
		return fmt.Errorf("invalid event data type")
	}

	e.TimeOffset, e.Type, e.Data = offset, typ, payload
	return nil
}

// Recorder writes terminal output, input and resizes of one session.
// It is safe for concurrent use: output arrives from the read loop while
// input arrives from any attached connection.
type Recorder struct {
	mu     sync.Mutex
	w      io.Writer
	file   *os.File
	start  time.Time
	closed bool

	// partial is an output sequence cut by a read boundary.
	partial []byte
}

// NewRecorder creates the cast file at path and writes its header.
func NewRecorder(path, title string, cols, rows int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create cast file: %w", err)
	}

	r := &Recorder{w: file, file: file, start: time.Now()}
	if err := r.writeHeader(title, cols, rows); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewRecorderWithWriter records into w. Used by tests.
func NewRecorderWithWriter(w io.Writer, cols, rows int) (*Recorder, error) {
	r := &Recorder{w: w, start: time.Now()}
	if err := r.writeHeader("", cols, rows); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader(title string, cols, rows int) error {
	data, err := json.Marshal(Header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.start.Unix(),
		Title:     title,
		Env:       map[string]string{"TERM": "xterm-color"},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Output records bytes emitted by the process. A trailing UTF-8 sequence cut
// short is recorded with the next call.
func (r *Recorder) Output(data []byte) error {
	r.mu.Lock()
	if len(r.partial) > 0 {
		data = append(r.partial, data...)
		r.partial = nil
	}
	data, rest := buffer.SplitIncompleteRune(data)
	if len(rest) > 0 {
		r.partial = append([]byte(nil), rest...)
	}
	r.mu.Unlock()

	if len(data) == 0 {
		return nil
	}
	return r.write(EventOutput, string(data))
}

// Input records bytes written to the process.
func (r *Recorder) Input(data []byte) error {
	return r.write(EventInput, string(data))
}

// Resize records a window size change.
func (r *Recorder) Resize(cols, rows int) error {
	return r.write(EventResize, fmt.Sprintf("%dx%d", cols, rows))
}

func (r *Recorder) write(typ, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	line, err := json.Marshal(Event{
		TimeOffset: time.Since(r.start).Seconds(),
		Type:       typ,
		Data:       data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close stops recording and closes the file if the recorder owns one.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

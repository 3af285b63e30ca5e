// Package wire implements the relay mesh's framing: one JSON object per
// line, UTF-8, newline-terminated. Every socket in the mesh — client to
// broker, broker to broker, client to directory — speaks this same framing.
package wire

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// maxFrameBytes bounds a single line so a misbehaving peer can't exhaust
// memory with an unterminated stream.
const maxFrameBytes = 1 << 20

// Decoder reads one JSON frame per line from the underlying reader.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps r for line-delimited JSON reads.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 4096), maxFrameBytes)
	return &Decoder{scanner: s}
}

// ReadFrame reads the next line and unmarshals it into v. It returns
// io.EOF when the underlying stream is closed cleanly.
func (d *Decoder) ReadFrame(v interface{}) error {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return err
		}
		return io.EOF
	}
	line := d.scanner.Bytes()
	if len(line) == 0 {
		// Tolerate blank keep-alive lines without treating them as a frame.
		return d.ReadFrame(v)
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("wire: decode frame: %w", err)
	}
	return nil
}

// RawFrame reads the next line without unmarshaling, so a caller can peek at
// a discriminator field (e.g. "command") before deciding which struct to
// decode into.
func (d *Decoder) RawFrame() ([]byte, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	line := d.scanner.Bytes()
	if len(line) == 0 {
		return d.RawFrame()
	}
	out := make([]byte, len(line))
	copy(out, line)
	return out, nil
}

// Encoder writes one JSON object per line to the underlying writer.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w for line-delimited JSON writes.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteFrame marshals v and writes it followed by a newline.
func (e *Encoder) WriteFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// Discriminator is the minimal envelope used to sniff a frame's kind before
// fully decoding it into the right struct.
type Discriminator struct {
	Command     string `json:"command"`
	MessageType string `json:"message type"`
}

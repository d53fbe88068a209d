package stream

import (
	"bytes"
	"io"
	"strings"

	"github.com/valyala/bytebufferpool"
)

// Wire format: each event is an `event: <type>` line followed by one
// `data: <line>` line per content line, terminated by a blank line.
// Multi-line content is rejoined with newlines on decode. A frame with no
// event line decodes with the default "message" type.

var frameSep = []byte("\n\n")

// Encode serializes one event into its wire frame.
func Encode(ev Event) []byte {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	typ := ev.Type
	if typ == "" {
		typ = EventMessage
	}
	buf.WriteString("event: ")
	buf.WriteString(typ)
	buf.WriteByte('\n')
	for _, line := range strings.Split(ev.Data, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// Decode consumes an arbitrary byte fragment plus the carry-over from the
// previous call and returns every event completed by this fragment along
// with the new carry-over. It holds no other state, so splitting the same
// bytes across calls at any boundary yields the same events.
func Decode(carry, fragment []byte) ([]Event, []byte) {
	buf := make([]byte, 0, len(carry)+len(fragment))
	buf = append(buf, carry...)
	buf = append(buf, fragment...)

	var events []Event
	for {
		i := bytes.Index(buf, frameSep)
		if i < 0 {
			break
		}
		frame := buf[:i]
		buf = buf[i+len(frameSep):]
		if ev, ok := parseFrame(frame); ok {
			events = append(events, ev)
		}
	}
	return events, buf
}

func parseFrame(frame []byte) (Event, bool) {
	if len(frame) == 0 {
		return Event{}, false
	}
	typ := EventMessage
	var data []string
	for _, raw := range strings.Split(string(frame), "\n") {
		switch {
		case strings.HasPrefix(raw, "event:"):
			typ = strings.TrimSpace(raw[len("event:"):])
		case strings.HasPrefix(raw, "data:"):
			v := raw[len("data:"):]
			// one leading space is a formatting artifact, not content
			if strings.HasPrefix(v, " ") {
				v = v[1:]
			}
			data = append(data, v)
		default:
			// comment or unknown field, skip
		}
	}
	return Event{Type: typ, Data: strings.Join(data, "\n")}, true
}

type flusher interface{ Flush() }

// Encoder writes frames to a transport, flushing after each one when the
// underlying writer supports it.
type Encoder struct {
	w io.Writer
	f flusher
}

func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(flusher); ok {
		e.f = f
	}
	return e
}

func (e *Encoder) Emit(ev Event) error {
	if _, err := e.w.Write(Encode(ev)); err != nil {
		return err
	}
	if e.f != nil {
		e.f.Flush()
	}
	return nil
}

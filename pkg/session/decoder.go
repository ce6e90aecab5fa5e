package session

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/degreepathco/advisor/pkg/tutor"
)

const eventPrefix = "data: "

// eventDecoder incrementally turns raw response bytes into decoded
// tutor.StreamEvents. Chunk boundaries carry no meaning: a multi-byte
// character or a newline-delimited record may be split anywhere, so the
// decoder keeps two pieces of carry-over state between feeds: the trailing
// bytes of an incomplete UTF-8 sequence, and the text of an incomplete line.
// Carry-over is applied in arrival order before any record is parsed.
type eventDecoder struct {
	carry     []byte          // incomplete UTF-8 tail from the previous chunk
	line      strings.Builder // incomplete line from the previous chunk
	malformed int             // data: lines whose JSON did not parse
}

// Feed decodes one chunk of raw bytes and returns the stream events from
// every line completed by it, in delivery order.
//
// Lines without the "data: " prefix are ignored. Lines whose JSON payload
// fails to parse are counted and skipped: the upstream writes records
// incrementally and a line cut mid-object is expected, not an error.
func (d *eventDecoder) Feed(chunk []byte) []tutor.StreamEvent {
	text := d.decode(chunk)
	if text == "" {
		return nil
	}

	var events []tutor.StreamEvent
	for {
		nl := strings.IndexByte(text, '\n')
		if nl < 0 {
			d.line.WriteString(text)
			break
		}

		d.line.WriteString(text[:nl])
		text = text[nl+1:]

		line := d.line.String()
		d.line.Reset()

		if ev, ok := d.parseLine(line); ok {
			events = append(events, ev)
		}
	}
	return events
}

// Flush returns the event from a final unterminated line, if any. Called
// once when the stream closes; a trailing record without a newline would
// otherwise be lost.
func (d *eventDecoder) Flush() (tutor.StreamEvent, bool) {
	if d.line.Len() == 0 && len(d.carry) == 0 {
		return tutor.StreamEvent{}, false
	}
	d.line.Write(d.carry)
	d.carry = nil
	line := d.line.String()
	d.line.Reset()
	return d.parseLine(line)
}

// Malformed reports how many data: lines were discarded as unparseable.
// A handful is normal on a chunked stream; a persistently climbing count
// points at a broken upstream.
func (d *eventDecoder) Malformed() int {
	return d.malformed
}

func (d *eventDecoder) parseLine(line string) (tutor.StreamEvent, bool) {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, eventPrefix) {
		return tutor.StreamEvent{}, false
	}

	payload := strings.TrimSpace(line[len(eventPrefix):])
	if payload == "" {
		return tutor.StreamEvent{}, false
	}

	var ev tutor.StreamEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		d.malformed++
		return tutor.StreamEvent{}, false
	}
	return ev, true
}

// decode converts chunk to a string of complete runes, holding back any
// trailing bytes that begin a multi-byte sequence the next chunk will finish.
func (d *eventDecoder) decode(chunk []byte) string {
	b := chunk
	if len(d.carry) > 0 {
		b = append(d.carry, chunk...)
		d.carry = nil
	}

	n := trailingIncomplete(b)
	if n > 0 {
		d.carry = append([]byte(nil), b[len(b)-n:]...)
		b = b[:len(b)-n]
	}
	return string(b)
}

// trailingIncomplete returns how many bytes at the end of b belong to an
// incomplete UTF-8 sequence, or 0 when b ends on a rune boundary.
func trailingIncomplete(b []byte) int {
	for i := 1; i <= utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

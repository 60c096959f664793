package display

import (
	"bytes"
	"time"
)

// ScrollParams tune how far and how often a long line advances.
type ScrollParams struct {
	MinScroll int
	MaxScroll int
	Period    time.Duration
}

// ScrollLine holds one region of encoded text together with its scroll
// position, line span and the time it last moved.
type ScrollLine struct {
	text      []byte
	offset    int
	numLines  int
	lastMoved time.Time
}

// NewScrollLine encodes text for a region spanning numLines lines.
func NewScrollLine(text string, numLines int) *ScrollLine {
	return &ScrollLine{
		text:      Encode(text),
		numLines:  numLines,
		lastMoved: time.Now(),
	}
}

// UpdateIfChanged re-encodes newText and, only if the encoded bytes differ
// from the current ones, replaces them and resets the scroll state.
func (s *ScrollLine) UpdateIfChanged(newText string) {
	encoded := Encode(newText)
	if bytes.Equal(s.text, encoded) {
		return
	}
	s.text = encoded
	s.offset = 0
	s.lastMoved = time.Now()
}

// Tick advances the scroll position if the text overflows visibleCells and
// the scroll period has elapsed. The offset moves to the first space between
// MinScroll and MaxScroll bytes ahead, or by MinScroll when no space falls in
// that window; once fewer than 10 bytes remain it wraps to the start.
func (s *ScrollLine) Tick(now time.Time, params ScrollParams, visibleCells int) {
	if len(s.text) <= visibleCells || now.Sub(s.lastMoved) < params.Period {
		return
	}

	increment := params.MinScroll
	for i := params.MinScroll; i < params.MaxScroll && i < len(s.text); i++ {
		if s.text[i] == ' ' {
			increment = i
			break
		}
	}

	s.offset += increment
	if s.offset > len(s.text) || len(s.text)-s.offset < 10 {
		s.offset = 0
	}
	s.lastMoved = now
}

// Bytes returns the encoded text from the scroll position onward.
func (s *ScrollLine) Bytes() []byte {
	if s.offset >= len(s.text) {
		return nil
	}
	return s.text[s.offset:]
}

// NumLines reports how many display lines this region spans.
func (s *ScrollLine) NumLines() int { return s.numLines }

// Offset reports the current scroll position in encoded bytes.
func (s *ScrollLine) Offset() int { return s.offset }

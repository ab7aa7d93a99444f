package telegram

import (
	"strings"
	"unicode/utf8"
)

const fence = "```"

// fenceCost is the room kept free in every chunk for closing a code block.
const fenceCost = len("\n" + fence)

// SplitMessage breaks text into chunks of at most limit characters, cutting on
// line boundaries. A code block that spans a cut is closed at the end of one
// chunk and reopened at the start of the next so each chunk renders on its own.
// Lines longer than a chunk are cut mid-line, never directly after a backslash.
func SplitMessage(text string, limit int) []string {
	if limit <= 2*fenceCost || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	s := splitter{limit: limit}
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		for _, piece := range cutLine(line, limit-2*fenceCost) {
			s.add(piece)
		}
	}
	if s.size > s.base {
		s.chunks = append(s.chunks, s.cur.String())
	}
	return s.chunks
}

type splitter struct {
	limit   int
	chunks  []string
	cur     strings.Builder
	size    int
	base    int
	inFence bool
}

func (s *splitter) add(line string) {
	n := utf8.RuneCountInString(line)
	if s.size > s.base && s.size+n+fenceCost > s.limit {
		s.flush()
	}
	s.cur.WriteString(line)
	s.size += n
	if strings.HasPrefix(strings.TrimSpace(line), fence) {
		s.inFence = !s.inFence
	}
}

func (s *splitter) flush() {
	chunk := s.cur.String()
	if s.inFence {
		chunk = strings.TrimSuffix(chunk, "\n") + "\n" + fence
	}
	s.chunks = append(s.chunks, chunk)

	s.cur.Reset()
	s.size, s.base = 0, 0
	if s.inFence {
		s.cur.WriteString(fence + "\n")
		s.size = utf8.RuneCountInString(fence + "\n")
		s.base = s.size
	}
}

// cutLine splits line into pieces of at most max runes.
func cutLine(line string, max int) []string {
	runes := []rune(line)
	if len(runes) <= max {
		return []string{line}
	}
	var pieces []string
	for len(runes) > 0 {
		end := max
		if end >= len(runes) {
			end = len(runes)
		} else {
			for end > 1 && runes[end-1] == '\\' {
				end--
			}
		}
		pieces = append(pieces, string(runes[:end]))
		runes = runes[end:]
	}
	return pieces
}

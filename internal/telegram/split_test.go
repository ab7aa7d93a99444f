package telegram

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessage_Short(t *testing.T) {
	got := SplitMessage("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("SplitMessage() = %q", got)
	}
}

func TestSplitMessage_RespectsLimitAndLines(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 200; i++ {
		fmt.Fprintf(&b, "ΔOI row %03d\n", i)
	}
	text := b.String()

	chunks := SplitMessage(text, 120)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 120 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if i < len(chunks)-1 && !strings.HasSuffix(c, "\n") {
			t.Errorf("chunk %d does not end on a line boundary: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != text {
		t.Error("chunks lost content")
	}
}

func TestSplitMessage_ReopensCodeBlocks(t *testing.T) {
	var b strings.Builder
	b.WriteString("*title*\n```\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, "%5d | %8s\n", 24000+i*50, "1.00L")
	}
	b.WriteString("```\nfooter")
	text := b.String()

	chunks := SplitMessage(text, 200)
	if len(chunks) < 3 {
		t.Fatalf("got %d chunks", len(chunks))
	}

	var rebuilt strings.Builder
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 200 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
		if strings.Count(c, fence)%2 != 0 {
			t.Errorf("chunk %d has unbalanced code fences: %q", i, c)
		}
		if i > 0 {
			c = strings.TrimPrefix(c, fence+"\n")
		}
		if i < len(chunks)-1 {
			c = strings.TrimSuffix(c, fence)
		}
		rebuilt.WriteString(c)
	}
	if rebuilt.String() != text {
		t.Errorf("rebuilt text differs:\n%s", rebuilt.String())
	}
}

func TestSplitMessage_LongLine(t *testing.T) {
	line := strings.Repeat("a", 95) + "\\." + strings.Repeat("b", 200)
	chunks := SplitMessage(line, 100)
	for i, c := range chunks {
		if utf8.RuneCountInString(c) > 100 {
			t.Errorf("chunk %d too long", i)
		}
		if strings.HasSuffix(c, "\\") {
			t.Errorf("chunk %d ends inside an escape: %q", i, c)
		}
	}
	if strings.Join(chunks, "") != line {
		t.Error("chunks lost content")
	}
}

package format

import "strings"

// EscapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// EscapeCode escapes text placed inside a MarkdownV2 pre/code entity, where only
// '`' and '\' are special.
func EscapeCode(text string) string {
	r := strings.NewReplacer(`\`, `\\`, "`", "\\`")
	return r.Replace(text)
}

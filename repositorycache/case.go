package repositorycache

import (
	"strings"
	"unicode"
)

// snakeCase renders a reflected type or field name as a lower snake_case key
// namespace. Anything that is not a letter or digit separates words.
func snakeCase(s string) string {
	return strings.ToLower(strings.Join(splitWords(s), "_"))
}

// splitWords breaks an identifier at case changes, at the end of an acronym
// ("HTTPServer" is HTTP, Server) and where digits start.
func splitWords(s string) []string {
	runes := []rune(s)

	var (
		words []string
		word  []rune
	)
	flush := func() {
		if len(word) > 0 {
			words = append(words, string(word))
			word = word[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(word) > 0 && startsWord(runes, i) {
			flush()
		}
		word = append(word, r)
	}
	flush()

	return words
}

// startsWord reports whether runes[i] opens a new word. runes[i-1] is a
// letter or digit.
func startsWord(runes []rune, i int) bool {
	prev, r := runes[i-1], runes[i]
	switch {
	case unicode.IsUpper(r):
		if unicode.IsLower(prev) || unicode.IsDigit(prev) {
			return true
		}
		return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
	case unicode.IsDigit(r):
		return !unicode.IsDigit(prev)
	}
	return false
}

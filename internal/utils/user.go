package utils

import (
	"strings"
	"unicode"
)

// Initials 头像占位用的首字母，最多两个
func Initials(name string) string {
	letters := make([]rune, 0, 2)
	for _, part := range strings.Fields(name) {
		r := []rune(part)
		if !unicode.IsLetter(r[0]) {
			continue
		}
		letters = append(letters, unicode.ToUpper(r[0]))
		if len(letters) == 2 {
			break
		}
	}
	if len(letters) == 0 {
		return "U"
	}
	return string(letters)
}

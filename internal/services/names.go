package services

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// maxNameRunes matches the varchar(255) name columns.
const maxNameRunes = 255

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// usernameRE matches a public channel handle as accepted by the Bot API.
var usernameRE = regexp.MustCompile(`^@[A-Za-z][A-Za-z0-9_]{3,31}$`)

// normalizeName NFC-normalizes a display name, trims it, collapses inner
// whitespace and clips it to maxNameRunes.
func normalizeName(s string) string {
	s = norm.NFC.String(s)
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes])
	}
	return s
}

// normalizeChannelID trims id and checks it is either a numeric chat id
// (e.g. -100123…) or an @username.
func normalizeChannelID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrInvalidChannelID
	}
	if strings.HasPrefix(id, "@") {
		if !usernameRE.MatchString(id) {
			return "", ErrInvalidChannelID
		}
		return id, nil
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return "", ErrInvalidChannelID
	}
	return id, nil
}

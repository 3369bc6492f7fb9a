package utils

import (
	"strconv"
	"strings"
)

// Pointer returns a pointer to the given value
func Pointer[T any](v T) *T {
	return &v
}

// ParseUint safely parses a string to uint
func ParseUint(s string) uint {
	i, _ := strconv.ParseUint(s, 10, 32)
	return uint(i)
}

// NormalizePhone strips everything but digits from a phone number. Whapi
// addresses are plain digit strings with country code, no plus sign.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RenderTemplate substitutes {NOMBRE} with the contact's name, falling back
// to a neutral greeting when the name is unknown
func RenderTemplate(template, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "👋"
	}
	return strings.ReplaceAll(template, "{NOMBRE}", name)
}

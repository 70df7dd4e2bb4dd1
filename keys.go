package tagpool

import "strings"

// reservedChars is the set of characters keys, tags and namespaces may
// never contain (spec.md §6).
const reservedChars = "{}()/\\@:"

// ValidateKey checks s against the restricted character set spec.md §6
// requires of keys, tags and namespaces: printable, no control
// characters, none of reservedChars.
func ValidateKey(s string) error {
	if s == "" {
		return ErrInvalidKey
	}
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidKey
		}
		if strings.ContainsRune(reservedChars, r) {
			return ErrInvalidKey
		}
	}
	return nil
}

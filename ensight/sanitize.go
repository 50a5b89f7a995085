package ensight

import (
	"strings"
)

// Native journal identifiers (class nouns, command names) are lowercase words
// over [a-z0-9_#]. They never start with `_`, and they never contain the
// literal word "number" except as the encoded form of `#`. Those two
// vocabulary rules are what make the renaming below reversible per symbol,
// with no session state.
//
// Binding identifiers must be legal exported-or-local Go identifier tails:
// no `#`, no leading digit, not a Go keyword.

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

// EncodeName maps a native journal identifier to its binding form:
//
//	each `#` becomes the word "number"
//	a leading digit gets a `_` prefix
//	a Go keyword gets a `_` prefix
//
// Names needing no transform pass through unchanged.
func EncodeName(native string) string {
	name := strings.ReplaceAll(native, "#", "number")
	if name == "" {
		return name
	}
	if isDigit(name[0]) || goKeywords[name] {
		name = "_" + name
	}
	return name
}

// DecodeName inverts EncodeName.
func DecodeName(binding string) string {
	name := binding
	if strings.HasPrefix(name, "_") {
		tail := name[1:]
		if tail != "" && (isDigit(tail[0]) || goKeywords[tail]) {
			name = tail
		}
	}
	return strings.ReplaceAll(name, "number", "#")
}

// IsBindingName reports whether name is a well formed binding identifier:
// nonempty, lowercase word characters only, no leading digit, not a Go
// keyword.
func IsBindingName(name string) bool {
	if name == "" {
		return false
	}
	if isDigit(name[0]) {
		return false
	}
	if goKeywords[name] {
		return false
	}
	for i := 0; i < len(name); i += 1 {
		c := name[i]
		if !('a' <= c && c <= 'z' || '0' <= c && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

// IsNativeName reports whether name is in the native journal vocabulary:
// nonempty, lowercase word characters or `#`, no leading `_`, and no literal
// "number".
func IsNativeName(name string) bool {
	if name == "" || name[0] == '_' {
		return false
	}
	if strings.Contains(name, "number") {
		return false
	}
	for i := 0; i < len(name); i += 1 {
		c := name[i]
		if !('a' <= c && c <= 'z' || '0' <= c && c <= '9' || c == '_' || c == '#') {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

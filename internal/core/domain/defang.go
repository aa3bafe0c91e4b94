package domain

import "strings"

// bracketReplacer undoes the bracket/parenthesis obfuscations used in CTI reports.
var bracketReplacer = strings.NewReplacer(
	"[://]", "://",
	"[.]", ".",
	"[dot]", ".",
	"(dot)", ".",
	"(.)", ".",
	"[@]", "@",
	"[at]", "@",
	"(at)", "@",
	"(@)", "@",
	"[:]", ":",
)

// Defang converts an obfuscated ("defanged") indicator back to its canonical form.
// Examples:
//
//	hxxp://example[.]com    -> http://example.com
//	192[.]168[.]1[.]1       -> 192.168.1.1
//	user[at]example(dot)com -> user@example.com
//
// The rewrite is repeated until the string stops changing, so nested obfuscation such as
// "[[.]]" is fully resolved and Defang(Defang(x)) == Defang(x) holds for every input.
func Defang(raw string) string {
	current := raw
	for {
		next := fangScheme(bracketReplacer.Replace(current))
		if next == current {
			return next
		}
		current = next
	}
}

// fangScheme rewrites hxxp:// and hxxps:// in any letter case.
func fangScheme(s string) string {
	if !containsFold(s, "hxxp") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		switch {
		case hasPrefixFold(s[i:], "hxxps://"):
			b.WriteString("https://")
			i += len("hxxps://")
		case hasPrefixFold(s[i:], "hxxp://"):
			b.WriteString("http://")
			i += len("hxxp://")
		default:
			b.WriteByte(s[i])
			i++
		}
	}
	return b.String()
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return true
		}
	}
	return false
}

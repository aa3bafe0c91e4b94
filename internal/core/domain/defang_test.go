package domain

import (
	"testing"
	"testing/quick"
)

func TestDefang(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"hxxp scheme", "hxxp://evil[.]com", "http://evil.com"},
		{"hxxps scheme", "hxxps://bad[.]site/path", "https://bad.site/path"},
		{"Mixed case scheme", "HXXPS://evil.com", "https://evil.com"},
		{"Bracketed scheme separator", "http[://]evil.com", "http://evil.com"},
		{"Bracketed separator after hxxp", "hxxp[://]evil[.]com", "http://evil.com"},
		{"Bracket dots", "192[.]168[.]1[.]1", "192.168.1.1"},
		{"Word dots", "evil[dot]com", "evil.com"},
		{"Paren dots", "evil(dot)co(.)uk", "evil.co.uk"},
		{"At variants", "a[at]b.com c(at)d.com e[@]f.com g(@)h.com", "a@b.com c@d.com e@f.com g@h.com"},
		{"Bracket colon", "evil.com[:]8080", "evil.com:8080"},
		{"Nested brackets", "evil[[.]]com", "evil.com"},
		{"Already fanged", "https://example.com", "https://example.com"},
		{"Plain text", "nothing here", "nothing here"},
		{"Empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Defang(tt.raw)
			if result != tt.expected {
				t.Errorf("Defang(%q) = %q, want %q", tt.raw, result, tt.expected)
			}
		})
	}
}

func TestDefangIdempotent(t *testing.T) {
	samples := []string{
		"hxxp[://]evil[.]com",
		"[[.]]",
		"hxxhxxp://p://",
		"user[at]example(dot)com",
		"HxXpS://a[.]b",
	}
	for _, s := range samples {
		once := Defang(s)
		if twice := Defang(once); twice != once {
			t.Errorf("Defang not idempotent for %q: %q then %q", s, once, twice)
		}
	}

	f := func(s string) bool {
		once := Defang(s)
		return Defang(once) == once
	}
	if err := quick.Check(f, nil); err != nil {
		t.Error(err)
	}
}

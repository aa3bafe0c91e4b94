package domain

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sha256Pattern = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
	sha1Pattern   = regexp.MustCompile(`^[a-fA-F0-9]{40}$`)
	md5Pattern    = regexp.MustCompile(`^[a-fA-F0-9]{32}$`)
	urlPattern    = regexp.MustCompile(`^https?://\S+`)
	emailPattern  = regexp.MustCompile(`^[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)
	ipv4Pattern   = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`)
	domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)
)

// Classify returns the indicator type of a single token.
//
// Checks run most specific first: fixed-length hashes, then the URL prefix, email,
// dotted-quad IPv4 and finally the generic domain shape. Anything else is Unknown.
func Classify(token string) IndicatorType {
	token = strings.TrimSpace(token)

	switch {
	case sha256Pattern.MatchString(token):
		return SHA256
	case sha1Pattern.MatchString(token):
		return SHA1
	case md5Pattern.MatchString(token):
		return MD5
	case urlPattern.MatchString(token):
		return URL
	case emailPattern.MatchString(token):
		return Email
	case ipv4Pattern.MatchString(token) && validOctets(token):
		return IPv4
	case ipv4Pattern.MatchString(token):
		// dotted-quad shape with an octet above 255 is neither an IP nor a domain
		return Unknown
	case domainPattern.MatchString(token):
		return Domain
	default:
		return Unknown
	}
}

func validOctets(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return false
		}
	}
	return true
}

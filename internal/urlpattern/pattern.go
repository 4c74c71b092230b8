// Package urlpattern implements the subset of the W3C URL Pattern draft
// that network.addIntercept's url-pattern matching needs: literal
// component matching with backslash-escaping of the five reserved
// pattern metacharacters, and the small set of normalization and
// validation rules spec.md §9 specifies.
package urlpattern

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Pattern is the structured form of a url-pattern intercept clause. A nil
// field means "unspecified" (matches any value for that component); a
// non-nil empty string is an explicit empty value, which is an error for
// Protocol, Hostname, and Port.
type Pattern struct {
	Protocol *string
	Hostname *string
	Port     *string
	Pathname *string
	Search   *string
}

// Compiled is a validated, normalized Pattern ready for matching.
type Compiled struct {
	protocol *string
	hostname *string
	port     *string
	pathname string
	search   *string
}

// reservedChars are the five characters the W3C URL Pattern grammar
// treats as metacharacters; this simplified matcher doesn't implement
// wildcards or regex groups, so an unescaped occurrence of any of them is
// rejected rather than silently taken as a literal.
const reservedChars = `()*{}`

// Compile validates and normalizes a structured Pattern.
func Compile(p Pattern) (*Compiled, error) {
	c := &Compiled{}

	if p.Protocol != nil {
		if *p.Protocol == "" {
			return nil, fmt.Errorf("protocol component must not be empty")
		}
		v, err := unescape(*p.Protocol)
		if err != nil {
			return nil, err
		}
		c.protocol = &v
	}

	if p.Hostname != nil {
		if *p.Hostname == "" {
			return nil, fmt.Errorf("hostname component must not be empty")
		}
		if strings.Contains(*p.Hostname, ":") {
			return nil, fmt.Errorf("hostname component must not contain ':'")
		}
		v, err := unescape(*p.Hostname)
		if err != nil {
			return nil, err
		}
		c.hostname = &v
	}

	if p.Port != nil {
		if *p.Port == "" {
			return nil, fmt.Errorf("port component must not be empty")
		}
		v, err := unescape(*p.Port)
		if err != nil {
			return nil, err
		}
		c.port = &v
	}

	if c.protocol != nil && strings.EqualFold(*c.protocol, "file") && c.hostname != nil && *c.hostname != "" {
		return nil, fmt.Errorf("file protocol must not specify a non-empty host")
	}

	pathname := "/"
	if p.Pathname != nil {
		v, err := unescape(*p.Pathname)
		if err != nil {
			return nil, err
		}
		pathname = v
	}
	c.pathname = pathname

	if p.Search != nil {
		v, err := unescape(*p.Search)
		if err != nil {
			return nil, err
		}
		if v != "" && !strings.HasPrefix(v, "?") {
			v = "?" + v
		}
		c.search = &v
	}

	return c, nil
}

var rawURLRe = regexp.MustCompile(`^(?:([^:/?#]+):)?(?://([^/?#]*))?([^?#]*)(?:(\?[^#]*))?`)

// ParseString splits a raw pattern string into its structured components
// (following the same protocol://hostname:port/pathname?search shape a URL
// has) without validating or normalizing them.
func ParseString(raw string) (Pattern, error) {
	m := rawURLRe.FindStringSubmatch(raw)
	if m == nil {
		return Pattern{}, fmt.Errorf("malformed url pattern string %q", raw)
	}

	var p Pattern
	if m[1] != "" {
		p.Protocol = &m[1]
	}
	if m[2] != "" {
		host, port := splitAuthority(m[2])
		if host != "" {
			p.Hostname = &host
		}
		if port != "" {
			p.Port = &port
		}
	}
	if m[3] != "" {
		p.Pathname = &m[3]
	}
	if m[4] != "" {
		search := strings.TrimPrefix(m[4], "?")
		p.Search = &search
	}

	return p, nil
}

// CompileString parses a raw pattern string into its components and
// compiles it the same way Compile does.
func CompileString(raw string) (*Compiled, error) {
	p, err := ParseString(raw)
	if err != nil {
		return nil, err
	}
	return Compile(p)
}

func splitAuthority(authority string) (host, port string) {
	idx := strings.LastIndex(authority, ":")
	if idx < 0 {
		return authority, ""
	}
	return authority[:idx], authority[idx+1:]
}

// unescape walks s, accepting `\` followed by one of the reserved
// metacharacters as an escaped literal, and rejecting any unescaped
// occurrence of a reserved metacharacter.
func unescape(s string) (string, error) {
	var b strings.Builder
	b.Grow(len(s))

	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\\' && i+1 < len(runes) && strings.ContainsRune(reservedChars, runes[i+1]) {
			b.WriteRune(runes[i+1])
			i++
			continue
		}
		if strings.ContainsRune(reservedChars, r) {
			return "", fmt.Errorf("unescaped reserved character %q in url pattern", r)
		}
		b.WriteRune(r)
	}
	return b.String(), nil
}

// Match reports whether targetURL satisfies every component the pattern
// specifies. An unspecified component always matches.
func (c *Compiled) Match(targetURL string) (bool, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return false, fmt.Errorf("failed to parse target url: %w", err)
	}

	if c.protocol != nil && !strings.EqualFold(u.Scheme, *c.protocol) {
		return false, nil
	}
	if c.hostname != nil && u.Hostname() != *c.hostname {
		return false, nil
	}
	if c.port != nil && u.Port() != *c.port {
		return false, nil
	}
	if u.Path == "" {
		if c.pathname != "/" {
			return false, nil
		}
	} else if u.Path != c.pathname {
		return false, nil
	}
	if c.search != nil {
		targetSearch := ""
		if u.RawQuery != "" {
			targetSearch = "?" + u.RawQuery
		}
		if targetSearch != *c.search {
			return false, nil
		}
	}
	return true, nil
}

package urlpattern

import "testing"

func strPtr(s string) *string { return &s }

func TestCompile_EmptyProtocolIsError(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Protocol: strPtr("")})
	if err == nil {
		t.Fatal("expected error for empty protocol")
	}
}

func TestCompile_EmptyHostnameIsError(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Hostname: strPtr("")})
	if err == nil {
		t.Fatal("expected error for empty hostname")
	}
}

func TestCompile_EmptyPortIsError(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Port: strPtr("")})
	if err == nil {
		t.Fatal("expected error for empty port")
	}
}

func TestCompile_HostnameContainingColonIsError(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Hostname: strPtr("example.com:8080")})
	if err == nil {
		t.Fatal("expected error for hostname containing colon")
	}
}

func TestCompile_MissingPathnameDefaultsToSlash(t *testing.T) {
	t.Parallel()

	c, err := Compile(Pattern{Hostname: strPtr("example.com")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.pathname != "/" {
		t.Errorf("expected default pathname /, got %q", c.pathname)
	}
}

func TestCompile_MissingLeadingQuestionMarkInjected(t *testing.T) {
	t.Parallel()

	c, err := Compile(Pattern{Search: strPtr("foo=bar")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *c.search != "?foo=bar" {
		t.Errorf("expected ?foo=bar, got %q", *c.search)
	}
}

func TestCompile_FileProtocolWithNonEmptyHostIsError(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Protocol: strPtr("file"), Hostname: strPtr("example.com")})
	if err == nil {
		t.Fatal("expected error for file protocol with non-empty host")
	}
}

func TestCompile_FileProtocolWithNoHostIsOK(t *testing.T) {
	t.Parallel()

	_, err := Compile(Pattern{Protocol: strPtr("file")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCompile_UnescapedReservedCharIsError(t *testing.T) {
	t.Parallel()

	for _, ch := range []string{"(", ")", "*", "{", "}"} {
		_, err := Compile(Pattern{Pathname: strPtr("/foo" + ch + "bar")})
		if err == nil {
			t.Errorf("expected error for unescaped %q", ch)
		}
	}
}

func TestCompile_EscapedReservedCharIsAccepted(t *testing.T) {
	t.Parallel()

	c, err := Compile(Pattern{Pathname: strPtr(`/foo\(bar\)`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.pathname != "/foo(bar)" {
		t.Errorf("expected unescaped literal, got %q", c.pathname)
	}
}

func TestMatch_AllFieldsSpecified(t *testing.T) {
	t.Parallel()

	c, err := Compile(Pattern{
		Protocol: strPtr("https"),
		Hostname: strPtr("example.com"),
		Pathname: strPtr("/foo"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := c.Match("https://example.com/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected match")
	}

	ok, _ = c.Match("https://example.com/bar")
	if ok {
		t.Error("expected no match for different path")
	}

	ok, _ = c.Match("http://example.com/foo")
	if ok {
		t.Error("expected no match for different protocol")
	}
}

func TestMatch_UnspecifiedComponentMatchesAnything(t *testing.T) {
	t.Parallel()

	c, err := Compile(Pattern{Pathname: strPtr("/foo")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := c.Match("https://anything.example/foo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected match when protocol/hostname unspecified")
	}
}

func TestCompileString_BasicURL(t *testing.T) {
	t.Parallel()

	c, err := CompileString("https://example.com:8443/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := c.Match("https://example.com:8443/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected match")
	}

	ok, _ = c.Match("https://example.com:9999/path")
	if ok {
		t.Error("expected no match for different port")
	}
}

func TestCompileString_WithSearch(t *testing.T) {
	t.Parallel()

	c, err := CompileString("https://example.com/path?foo=bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := c.Match("https://example.com/path?foo=bar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("expected match")
	}
}

func TestCompileString_MalformedPatternString(t *testing.T) {
	t.Parallel()

	// The component regex always matches something (every group is
	// optional), so malformed-string detection is really about
	// downstream Compile validation; confirm a hostname with a raw
	// colon still trips the dedicated hostname check.
	_, err := CompileString("https://exa:mple:8080/path")
	if err == nil {
		t.Fatal("expected error due to colon-bearing hostname")
	}
}

package bidiproto

import "strings"

// ValidateHeaderValue rejects header values the CDP interception layer
// would reject: leading/trailing whitespace, embedded NUL, or a line feed
// (which would let a caller smuggle an extra header into the raw frame).
func ValidateHeaderValue(value string) error {
	if value == "" {
		return nil
	}
	if value[0] == ' ' || value[0] == '\t' || value[len(value)-1] == ' ' || value[len(value)-1] == '\t' {
		return NewError(ErrInvalidArgument, "header value has leading or trailing whitespace")
	}
	if strings.ContainsAny(value, "\n\x00") {
		return NewError(ErrInvalidArgument, "header value contains a forbidden byte")
	}
	return nil
}

// httpTokenChars are the characters RFC 9110 §5.6.2 allows in a token,
// which an HTTP method name must be.
const httpTokenChars = "!#$%&'*+-.^_`|~0123456789" +
	"abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidateHTTPMethod rejects a method string that is not a valid RFC 9110
// token, per the invalid argument case "command method syntactically
// invalid" applied to network interception's method override.
func ValidateHTTPMethod(method string) error {
	if method == "" {
		return NewError(ErrInvalidArgument, "method must not be empty")
	}
	for _, r := range method {
		if !strings.ContainsRune(httpTokenChars, r) {
			return NewError(ErrInvalidArgument, "method contains a character not allowed in an HTTP token")
		}
	}
	return nil
}

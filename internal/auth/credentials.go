package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Errors distinguishing the two failure classes of credential extraction.
// ErrMissing maps to 401, ErrMalformed to 400.
var (
	ErrMissing   = errors.New("authorization header missing")
	ErrMalformed = errors.New("malformed authorization header")
)

// Credentials are the signing credentials extracted from a request. They are
// passed through to the signer opaquely; the gateway never validates them
// against an identity provider.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// ParseBasicAuth extracts signing credentials from an HTTP Basic
// Authorization header value. The decoded payload must be valid UTF-8,
// contain a colon separating user and password, and contain no control
// characters. The decoded text is NFC-normalized before splitting.
func ParseBasicAuth(header string) (Credentials, error) {
	if header == "" {
		return Credentials{}, ErrMissing
	}

	scheme, payload, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Basic") {
		return Credentials{}, fmt.Errorf("%w: expected Basic scheme", ErrMalformed)
	}
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return Credentials{}, fmt.Errorf("%w: empty credentials", ErrMalformed)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: invalid base64", ErrMalformed)
	}
	if !utf8.Valid(raw) {
		return Credentials{}, fmt.Errorf("%w: credentials are not valid UTF-8", ErrMalformed)
	}

	decoded := norm.NFC.String(string(raw))
	for _, b := range []byte(decoded) {
		if b < 0x20 || b == 0x7f {
			return Credentials{}, fmt.Errorf("%w: control character in credentials", ErrMalformed)
		}
	}

	user, pass, found := strings.Cut(decoded, ":")
	if !found {
		return Credentials{}, fmt.Errorf("%w: missing colon separator", ErrMalformed)
	}

	return Credentials{AccessKeyID: user, SecretAccessKey: pass}, nil
}

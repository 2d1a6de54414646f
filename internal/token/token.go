// Package token encodes stored-content references into the URL-safe
// share tokens carried in deep links. The encoding is the external
// contract of the platform: tokens minted here must stay byte-identical
// across versions so previously shared links keep resolving.
package token

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const prefix = "file_"

// ErrDecode is returned for any token that does not carry a valid
// content reference. Callers treat it as "content not found".
var ErrDecode = errors.New("token: malformed share token")

// Encode turns a content reference into a share token: the literal
// "file_<ref>" in raw (unpadded) URL-safe base64.
func Encode(ref int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(prefix + strconv.FormatInt(ref, 10)))
}

// Decode recovers the content reference from a share token. Three
// shapes are accepted for backward compatibility with links minted by
// earlier builds:
//
//  1. the bare literal "file_<ref>" (never base64-encoded)
//  2. base64 of "file_<ref>" (the current format)
//  3. base64 of "<label>_<ref>" with a single underscore separator
//
// Anything else yields ErrDecode. Decode never panics on garbage.
func Decode(tok string) (int64, error) {
	if strings.HasPrefix(tok, prefix) {
		return parseRef(strings.TrimPrefix(tok, prefix))
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(tok, "="))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	decoded := string(raw)

	if strings.HasPrefix(decoded, prefix) {
		return parseRef(strings.TrimPrefix(decoded, prefix))
	}
	if strings.Count(decoded, "_") == 1 {
		_, rest, _ := strings.Cut(decoded, "_")
		return parseRef(rest)
	}
	return 0, ErrDecode
}

func parseRef(s string) (int64, error) {
	ref, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: non-numeric reference %q", ErrDecode, s)
	}
	return ref, nil
}

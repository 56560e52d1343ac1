package socket

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Key is the canonical identity of a pooled connection. Requests with
// equal keys share one physical connection.
type Key string

const anonPrefix = "anon:"

// defaultPorts are stripped from canonical keys.
var defaultPorts = map[string]string{
	"http":  "80",
	"ws":    "80",
	"https": "443",
	"wss":   "443",
}

// KeyFor returns the canonical connection key for req. The boolean is
// false when req has no absolute target; such requests are never pooled.
//
// The key is the normalised absolute URL: lower-case scheme and host,
// default port removed, empty path as "/", sorted query, no fragment.
// An Authorization header is folded in as a digest so requests made
// with different credentials never share a connection.
func KeyFor(req *http.Request) (Key, bool) {
	if req == nil || req.URL == nil {
		return "", false
	}

	return keyForURL(req.URL, req.Header.Get("Authorization"))
}

func keyForURL(u *url.URL, auth string) (Key, bool) {
	if !u.IsAbs() || u.Host == "" {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if port := u.Port(); port != "" && port != defaultPorts[scheme] {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	canon := url.URL{
		Scheme:   scheme,
		User:     u.User,
		Host:     host,
		Path:     u.Path,
		RawPath:  u.RawPath,
		RawQuery: u.Query().Encode(),
	}
	if canon.Path == "" {
		canon.Path = "/"
	}

	key := canon.String()
	if auth != "" {
		sum := sha256.Sum256([]byte(auth))
		key += "#auth=" + hex.EncodeToString(sum[:8])
	}

	return Key(key), true
}

// anonKey returns a unique key for a request that cannot be pooled.
func anonKey() Key {
	return Key(anonPrefix + uuid.NewString())
}

// IsAnonymous reports whether k identifies a throwaway connection.
func (k Key) IsAnonymous() bool {
	return strings.HasPrefix(string(k), anonPrefix)
}

package oauth

import (
	"encoding/base64"
	"net/url"
)

// BasicAuth returns the value of an HTTP Basic Authorization header for
// the given client credentials, per RFC 6749 section 2.3.1: the client id
// and secret are form-urlencoded before being joined with a colon and
// base64-encoded. The returned string includes the "Basic " prefix.
func BasicAuth(clientID, clientSecret string) string {
	creds := url.QueryEscape(clientID) + ":" + url.QueryEscape(clientSecret)
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
}

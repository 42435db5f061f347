package sasl

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestMD5 implements the DIGEST-MD5 SASL mechanism (RFC 2831), offered
// by servers between SCRAM-SHA-1 and PLAIN in the spec's preference order.
type DigestMD5 struct {
	creds     Credentials
	digestURI string // "xmpp/" + service domain
	cnonce    string
	step      int
	completed bool
}

// NewDigestMD5 creates a new DIGEST-MD5 mechanism for the given service
// domain (used to build the digest-uri, "xmpp/<domain>").
func NewDigestMD5(creds Credentials, domain string) *DigestMD5 {
	return &DigestMD5{creds: creds, digestURI: "xmpp/" + domain}
}

// Name returns "DIGEST-MD5".
func (d *DigestMD5) Name() string { return "DIGEST-MD5" }

// Start returns no initial response: DIGEST-MD5 is server-first.
func (d *DigestMD5) Start() ([]byte, error) {
	return nil, nil
}

// Next processes the server's digest-challenge (step 0) and its rspauth
// verification (step 1, which requires no further response).
func (d *DigestMD5) Next(challenge []byte) ([]byte, error) {
	switch d.step {
	case 0:
		d.step++
		return d.respondToChallenge(challenge)
	case 1:
		d.step++
		d.completed = true
		if !strings.Contains(string(challenge), "rspauth=") {
			return nil, ErrInvalidResponse
		}
		return []byte{}, nil
	default:
		return nil, ErrInvalidResponse
	}
}

// Completed returns true once the server's rspauth has been observed.
func (d *DigestMD5) Completed() bool { return d.completed }

func (d *DigestMD5) respondToChallenge(challenge []byte) ([]byte, error) {
	params := parseDigestDirectives(string(challenge))
	realm := params["realm"]
	nonce := params["nonce"]
	if nonce == "" {
		return nil, ErrInvalidResponse
	}

	nonceBytes := make([]byte, 16)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, err
	}
	d.cnonce = hex.EncodeToString(nonceBytes)

	const nc = "00000001"
	const qop = "auth"

	a1 := md5Sum(fmt.Sprintf("%s:%s:%s", d.creds.Username, realm, d.creds.Password))
	a1 = append(a1, []byte(fmt.Sprintf(":%s:%s", nonce, d.cnonce))...)
	if d.creds.AuthzID != "" {
		a1 = append(a1, []byte(":"+d.creds.AuthzID)...)
	}
	ha1 := hex.EncodeToString(md5Sum(string(a1)))

	a2 := fmt.Sprintf("AUTHENTICATE:%s", d.digestURI)
	ha2 := hex.EncodeToString(md5Sum(a2))

	kd := fmt.Sprintf("%s:%s:%s:%s:%s:%s", ha1, nonce, nc, d.cnonce, qop, ha2)
	response := hex.EncodeToString(md5Sum(kd))

	var sb strings.Builder
	fmt.Fprintf(&sb, `username="%s"`, d.creds.Username)
	if realm != "" {
		fmt.Fprintf(&sb, `,realm="%s"`, realm)
	}
	fmt.Fprintf(&sb, `,nonce="%s",cnonce="%s",nc=%s,qop=%s,digest-uri="%s",response=%s,charset=utf-8`,
		nonce, d.cnonce, nc, qop, d.digestURI, response)

	return []byte(sb.String()), nil
}

func md5Sum(s string) []byte {
	h := md5.Sum([]byte(s))
	return h[:]
}

// parseDigestDirectives parses a comma-separated directive=value list,
// tolerating double-quoted values.
func parseDigestDirectives(s string) map[string]string {
	out := make(map[string]string)
	var key, val strings.Builder
	inQuotes := false
	inValue := false

	flush := func() {
		if key.Len() > 0 {
			out[strings.TrimSpace(key.String())] = val.String()
		}
		key.Reset()
		val.Reset()
		inValue = false
	}

	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == '=' && !inValue && !inQuotes:
			inValue = true
		case r == ',' && !inQuotes:
			flush()
		case inValue:
			val.WriteRune(r)
		default:
			key.WriteRune(r)
		}
	}
	flush()
	return out
}

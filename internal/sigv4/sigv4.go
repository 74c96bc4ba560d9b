// Package sigv4 verifies AWS Signature Version 4 request signatures. The
// verifier reconstructs the canonical request from the declared signed
// headers, re-signs it with the credential on file, and compares signatures
// in constant time. Region and service are taken from the request's own
// credential scope, so one verifier serves every signing scope.
package sigv4

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const (
	algorithm     = "AWS4-HMAC-SHA256"
	amzDateFormat = "20060102T150405Z"

	// DefaultMaxSkew bounds how far a request timestamp may drift from
	// server time.
	DefaultMaxSkew = 15 * time.Minute
)

var (
	ErrMissingAuth       = errors.New("missing authorization header")
	ErrMalformedAuth     = errors.New("malformed authorization header")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrClockSkew         = errors.New("request time too far from server time")
)

// Authorization is the parsed form of a SigV4 Authorization header.
type Authorization struct {
	AccessKeyID   string
	Date          string
	Region        string
	Service       string
	SignedHeaders []string
	Signature     string
}

// ParseAuthorization splits a header of the form
//
//	AWS4-HMAC-SHA256 Credential=AKID/date/region/service/aws4_request,
//	SignedHeaders=a;b;c, Signature=hex
//
// into its parts.
func ParseAuthorization(header string) (Authorization, error) {
	if header == "" {
		return Authorization{}, ErrMissingAuth
	}
	rest, ok := strings.CutPrefix(header, algorithm+" ")
	if !ok {
		return Authorization{}, fmt.Errorf("%w: unsupported algorithm", ErrMalformedAuth)
	}
	var auth Authorization
	for _, part := range strings.Split(rest, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return Authorization{}, fmt.Errorf("%w: %q", ErrMalformedAuth, part)
		}
		switch key {
		case "Credential":
			scope := strings.Split(value, "/")
			if len(scope) != 5 || scope[4] != "aws4_request" {
				return Authorization{}, fmt.Errorf("%w: bad credential scope", ErrMalformedAuth)
			}
			auth.AccessKeyID = scope[0]
			auth.Date = scope[1]
			auth.Region = scope[2]
			auth.Service = scope[3]
		case "SignedHeaders":
			auth.SignedHeaders = strings.Split(value, ";")
		case "Signature":
			auth.Signature = value
		default:
			return Authorization{}, fmt.Errorf("%w: unknown component %q", ErrMalformedAuth, key)
		}
	}
	if auth.AccessKeyID == "" || len(auth.SignedHeaders) == 0 || auth.Signature == "" {
		return Authorization{}, fmt.Errorf("%w: incomplete header", ErrMalformedAuth)
	}
	return auth, nil
}

// Verifier checks inbound request signatures.
type Verifier struct {
	// MaxSkew bounds the X-Amz-Date drift; zero selects DefaultMaxSkew.
	MaxSkew time.Duration
}

// Verify checks that req carries a valid signature made with secret. The
// request body must be handed in separately because the caller has usually
// consumed it already.
func (v *Verifier) Verify(ctx context.Context, req *http.Request, body []byte, secret string, now time.Time) error {
	auth, err := ParseAuthorization(req.Header.Get("Authorization"))
	if err != nil {
		return err
	}

	amzDate := req.Header.Get("X-Amz-Date")
	if amzDate == "" {
		return fmt.Errorf("%w: missing X-Amz-Date", ErrMalformedAuth)
	}
	signedAt, err := time.Parse(amzDateFormat, amzDate)
	if err != nil {
		return fmt.Errorf("%w: bad X-Amz-Date %q", ErrMalformedAuth, amzDate)
	}
	maxSkew := v.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if drift := now.Sub(signedAt); drift > maxSkew || drift < -maxSkew {
		return fmt.Errorf("%w: signed at %s", ErrClockSkew, amzDate)
	}

	clone := v.cloneForSigning(req, auth.SignedHeaders)
	h := sha256.Sum256(body)
	creds := aws.Credentials{AccessKeyID: auth.AccessKeyID, SecretAccessKey: secret}
	if err := v4.NewSigner().SignHTTP(ctx, creds, clone, hex.EncodeToString(h[:]), auth.Service, auth.Region, signedAt); err != nil {
		return fmt.Errorf("re-signing request: %w", err)
	}
	expected, err := ParseAuthorization(clone.Header.Get("Authorization"))
	if err != nil {
		return fmt.Errorf("re-signing request: %w", err)
	}

	got, err := hex.DecodeString(auth.Signature)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrMalformedAuth)
	}
	want, err := hex.DecodeString(expected.Signature)
	if err != nil {
		return fmt.Errorf("re-signing request: %w", err)
	}
	if !hmac.Equal(got, want) {
		return ErrSignatureMismatch
	}
	return nil
}

// cloneForSigning builds a request carrying exactly the headers the client
// declared as signed, so the recomputed canonical request matches theirs.
func (v *Verifier) cloneForSigning(req *http.Request, signedHeaders []string) *http.Request {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	clone := &http.Request{
		Method: req.Method,
		URL:    req.URL,
		Host:   host,
		Header: make(http.Header, len(signedHeaders)),
	}
	for _, name := range signedHeaders {
		switch strings.ToLower(name) {
		case "host":
			// Carried by clone.Host.
		case "content-length":
			// The signer reads the ContentLength field, not the header.
			clone.ContentLength = req.ContentLength
		default:
			for _, value := range req.Header.Values(name) {
				clone.Header.Add(name, value)
			}
		}
	}
	return clone
}

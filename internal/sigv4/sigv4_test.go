package sigv4

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

const (
	testAccessKey = "AKIDEXAMPLE"
	testSecret    = "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY"
)

func signedRequest(t *testing.T, body string, secret string, when time.Time) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://gateway.local/v1/", strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	h := sha256.Sum256([]byte(body))
	creds := aws.Credentials{AccessKeyID: testAccessKey, SecretAccessKey: secret}
	err = v4.NewSigner().SignHTTP(context.Background(), creds, req, hex.EncodeToString(h[:]), "cloudformation", "us-east-1", when)
	if err != nil {
		t.Fatalf("signing request: %v", err)
	}
	return req
}

func TestVerifyValidRequest(t *testing.T) {
	now := time.Now().UTC()
	body := "Action=ListStacks&ContentType=JSON"
	req := signedRequest(t, body, testSecret, now)

	v := &Verifier{}
	if err := v.Verify(context.Background(), req, []byte(body), testSecret, now); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Now().UTC()
	body := "Action=ListStacks"
	req := signedRequest(t, body, "not-the-real-secret", now)

	v := &Verifier{}
	err := v.Verify(context.Background(), req, []byte(body), testSecret, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("got %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyTamperedBody(t *testing.T) {
	now := time.Now().UTC()
	req := signedRequest(t, "Action=ListStacks", testSecret, now)

	v := &Verifier{}
	err := v.Verify(context.Background(), req, []byte("Action=DeleteStack&StackName=prod"), testSecret, now)
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("got %v, want ErrSignatureMismatch", err)
	}
}

func TestVerifyClockSkew(t *testing.T) {
	now := time.Now().UTC()
	body := "Action=ListStacks"
	req := signedRequest(t, body, testSecret, now.Add(-time.Hour))

	v := &Verifier{}
	err := v.Verify(context.Background(), req, []byte(body), testSecret, now)
	if !errors.Is(err, ErrClockSkew) {
		t.Fatalf("got %v, want ErrClockSkew", err)
	}
}

func TestVerifyCustomSkewWindow(t *testing.T) {
	now := time.Now().UTC()
	body := "Action=ListStacks"
	req := signedRequest(t, body, testSecret, now.Add(-10*time.Minute))

	strict := &Verifier{MaxSkew: time.Minute}
	if err := strict.Verify(context.Background(), req, []byte(body), testSecret, now); !errors.Is(err, ErrClockSkew) {
		t.Fatalf("strict: got %v, want ErrClockSkew", err)
	}

	lenient := &Verifier{MaxSkew: time.Hour}
	if err := lenient.Verify(context.Background(), req, []byte(body), testSecret, now); err != nil {
		t.Fatalf("lenient: %v", err)
	}
}

func TestVerifyMissingAuthorization(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://gateway.local/v1/", nil)
	v := &Verifier{}
	err := v.Verify(context.Background(), req, nil, testSecret, time.Now())
	if !errors.Is(err, ErrMissingAuth) {
		t.Fatalf("got %v, want ErrMissingAuth", err)
	}
}

func TestParseAuthorization(t *testing.T) {
	header := "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20260821/us-east-1/cloudformation/aws4_request, " +
		"SignedHeaders=content-type;host;x-amz-date, Signature=abc123"
	auth, err := ParseAuthorization(header)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if auth.AccessKeyID != "AKIDEXAMPLE" {
		t.Errorf("AccessKeyID = %q", auth.AccessKeyID)
	}
	if auth.Date != "20260821" || auth.Region != "us-east-1" || auth.Service != "cloudformation" {
		t.Errorf("scope = %q/%q/%q", auth.Date, auth.Region, auth.Service)
	}
	if len(auth.SignedHeaders) != 3 || auth.SignedHeaders[1] != "host" {
		t.Errorf("SignedHeaders = %v", auth.SignedHeaders)
	}
	if auth.Signature != "abc123" {
		t.Errorf("Signature = %q", auth.Signature)
	}
}

func TestParseAuthorizationMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"wrong alg":      "AWS4-HMAC-MD5 Credential=a/b/c/d/aws4_request, SignedHeaders=host, Signature=x",
		"short scope":    "AWS4-HMAC-SHA256 Credential=AKID/20260821, SignedHeaders=host, Signature=x",
		"bad terminal":   "AWS4-HMAC-SHA256 Credential=AKID/20260821/r/s/other, SignedHeaders=host, Signature=x",
		"no signature":   "AWS4-HMAC-SHA256 Credential=AKID/20260821/r/s/aws4_request, SignedHeaders=host",
		"unknown fields": "AWS4-HMAC-SHA256 Credential=AKID/20260821/r/s/aws4_request, SignedHeaders=host, Signature=x, Extra=y",
	}
	for name, header := range cases {
		if _, err := ParseAuthorization(header); err == nil {
			t.Errorf("%s: expected an error for %q", name, header)
		}
	}
}

func TestVerifyRoundTripThroughServerParse(t *testing.T) {
	// A request that crossed the network loses its body reader; verification
	// must work from the captured bytes alone.
	now := time.Now().UTC()
	body := "Action=DescribeStacks&StackName=web"
	req := signedRequest(t, body, testSecret, now)
	req.Body = nil

	v := &Verifier{}
	if err := v.Verify(context.Background(), req, []byte(body), testSecret, now); err != nil {
		t.Fatalf("Verify without body reader: %v", err)
	}
}

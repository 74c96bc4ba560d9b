// Package cfnclient is a small client for the stackgate wire API. It builds
// the form-encoded action request, signs it with SigV4, and decodes the JSON
// response envelope. The command line tools and integration tests use it;
// any AWS-compatible CloudFormation client works against the gateway too.
package cfnclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
)

// DefaultRegion is the signing region used when none is configured. The
// gateway accepts any region scope; this only has to match on both ends of
// one request.
const DefaultRegion = "us-east-1"

const signingService = "cloudformation"

// Credentials sign outbound requests.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
}

// Client talks to one gateway endpoint.
type Client struct {
	// Endpoint is the full URL of the API root, e.g. http://host:8000/v1/.
	Endpoint string
	Creds    Credentials
	// Region is the SigV4 signing region; empty selects DefaultRegion.
	Region string
	// HTTPClient overrides the transport; nil selects a client with a
	// 60 second timeout.
	HTTPClient *http.Client
}

// Response is a raw API response.
type Response struct {
	StatusCode int
	Body       []byte
}

// APIError is a decoded error response from the gateway.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (HTTP %d)", e.Code, e.Message, e.Status)
}

// Do signs and sends one action request, returning the raw response. Params
// must not include Action; it is added from the argument.
func (c *Client) Do(ctx context.Context, action string, params map[string]string) (*Response, error) {
	form := url.Values{}
	form.Set("Action", action)
	for k, v := range params {
		form.Set(k, v)
	}
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	h := sha256.Sum256([]byte(body))
	creds := aws.Credentials{
		AccessKeyID:     c.Creds.AccessKeyID,
		SecretAccessKey: c.Creds.SecretAccessKey,
	}
	region := c.Region
	if region == "" {
		region = DefaultRegion
	}
	if err := v4.NewSigner().SignHTTP(ctx, creds, req, hex.EncodeToString(h[:]), signingService, region, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("signing request: %w", err)
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

// Call sends one action request with a JSON response and unwraps the
// envelope, returning the "<Action>Result" payload. Gateway faults come back
// as *APIError.
func (c *Client) Call(ctx context.Context, action string, params map[string]string) (any, error) {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = v
	}
	merged["ContentType"] = "JSON"

	resp, err := c.Do(ctx, action, merged)
	if err != nil {
		return nil, err
	}

	var doc map[string]any
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if errDoc, ok := doc["ErrorResponse"].(map[string]any); ok {
		apiErr := &APIError{Status: resp.StatusCode}
		if inner, ok := errDoc["Error"].(map[string]any); ok {
			apiErr.Type, _ = inner["Type"].(string)
			apiErr.Code, _ = inner["Code"].(string)
			apiErr.Message, _ = inner["Message"].(string)
		}
		return nil, apiErr
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, resp.Body)
	}
	envelope, ok := doc[action+"Response"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("response has no %sResponse envelope", action)
	}
	return envelope[action+"Result"], nil
}

package template

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// ObjectGetter is the slice of the S3 API the fetcher needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Fetcher retrieves template bodies referenced by URL. http and https URLs go
// through the HTTP client; s3://bucket/key URLs go through the S3 API. Every
// scheme enforces the same size cap.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
	log      zerolog.Logger

	s3Once sync.Once
	s3     ObjectGetter
	s3Err  error
}

// FetcherOptions configure a Fetcher. Zero values select a default HTTP
// client, the ambient AWS configuration for S3, and DefaultMaxBytes.
type FetcherOptions struct {
	HTTPClient *http.Client
	S3         ObjectGetter
	MaxBytes   int64
	Logger     zerolog.Logger
}

func NewFetcher(opts FetcherOptions) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fetcher{
		client:   client,
		maxBytes: maxBytes,
		log:      opts.Logger.With().Str("component", "template-fetch").Logger(),
		s3:       opts.S3,
	}
}

// Fetch retrieves the document at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid template URL: %w", err)
	}
	f.log.Debug().Str("url", rawURL).Msg("fetching template")
	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL)
	case "s3":
		return f.fetchS3(ctx, u)
	default:
		return nil, fmt.Errorf("unsupported template URL scheme %q", u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building template request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieving template: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieving template: status %s", resp.Status)
	}
	return f.readCapped(resp.Body)
}

func (f *Fetcher) fetchS3(ctx context.Context, u *url.URL) ([]byte, error) {
	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing s3 client: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 template URL must name a bucket and key")
	}
	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving template from s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()
	return f.readCapped(out.Body)
}

// s3Client builds the S3 client on first use so deployments that never see
// s3:// URLs need no AWS configuration.
func (f *Fetcher) s3Client(ctx context.Context) (ObjectGetter, error) {
	f.s3Once.Do(func() {
		if f.s3 != nil {
			return
		}
		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			f.s3Err = err
			return
		}
		f.s3 = s3.NewFromConfig(cfg)
	})
	return f.s3, f.s3Err
}

func (f *Fetcher) readCapped(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading template body: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("template exceeds maximum allowed size (%d bytes)", f.maxBytes)
	}
	return data, nil
}

// Package gateway serves the CloudFormation-style query API and translates
// it onto the orchestration engine: one POST (or GET) per action, flattened
// form parameters in, an XML or JSON envelope out.
package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/stackgate/stackgate/internal/audit"
	"github.com/stackgate/stackgate/internal/engine"
	"github.com/stackgate/stackgate/internal/keystore"
	"github.com/stackgate/stackgate/internal/metrics"
	"github.com/stackgate/stackgate/internal/notify"
	"github.com/stackgate/stackgate/internal/policy"
	"github.com/stackgate/stackgate/internal/sigv4"
	"github.com/stackgate/stackgate/internal/template"
)

const defaultMaxRequestBytes = 1 << 20

// Subject is the authenticated identity a request runs as.
type Subject struct {
	Tenant      string
	Principal   string
	AccessKeyID string
}

// Caller returns the engine-side caller context for the subject.
func (s Subject) Caller() engine.Caller {
	return engine.Caller{Tenant: s.Tenant, Principal: s.Principal}
}

// KeyLookup resolves an access key id to its credential record. The
// keystore implements it.
type KeyLookup interface {
	Lookup(accessKeyID string) (keystore.Credential, error)
}

// Options configure a Gateway. Engine is required; Keys is required unless
// AuthDisabled. Everything else degrades to a no-op when absent.
type Options struct {
	Engine  engine.Client
	Keys    KeyLookup
	Policy  *policy.Enforcer
	Fetcher *template.Fetcher
	Audit   *audit.Logger
	Metrics *metrics.Metrics
	Notify  *notify.Publisher
	Logger  zerolog.Logger

	// MaxSkew bounds X-Amz-Date drift on signed requests; zero selects the
	// verifier default.
	MaxSkew time.Duration
	// MaxRequestBytes caps the inbound request body; zero selects 1 MiB.
	MaxRequestBytes int64
	// AuthDisabled skips signature checks and runs every request as
	// DevSubject. Development only.
	AuthDisabled bool
	DevSubject   Subject
}

// Gateway is the HTTP front of the translation layer. Safe for concurrent
// use; each request is independent.
type Gateway struct {
	engine   engine.Client
	keys     KeyLookup
	policy   *policy.Enforcer
	fetcher  *template.Fetcher
	audit    *audit.Logger
	metrics  *metrics.Metrics
	notify   *notify.Publisher
	verifier sigv4.Verifier
	log      zerolog.Logger

	maxBody      int64
	authDisabled bool
	devSubject   Subject

	actions map[string]actionHandler
}

// New assembles a Gateway from its parts.
func New(opts Options) (*Gateway, error) {
	if opts.Engine == nil {
		return nil, errors.New("gateway: engine client is required")
	}
	if !opts.AuthDisabled && opts.Keys == nil {
		return nil, errors.New("gateway: key lookup is required when auth is enabled")
	}

	g := &Gateway{
		engine:       opts.Engine,
		keys:         opts.Keys,
		policy:       opts.Policy,
		fetcher:      opts.Fetcher,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		notify:       opts.Notify,
		verifier:     sigv4.Verifier{MaxSkew: opts.MaxSkew},
		log:          opts.Logger,
		maxBody:      opts.MaxRequestBytes,
		authDisabled: opts.AuthDisabled,
		devSubject:   opts.DevSubject,
	}
	if g.maxBody <= 0 {
		g.maxBody = defaultMaxRequestBytes
	}
	if g.fetcher == nil {
		g.fetcher = template.NewFetcher(template.FetcherOptions{Logger: opts.Logger})
	}
	if g.metrics == nil {
		// Zero-value recorder: counts nothing, serves 404 on /metrics.
		g.metrics = &metrics.Metrics{}
	}

	g.actions = map[string]actionHandler{
		"ListStacks":             {fn: g.handleListStacks},
		"DescribeStacks":         {fn: g.handleDescribeStacks},
		"CreateStack":            {fn: g.handleCreateStack, mutating: true},
		"UpdateStack":            {fn: g.handleUpdateStack, mutating: true},
		"DeleteStack":            {fn: g.handleDeleteStack, mutating: true},
		"GetTemplate":            {fn: g.handleGetTemplate},
		"ValidateTemplate":       {fn: g.handleValidateTemplate},
		"EstimateTemplateCost":   {fn: g.handleEstimateTemplateCost},
		"DescribeStackEvents":    {fn: g.handleDescribeStackEvents},
		"DescribeStackResource":  {fn: g.handleDescribeStackResource},
		"DescribeStackResources": {fn: g.handleDescribeStackResources},
		"ListStackResources":     {fn: g.handleListStackResources},
	}
	return g, nil
}

// Router returns the handler tree: the query API at /, liveness at /healthz,
// Prometheus at /metrics.
func (g *Gateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", g.metrics.Handler())

	r.Get("/", g.serveQuery)
	r.Post("/", g.serveQuery)

	return r
}

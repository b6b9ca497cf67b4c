// Package scene composes the ADT, blob, ADX and management adapters
// into the facade a scene-authoring UI talks to, and implements the two
// cross-service workflows: resolving the ADT-to-ADX telemetry
// connection and reconciling missing storage-container roles.
package scene

import (
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/adapters/adt"
	"github.com/twinscape/twinscape/adapters/adx"
	"github.com/twinscape/twinscape/adapters/blob"
	"github.com/twinscape/twinscape/adapters/management"
	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/types"
)

// Aliases give the embedded adapters distinct field names so their
// method sets can be promoted side by side. Name clashes between the
// four surfaces would be resolved by an explicit override on Adapter;
// today there are none.
type (
	adtMethods        = adt.Adapter
	blobMethods       = blob.Adapter
	adxMethods        = adx.Adapter
	managementMethods = management.Adapter
)

// Adapter is the composite scene adapter. It exposes the union of the
// four service adapters plus the orchestration methods below. The
// embedded adapters share no base state; the token provider, HTTP
// client and logger are injected into each at construction.
type Adapter struct {
	*adtMethods
	*blobMethods
	*adxMethods
	*managementMethods

	tokens auth.TokenProvider
	rest   *restclient.Client
	log    zerolog.Logger

	adtHostURL    string
	accountName   string
	containerName string

	mu   sync.Mutex
	conn types.ADXConnection
}

// Config carries the construction inputs.
type Config struct {
	ADTHostURL       string
	BlobContainerURL string
	TenantID         string
	ObjectID         string

	// Forwarding origins replacing the ADT and blob hosts when set.
	ADTProxyPath  string
	BlobProxyPath string

	// Cache max-age overrides; zero keeps the defaults.
	TwinCacheMaxAge     time.Duration
	ModelCacheMaxAge    time.Duration
	InstanceCacheMaxAge time.Duration
}

// Option customizes the composite.
type Option func(*options)

type options struct {
	httpClient *http.Client
	armBaseURL string
	logger     *zerolog.Logger
}

// WithHTTPClient overrides the shared HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithARMBaseURL overrides the ARM endpoint, for tests.
func WithARMBaseURL(u string) Option {
	return func(o *options) { o.armBaseURL = u }
}

// WithLogger overrides the default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.logger = &log }
}

// New builds the composite. A bad container URL is logged and leaves
// the account and container names unset; role reconciliation then
// reports the container as not found rather than failing construction.
func New(tokens auth.TokenProvider, cfg Config, opts ...Option) *Adapter {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := zerolog.Nop()
	if o.logger != nil {
		log = *o.logger
	}

	rest := restclient.New(o.httpClient)

	a := &Adapter{
		tokens:     tokens,
		rest:       rest,
		log:        log.With().Str("component", "scene").Logger(),
		adtHostURL: cfg.ADTHostURL,
	}

	if cfg.BlobContainerURL != "" {
		loc, err := blob.ParseContainerURL(cfg.BlobContainerURL)
		if err != nil {
			a.log.Error().Err(err).Str("url", cfg.BlobContainerURL).Msg("bad blob container url")
		} else {
			a.accountName = loc.AccountName
			a.containerName = loc.ContainerName
		}
	}

	mgmtOpts := []management.Option{management.WithInstanceMaxAge(cfg.InstanceCacheMaxAge)}
	if o.armBaseURL != "" {
		mgmtOpts = append(mgmtOpts, management.WithBaseURL(o.armBaseURL))
	}

	a.adtMethods = adt.New(tokens, rest, log, cfg.ADTHostURL, cfg.ADTProxyPath,
		adt.WithCacheAges(cfg.TwinCacheMaxAge, cfg.ModelCacheMaxAge))
	a.blobMethods = blob.New(tokens, rest, log, cfg.BlobContainerURL, cfg.BlobProxyPath)
	a.adxMethods = adx.New(tokens, rest, log)
	a.managementMethods = management.New(tokens, rest, log, cfg.TenantID, cfg.ObjectID, mgmtOpts...)

	tokens.Login()
	return a
}

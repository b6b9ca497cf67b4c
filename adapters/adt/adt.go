// Package adt wraps the Azure Digital Twins data plane: twins, models,
// relationships and twin queries. Read-heavy calls go through entity
// caches keyed by twin or model id; writes refresh or invalidate the
// matching entry.
package adt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/cache"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
	"github.com/twinscape/twinscape/types"
)

const apiVersion = "2020-10-31"

// Adapter is the ADT data-plane service adapter.
type Adapter struct {
	tokens    auth.TokenProvider
	rest      *restclient.Client
	log       zerolog.Logger
	hostURL   string
	proxyPath string

	twins  *cache.Cache[types.Twin]
	models *cache.Cache[[]types.Model]
}

// Option customizes the adapter.
type Option func(*Adapter)

// WithCacheAges overrides the twin and model cache max-ages. Zero keeps
// the default for that cache.
func WithCacheAges(twinMaxAge, modelMaxAge time.Duration) Option {
	return func(a *Adapter) {
		if twinMaxAge > 0 {
			a.twins = cache.New[types.Twin](twinMaxAge)
		}
		if modelMaxAge > 0 {
			a.models = cache.New[[]types.Model](modelMaxAge)
		}
	}
}

// New creates the adapter for one ADT instance. proxyPath, when set, is
// a forwarding origin that replaces the data-plane host so a CORS proxy
// can forward calls.
func New(tokens auth.TokenProvider, rest *restclient.Client, log zerolog.Logger, hostURL, proxyPath string, opts ...Option) *Adapter {
	a := &Adapter{
		tokens:    tokens,
		rest:      rest,
		log:       log.With().Str("adapter", "adt").Logger(),
		hostURL:   strings.TrimRight(hostURL, "/"),
		proxyPath: strings.TrimRight(proxyPath, "/"),
		twins:     cache.New[types.Twin](cache.TwinMaxAge),
		models:    cache.New[[]types.Model](cache.ModelMaxAge),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) endpoint(path string) string {
	if a.proxyPath != "" {
		return a.proxyPath + path
	}
	host := a.hostURL
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + path
}

func (a *Adapter) query() url.Values {
	return url.Values{"api-version": []string{apiVersion}}
}

// GetTwin fetches a twin by id, serving from cache while the entry is
// younger than the twin max-age.
func (a *Adapter) GetTwin(ctx context.Context, twinID string) result.Result[types.Twin] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.Twin, error) {
		return a.twins.Fetch(ctx, twinID, func(ctx context.Context) (types.Twin, error) {
			var twin types.Twin
			err := a.rest.DoJSON(ctx, restclient.Request{
				Method: "GET",
				URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID)),
				Token:  token,
				Query:  a.query(),
			}, &twin)
			return twin, err
		})
	})
}

// CreateTwin replaces or creates the twin, refreshing the cache entry
// with the response.
func (a *Adapter) CreateTwin(ctx context.Context, twin types.Twin) result.Result[types.Twin] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.Twin, error) {
		var created types.Twin
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "PUT",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twin.ID)),
			Token:  token,
			Query:  a.query(),
			Body:   twin,
		}, &created)
		if err != nil {
			return types.Twin{}, err
		}
		a.twins.Set(twin.ID, created)
		return created, nil
	})
}

// UpdateTwin applies JSON-patch operations to the twin and invalidates
// its cache entry so the next read observes the new values.
func (a *Adapter) UpdateTwin(ctx context.Context, twinID string, patches []types.Patch) result.Result[[]types.Patch] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Patch, error) {
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "PATCH",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID)),
			Token:  token,
			Query:  a.query(),
			Body:   patches,
		}, nil)
		if err != nil {
			return nil, err
		}
		a.twins.Invalidate(twinID)
		return patches, nil
	})
}

// DeleteTwin removes the twin and its cache entry.
func (a *Adapter) DeleteTwin(ctx context.Context, twinID string) result.Result[string] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (string, error) {
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "DELETE",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID)),
			Token:  token,
			Query:  a.query(),
		}, nil)
		if err != nil {
			return "", err
		}
		a.twins.Invalidate(twinID)
		return twinID, nil
	})
}

// QueryTwins runs an ADT SQL-ish query. Query results are not cached;
// the result set depends on arbitrary predicates.
func (a *Adapter) QueryTwins(ctx context.Context, query string, continuationToken string) result.Result[types.TwinPage] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.TwinPage, error) {
		body := map[string]string{"query": query}
		if continuationToken != "" {
			body["continuationToken"] = continuationToken
		}
		var page types.TwinPage
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "POST",
			URL:    a.endpoint("/query"),
			Token:  token,
			Query:  a.query(),
			Body:   body,
		}, &page)
		return page, err
	})
}

// SearchTwins finds twins whose id or property values contain term.
func (a *Adapter) SearchTwins(ctx context.Context, term string, continuationToken string) result.Result[types.TwinPage] {
	query := fmt.Sprintf("SELECT * FROM digitaltwins T WHERE CONTAINS(T.$dtId, '%s')", escapeQueryLiteral(term))
	return a.QueryTwins(ctx, query, continuationToken)
}

// GetAllModels lists every model, DTDL included, from cache when fresh.
func (a *Adapter) GetAllModels(ctx context.Context) result.Result[[]types.Model] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Model, error) {
		return a.models.Fetch(ctx, "all", func(ctx context.Context) ([]types.Model, error) {
			return a.listModels(ctx, token)
		})
	})
}

// GetModel fetches one model by id.
func (a *Adapter) GetModel(ctx context.Context, modelID string) result.Result[types.Model] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.Model, error) {
		var model types.Model
		q := a.query()
		q.Set("includeModelDefinition", "true")
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "GET",
			URL:    a.endpoint("/models/" + url.PathEscape(modelID)),
			Token:  token,
			Query:  q,
		}, &model)
		return model, err
	})
}

// GetExpandedModel returns the model along with every model it extends,
// resolved against the cached full model list. The cache key carries the
// expansion flag so plain and expanded lookups stay independent.
func (a *Adapter) GetExpandedModel(ctx context.Context, modelID string) result.Result[[]types.Model] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Model, error) {
		all, err := a.models.Fetch(ctx, "all", func(ctx context.Context) ([]types.Model, error) {
			return a.listModels(ctx, token)
		})
		if err != nil {
			return nil, err
		}
		byID := make(map[string]types.Model, len(all))
		for _, m := range all {
			byID[m.ID] = m
		}
		root, ok := byID[modelID]
		if !ok {
			return nil, &result.StatusError{Status: 404, Body: "model " + modelID + " not found"}
		}
		expanded := []types.Model{root}
		seen := map[string]bool{modelID: true}
		queue := extendsOf(root)
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			if seen[id] {
				continue
			}
			seen[id] = true
			if m, ok := byID[id]; ok {
				expanded = append(expanded, m)
				queue = append(queue, extendsOf(m)...)
			}
		}
		return expanded, nil
	})
}

// CreateModels uploads DTDL model documents and invalidates the model
// list cache.
func (a *Adapter) CreateModels(ctx context.Context, models []interface{}) result.Result[[]types.Model] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Model, error) {
		var created []types.Model
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "POST",
			URL:    a.endpoint("/models"),
			Token:  token,
			Query:  a.query(),
			Body:   models,
		}, &created)
		if err != nil {
			return nil, err
		}
		a.models.Invalidate("all")
		return created, nil
	})
}

// DeleteModel removes a model and invalidates the model list cache.
func (a *Adapter) DeleteModel(ctx context.Context, modelID string) result.Result[string] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (string, error) {
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "DELETE",
			URL:    a.endpoint("/models/" + url.PathEscape(modelID)),
			Token:  token,
			Query:  a.query(),
		}, nil)
		if err != nil {
			return "", err
		}
		a.models.Invalidate("all")
		return modelID, nil
	})
}

// GetRelationships lists the outgoing relationships of a twin.
func (a *Adapter) GetRelationships(ctx context.Context, twinID string) result.Result[[]types.Relationship] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Relationship, error) {
		var out struct {
			Value []types.Relationship `json:"value"`
		}
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "GET",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID) + "/relationships"),
			Token:  token,
			Query:  a.query(),
		}, &out)
		return out.Value, err
	})
}

// GetRelationship fetches one relationship by id.
func (a *Adapter) GetRelationship(ctx context.Context, twinID, relationshipID string) result.Result[types.Relationship] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.Relationship, error) {
		var rel types.Relationship
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "GET",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID) + "/relationships/" + url.PathEscape(relationshipID)),
			Token:  token,
			Query:  a.query(),
		}, &rel)
		return rel, err
	})
}

// CreateRelationship links twinID to the relationship's target.
func (a *Adapter) CreateRelationship(ctx context.Context, twinID string, rel types.Relationship) result.Result[types.Relationship] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (types.Relationship, error) {
		var created types.Relationship
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "PUT",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID) + "/relationships/" + url.PathEscape(rel.ID)),
			Token:  token,
			Query:  a.query(),
			Body:   rel,
		}, &created)
		return created, err
	})
}

// UpdateRelationship applies JSON-patch operations to a relationship.
func (a *Adapter) UpdateRelationship(ctx context.Context, twinID, relationshipID string, patches []types.Patch) result.Result[[]types.Patch] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) ([]types.Patch, error) {
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "PATCH",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID) + "/relationships/" + url.PathEscape(relationshipID)),
			Token:  token,
			Query:  a.query(),
			Body:   patches,
		}, nil)
		if err != nil {
			return nil, err
		}
		return patches, nil
	})
}

// DeleteRelationship removes one relationship.
func (a *Adapter) DeleteRelationship(ctx context.Context, twinID, relationshipID string) result.Result[string] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudiencePrimary, func(ctx context.Context, token string) (string, error) {
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "DELETE",
			URL:    a.endpoint("/digitaltwins/" + url.PathEscape(twinID) + "/relationships/" + url.PathEscape(relationshipID)),
			Token:  token,
			Query:  a.query(),
		}, nil)
		if err != nil {
			return "", err
		}
		return relationshipID, nil
	})
}

func (a *Adapter) listModels(ctx context.Context, token string) ([]types.Model, error) {
	q := a.query()
	q.Set("includeModelDefinition", "true")
	var out struct {
		Value []types.Model `json:"value"`
	}
	err := a.rest.DoJSON(ctx, restclient.Request{
		Method: "GET",
		URL:    a.endpoint("/models"),
		Token:  token,
		Query:  q,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

func extendsOf(m types.Model) []string {
	if len(m.DTDL) == 0 {
		return nil
	}
	var doc struct {
		Extends interface{} `json:"extends"`
	}
	if err := json.Unmarshal(m.DTDL, &doc); err != nil {
		return nil
	}
	switch v := doc.Extends.(type) {
	case string:
		return []string{v}
	case []interface{}:
		var ids []string
		for _, e := range v {
			if s, ok := e.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids
	}
	return nil
}

func escapeQueryLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

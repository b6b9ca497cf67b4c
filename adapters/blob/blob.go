// Package blob wraps container-scoped Azure Blob Storage calls for scene
// configuration files and uploaded assets. Calls are thin passthroughs
// under the sandbox; blob content is not assumed stable, so nothing is
// cached.
package blob

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
)

const storageVersion = "2020-10-02"

// Adapter is the blob storage service adapter for one container.
type Adapter struct {
	tokens       auth.TokenProvider
	rest         *restclient.Client
	log          zerolog.Logger
	containerURL string
	proxyPath    string
}

// ContainerLocation is a parsed container URL.
type ContainerLocation struct {
	AccountName   string
	ContainerName string
	HostName      string
}

// ParseContainerURL splits a container URL into storage account and
// container names.
func ParseContainerURL(raw string) (ContainerLocation, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ContainerLocation{}, fmt.Errorf("invalid container url: %w", err)
	}
	if u.Host == "" {
		return ContainerLocation{}, fmt.Errorf("invalid container url %q: no host", raw)
	}
	account := strings.Split(u.Host, ".")[0]
	container := strings.TrimPrefix(u.Path, "/")
	if i := strings.Index(container, "/"); i >= 0 {
		container = container[:i]
	}
	if container == "" {
		return ContainerLocation{}, fmt.Errorf("invalid container url %q: no container segment", raw)
	}
	return ContainerLocation{AccountName: account, ContainerName: container, HostName: u.Host}, nil
}

// New creates the adapter. containerURL addresses the scene container;
// proxyPath, when set, replaces the container host so a CORS proxy can
// forward calls.
func New(tokens auth.TokenProvider, rest *restclient.Client, log zerolog.Logger, containerURL, proxyPath string) *Adapter {
	return &Adapter{
		tokens:       tokens,
		rest:         rest,
		log:          log.With().Str("adapter", "blob").Logger(),
		containerURL: strings.TrimRight(containerURL, "/"),
		proxyPath:    strings.TrimRight(proxyPath, "/"),
	}
}

func (a *Adapter) blobURL(name string) string {
	base := a.containerURL
	if a.proxyPath != "" {
		u, err := url.Parse(a.containerURL)
		if err == nil {
			base = a.proxyPath + u.Path
		}
	}
	if name == "" {
		return base
	}
	return base + "/" + url.PathEscape(name)
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"x-ms-version": storageVersion}
}

// BlobItem is one entry of a container listing.
type BlobItem struct {
	Name          string `xml:"Name"`
	ContentLength int64  `xml:"Properties>Content-Length"`
	LastModified  string `xml:"Properties>Last-Modified"`
}

// ListBlobs lists the container's blobs.
func (a *Adapter) ListBlobs(ctx context.Context) result.Result[[]BlobItem] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceStorage, func(ctx context.Context, token string) ([]BlobItem, error) {
		raw, err := a.rest.DoRaw(ctx, restclient.Request{
			Method:  "GET",
			URL:     a.blobURL(""),
			Token:   token,
			Query:   url.Values{"restype": []string{"container"}, "comp": []string{"list"}},
			Headers: a.headers(),
		}, nil, "")
		if err != nil {
			return nil, err
		}
		var listing struct {
			Blobs []BlobItem `xml:"Blobs>Blob"`
		}
		if err := xml.Unmarshal(raw, &listing); err != nil {
			return nil, fmt.Errorf("failed to decode blob listing: %w", err)
		}
		return listing.Blobs, nil
	})
}

// GetBlob downloads one blob.
func (a *Adapter) GetBlob(ctx context.Context, name string) result.Result[[]byte] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceStorage, func(ctx context.Context, token string) ([]byte, error) {
		return a.rest.DoRaw(ctx, restclient.Request{
			Method:  "GET",
			URL:     a.blobURL(name),
			Token:   token,
			Headers: a.headers(),
		}, nil, "")
	})
}

// PutBlob uploads content as a block blob.
func (a *Adapter) PutBlob(ctx context.Context, name string, content []byte, contentType string) result.Result[string] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceStorage, func(ctx context.Context, token string) (string, error) {
		headers := a.headers()
		headers["x-ms-blob-type"] = "BlockBlob"
		_, err := a.rest.DoRaw(ctx, restclient.Request{
			Method:  "PUT",
			URL:     a.blobURL(name),
			Token:   token,
			Headers: headers,
		}, content, contentType)
		if err != nil {
			return "", err
		}
		a.log.Debug().Str("blob", name).Int("bytes", len(content)).Msg("blob uploaded")
		return name, nil
	})
}

// DeleteBlob removes one blob.
func (a *Adapter) DeleteBlob(ctx context.Context, name string) result.Result[string] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceStorage, func(ctx context.Context, token string) (string, error) {
		_, err := a.rest.DoRaw(ctx, restclient.Request{
			Method:  "DELETE",
			URL:     a.blobURL(name),
			Token:   token,
			Headers: a.headers(),
		}, nil, "")
		if err != nil {
			return "", err
		}
		return name, nil
	})
}

// Package adx executes telemetry history queries against the Kusto
// cluster resolved by the composite adapter's connection workflow.
package adx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/twinscape/twinscape/auth"
	"github.com/twinscape/twinscape/internal/restclient"
	"github.com/twinscape/twinscape/result"
	"github.com/twinscape/twinscape/sandbox"
	"github.com/twinscape/twinscape/types"
)

// Adapter is the ADX/Kusto service adapter.
type Adapter struct {
	tokens auth.TokenProvider
	rest   *restclient.Client
	log    zerolog.Logger
}

// New creates the adapter. The cluster coordinates come per call, from
// the resolved connection.
func New(tokens auth.TokenProvider, rest *restclient.Client, log zerolog.Logger) *Adapter {
	return &Adapter{
		tokens: tokens,
		rest:   rest,
		log:    log.With().Str("adapter", "adx").Logger(),
	}
}

// Column describes one column of a Kusto result table.
type Column struct {
	Name string `json:"ColumnName"`
	Type string `json:"DataType"`
}

// Table is one Kusto result table.
type Table struct {
	Name    string              `json:"TableName"`
	Columns []Column            `json:"Columns"`
	Rows    [][]json.RawMessage `json:"Rows"`
}

// QueryResult is the v1 REST response shape.
type QueryResult struct {
	Tables []Table `json:"Tables"`
}

// Query runs a KQL query against the connection's database.
func (a *Adapter) Query(ctx context.Context, conn types.ADXConnection, query string) result.Result[QueryResult] {
	sb := sandbox.New(a.tokens)
	return sandbox.Run(ctx, sb, auth.AudienceADX, func(ctx context.Context, token string) (QueryResult, error) {
		if !conn.Complete() {
			return QueryResult{}, fmt.Errorf("adx connection is not resolved")
		}
		var out QueryResult
		err := a.rest.DoJSON(ctx, restclient.Request{
			Method: "POST",
			URL:    strings.TrimRight(conn.ClusterURL, "/") + "/v1/rest/query",
			Token:  token,
			Body: map[string]string{
				"db":  conn.DatabaseName,
				"csl": query,
			},
		}, &out)
		return out, err
	})
}

// QueryHistory fetches the historized property values of one twin from
// the connection's data-history table, newest first.
func (a *Adapter) QueryHistory(ctx context.Context, conn types.ADXConnection, twinID string, limit int) result.Result[QueryResult] {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(
		"%s | where Id == '%s' | order by TimeStamp desc | take %d",
		conn.TableName, strings.ReplaceAll(twinID, "'", "\\'"), limit,
	)
	return a.Query(ctx, conn, query)
}

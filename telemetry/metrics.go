package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recording helpers are safe before InitOTEL: instruments are nil until
// then and recordings are silently dropped.

// RecordAdapterCall records one sandboxed call with its duration and
// how many error records it accumulated.
func RecordAdapterCall(ctx context.Context, audience string, seconds float64, errorCount int) {
	attrs := metric.WithAttributes(attribute.String("audience", audience))
	if AdapterCalls != nil {
		AdapterCalls.Add(ctx, 1, attrs)
	}
	if AdapterCallLatency != nil {
		AdapterCallLatency.Record(ctx, seconds, attrs)
	}
	if AdapterCallErrors != nil && errorCount > 0 {
		AdapterCallErrors.Add(ctx, int64(errorCount), attrs)
	}
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(ctx context.Context, hit bool) {
	if hit {
		if CacheHits != nil {
			CacheHits.Add(ctx, 1)
		}
		return
	}
	if CacheMisses != nil {
		CacheMisses.Add(ctx, 1)
	}
}

// RecordRoleAssigned records one successful role assignment.
func RecordRoleAssigned(ctx context.Context, roleDefinitionID string) {
	if RolesAssigned != nil {
		RolesAssigned.Add(ctx, 1, metric.WithAttributes(
			attribute.String("role_definition_id", roleDefinitionID),
		))
	}
}

// Package observability provides client metrics built on OpenTelemetry.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrEndpoint = "endpoint"
	attrStatus   = "status"
	attrOutcome  = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func endpointAttr(endpoint string) attribute.KeyValue {
	return attribute.String(attrEndpoint, normalizeEndpoint(endpoint))
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality: 200-299 -> 2xx, etc.
	// Status 0 means the request never produced a response.
	if code == 0 {
		return attribute.String(attrStatus, "none")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

// normalizeEndpoint replaces the job id segment with a placeholder to keep
// metric cardinality bounded.
func normalizeEndpoint(endpoint string) string {
	const prefix = "/jobs/"
	if strings.HasPrefix(endpoint, prefix) && len(endpoint) > len(prefix) {
		return "/jobs/{jobId}"
	}
	return endpoint
}

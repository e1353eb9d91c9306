// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across spans so traces stay queryable.
const (
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	JobIDKey       = "job.id"
	JobStatusKey   = "job.status"
	JobPhaseKey    = "job.phase"
	JobDurationKey = "job.duration_ms"

	SegmentIndexKey      = "segment.index"
	SegmentTierKey       = "segment.tier"
	SegmentConfidenceKey = "segment.confidence"

	ModelKindKey    = "model.kind"
	ModelVariantKey = "model.variant"

	ArtifactKindKey  = "artifact.kind"
	ArtifactStateKey = "artifact.state"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes builds common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// JobAttributes builds job lifecycle span attributes.
func JobAttributes(jobID, status, phase string, durationMS int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(JobIDKey, jobID),
		attribute.String(JobStatusKey, status),
	}
	if phase != "" {
		attrs = append(attrs, attribute.String(JobPhaseKey, phase))
	}
	if durationMS > 0 {
		attrs = append(attrs, attribute.Int64(JobDurationKey, durationMS))
	}
	return attrs
}

// SegmentAttributes builds per-segment transcription span attributes.
func SegmentAttributes(index int, tier string, confidence float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(SegmentIndexKey, index),
		attribute.String(SegmentTierKey, tier),
		attribute.Float64(SegmentConfidenceKey, confidence),
	}
}

// ModelAttributes builds model acquisition span attributes.
func ModelAttributes(kind, variant string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ModelKindKey, kind),
		attribute.String(ModelVariantKey, variant),
	}
}

// ArtifactAttributes builds media artifact span attributes.
func ArtifactAttributes(kind, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ArtifactKindKey, kind),
		attribute.String(ArtifactStateKey, state),
	}
}

// ErrorAttributes marks a span as failed with a classified error type.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

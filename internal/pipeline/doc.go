// Package pipeline provides the business boundary for quietnews ingestion.
// It defines the Service (run lifecycle, single-flight, read path), the
// clustering and composing strategies with their deterministic fallbacks,
// the urgency Ranker, and the Store and Provider interfaces.
package pipeline

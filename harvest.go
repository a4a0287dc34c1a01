// Package harvest provides a semantic document store for scraped articles.
// Articles are embedded into vectors, deduplicated by canonical URL and content
// hash, persisted as an index file plus a metadata file, and queried by
// similarity with optional publish-date filtering.
//
// This package contains domain types and interfaces following Ben Johnson's
// Standard Package Layout. Implementations live in subdirectories named
// after their primary dependency (e.g., sqlite/, gemini/, trafilatura/).
package harvest

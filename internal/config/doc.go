// Package config loads enrichment daemon configuration from defaults, an
// optional JSON or YAML file, and ENRICH_* environment variable overlays,
// applied in that order.
package config

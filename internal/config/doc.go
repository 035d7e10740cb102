// Package config assembles server settings: port, preloaded documents,
// HTTP timeouts, rate limits, document size cap, placeholder delimiters and
// log level. Values come from defaults, an optional YAML file, environment
// variables and CLI flags, later sources overriding earlier ones.
package config

// Package config loads the fetchguard service configuration.
//
// Values come from three layers, later layers winning:
//   - Default()
//   - an optional config file (YAML, JSON or TOML, chosen by extension)
//   - FETCHGUARD_* environment variables, with "." in keys replaced by "_"
//     (FETCHGUARD_CACHE_REMOTE_URL overrides cache.remote_url)
//
// The cache.remote_url value may reference environment variables as ${VAR};
// a reference to an unset variable fails Load rather than yielding a broken URL.
//
// Load validates the result and reports the first problem as a *ConfigError
// naming the offending key. Invalid configuration is only ever detected here,
// at startup.
package config

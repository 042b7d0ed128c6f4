// Package config loads tunneld and tunnelctl settings.
//
// Precedence, lowest first: built-in defaults, the TOML file (only keys that
// are present), an optional .env file, then SECTUN_* environment variables.
package config

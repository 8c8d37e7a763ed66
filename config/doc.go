// Package config provides configuration management for zenflow.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variable overrides. A polling file watcher and a reloader
// support hot configuration swaps at runtime.
package config

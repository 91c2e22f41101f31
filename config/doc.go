// Package config loads the toolrouter configuration.
//
// Values are resolved in this order, later sources winning:
//
//  1. DefaultConfig
//  2. the YAML file passed to Load, if any
//  3. variables from .env files (existing environment variables are kept)
//  4. the process environment
//
// The core packages never read the environment themselves; everything they
// need is carried by Config and injected through their constructors.
package config

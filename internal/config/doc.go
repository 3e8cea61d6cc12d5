// Package config provides YAML configuration loading and validation
// for the sidekick audio capture service.
package config

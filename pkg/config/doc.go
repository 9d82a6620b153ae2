// Package config provides configuration management using Viper.
//
// Loads and validates configuration from YAML files with support for
// multiple config locations, environment variable overrides, and
// default values.
package config

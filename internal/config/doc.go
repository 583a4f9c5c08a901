// Package config loads and validates environment configuration for the relay.
package config

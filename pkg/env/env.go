package env

import (
	"os"
	"strings"
)

const prefix = "NEXUS_"

// Get returns NEXUS_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	if !strings.HasPrefix(key, prefix) {
		if val := os.Getenv(prefix + key); val != "" {
			return val
		}
	}
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID names this process for lock owners and log lines.
func InstanceID() string {
	if id := Get("INSTANCE_ID", ""); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "payment-service"
}

// Package agimeconfig resolves the execution engine's process-level
// configuration from the environment, grounded on
// internal/config.applyEnvOverrides's NEXUS_-prefixed lookups, generalized
// into the spec's dual-prefix protocol: every knob is looked up under
// AGIME_ first, then GOOSE_ for legacy deployments.
package agimeconfig

import (
	"os"
	"strconv"
	"strings"
)

// Lookup returns the first non-empty value of AGIME_<name> or GOOSE_<name>.
func Lookup(name string) (string, bool) {
	if v := strings.TrimSpace(os.Getenv("AGIME_" + name)); v != "" {
		return v, true
	}
	if v := strings.TrimSpace(os.Getenv("GOOSE_" + name)); v != "" {
		return v, true
	}
	return "", false
}

// LookupString returns Lookup's value or def.
func LookupString(name, def string) string {
	if v, ok := Lookup(name); ok {
		return v
	}
	return def
}

// LookupInt parses Lookup's value as an integer, falling back to def on
// absence or parse failure.
func LookupInt(name string, def int) int {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

// LookupBool parses Lookup's value as a boolean, falling back to def.
func LookupBool(name string, def bool) bool {
	v, ok := Lookup(name)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

// ServerConfig is the engine's process-level configuration, resolved
// entirely from the AGIME_/GOOSE_ environment.
type ServerConfig struct {
	Host        string
	Port        int
	JWTSecret   string
	TokenExpiry int // seconds
}

// Load resolves a ServerConfig from the environment.
func Load() ServerConfig {
	return ServerConfig{
		Host:        LookupString("HOST", "0.0.0.0"),
		Port:        LookupInt("PORT", 8080),
		JWTSecret:   LookupString("JWT_SECRET", ""),
		TokenExpiry: LookupInt("TOKEN_EXPIRY_SECONDS", 7*24*3600),
	}
}

// Addr renders host:port for net.Listen/http.Server.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Package config holds the settings consumed by the TLS layer.
//
// The layer does not own configuration-file syntax: hosts may populate
// Settings directly, or use Load to read the YAML rendering of the
// settings block.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Session cache backend names.
const (
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendDisabled = "disabled"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultCertificateFile = "srv_cert.pem"
	DefaultRSAKeyFile      = "rsa.pem"
	DefaultDHParameterFile = "dhparam.pem"

	DefaultSessionCapacity = 10240
	DefaultSessionTTL      = time.Hour
)

// Settings is the settings block consumed by the TLS layer.
type Settings struct {
	// ConfDir is the configuration directory used to resolve default
	// credential paths when the explicit fields are empty.
	ConfDir string `yaml:"confDir"`

	CertificateFile      string `yaml:"certificateFile"`
	CertificateChainFile string `yaml:"certificateChainFile"`
	RSAKeyFile           string `yaml:"rsaKeyFile"`
	DHParameterFile      string `yaml:"dhParameterFile"`

	SessionCache SessionCacheSettings `yaml:"sessionCache"`
}

// SessionCacheSettings configures the session-resumption store.
type SessionCacheSettings struct {
	Backend  string        `yaml:"backend"`
	Capacity int           `yaml:"capacity"`
	TTL      Duration      `yaml:"ttl"`
	Redis    RedisSettings `yaml:"redis"`
}

// RedisSettings configures the Redis session store backend.
type RedisSettings struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"keyPrefix"`
}

// ApplyDefaults fills unset fields with their defaults. Credential paths
// default under ConfDir; the chain file has no default.
func (s *Settings) ApplyDefaults() {
	if s.CertificateFile == "" {
		s.CertificateFile = filepath.Join(s.ConfDir, DefaultCertificateFile)
	}
	if s.RSAKeyFile == "" {
		s.RSAKeyFile = filepath.Join(s.ConfDir, DefaultRSAKeyFile)
	}
	if s.DHParameterFile == "" {
		s.DHParameterFile = filepath.Join(s.ConfDir, DefaultDHParameterFile)
	}
	if s.SessionCache.Backend == "" {
		s.SessionCache.Backend = SessionBackendMemory
	}
	if s.SessionCache.Capacity == 0 {
		s.SessionCache.Capacity = DefaultSessionCapacity
	}
	if s.SessionCache.TTL == 0 {
		s.SessionCache.TTL = Duration(DefaultSessionTTL)
	}
	if s.SessionCache.Redis.KeyPrefix == "" {
		s.SessionCache.Redis.KeyPrefix = "tlsterm:session:"
	}
}

// Validate checks the settings for consistency. It assumes ApplyDefaults
// has run.
func (s *Settings) Validate() error {
	switch s.SessionCache.Backend {
	case SessionBackendMemory, SessionBackendDisabled:
	case SessionBackendRedis:
		if s.SessionCache.Redis.Addr == "" {
			return fmt.Errorf("sessionCache.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown session cache backend %q", s.SessionCache.Backend)
	}

	if s.SessionCache.Capacity < 0 {
		return fmt.Errorf("sessionCache.capacity must not be negative")
	}
	if s.SessionCache.TTL < 0 {
		return fmt.Errorf("sessionCache.ttl must not be negative")
	}
	if s.CertificateFile == "" {
		return fmt.Errorf("certificateFile is empty and no confDir is set")
	}
	if s.RSAKeyFile == "" {
		return fmt.Errorf("rsaKeyFile is empty and no confDir is set")
	}
	return nil
}

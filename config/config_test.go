package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_ApplyDefaults(t *testing.T) {
	s := Settings{ConfDir: "/etc/srv"}
	s.ApplyDefaults()

	assert.Equal(t, filepath.Join("/etc/srv", "srv_cert.pem"), s.CertificateFile)
	assert.Equal(t, filepath.Join("/etc/srv", "rsa.pem"), s.RSAKeyFile)
	assert.Equal(t, filepath.Join("/etc/srv", "dhparam.pem"), s.DHParameterFile)
	assert.Empty(t, s.CertificateChainFile, "chain file has no default")
	assert.Equal(t, SessionBackendMemory, s.SessionCache.Backend)
	assert.Equal(t, DefaultSessionCapacity, s.SessionCache.Capacity)
	assert.Equal(t, time.Hour, s.SessionCache.TTL.Duration())
}

func TestSettings_ApplyDefaults_KeepsExplicitPaths(t *testing.T) {
	s := Settings{
		ConfDir:         "/etc/srv",
		CertificateFile: "/certs/primary.pem",
		RSAKeyFile:      "/certs/primary.key",
	}
	s.ApplyDefaults()

	assert.Equal(t, "/certs/primary.pem", s.CertificateFile)
	assert.Equal(t, "/certs/primary.key", s.RSAKeyFile)
}

func TestSettings_Validate(t *testing.T) {
	valid := func() Settings {
		s := Settings{ConfDir: "/etc/srv"}
		s.ApplyDefaults()
		return s
	}

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults pass", func(*Settings) {}, ""},
		{"disabled backend", func(s *Settings) { s.SessionCache.Backend = SessionBackendDisabled }, ""},
		{"redis without addr", func(s *Settings) { s.SessionCache.Backend = SessionBackendRedis }, "redis.addr"},
		{"redis with addr", func(s *Settings) {
			s.SessionCache.Backend = SessionBackendRedis
			s.SessionCache.Redis.Addr = "localhost:6379"
		}, ""},
		{"unknown backend", func(s *Settings) { s.SessionCache.Backend = "memcached" }, "unknown session cache backend"},
		{"negative capacity", func(s *Settings) { s.SessionCache.Capacity = -1 }, "capacity"},
		{"negative ttl", func(s *Settings) { s.SessionCache.TTL = Duration(-time.Second) }, "ttl"},
		{"missing cert path", func(s *Settings) { s.CertificateFile = "" }, "certificateFile"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromReader(t *testing.T) {
	doc := `
confDir: /etc/srv
certificateChainFile: /certs/chain.pem
sessionCache:
  backend: memory
  capacity: 64
  ttl: "30m"
`
	settings, err := LoadFromReader(strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, "/etc/srv", settings.ConfDir)
	assert.Equal(t, "/certs/chain.pem", settings.CertificateChainFile)
	assert.Equal(t, filepath.Join("/etc/srv", "srv_cert.pem"), settings.CertificateFile)
	assert.Equal(t, 64, settings.SessionCache.Capacity)
	assert.Equal(t, 30*time.Minute, settings.SessionCache.TTL.Duration())
}

func TestLoadFromReader_BadYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("certificateFile: [broken"))
	assert.Error(t, err)
}

func TestLoad_DefaultsConfDirToFileLocation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tls.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sessionCache:\n  backend: memory\n"), 0o600))

	settings, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, dir, settings.ConfDir)
	assert.Equal(t, filepath.Join(dir, "srv_cert.pem"), settings.CertificateFile)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

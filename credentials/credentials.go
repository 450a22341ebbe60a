// Package credentials loads and holds the server certificate chain, CA
// chain, and Diffie-Hellman parameters.
//
// Credentials are loaded once before any worker starts and are immutable
// afterwards. Missing or unparsable material falls back to compiled-in
// test credentials where the original behavior allows it; fallbacks are
// always reported through the logger.
package credentials

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/go-tlsterm/tlsterm/config"
	"github.com/go-tlsterm/tlsterm/observability"
)

// Credentials holds the process-wide credential material. Immutable after
// Load returns; accessors hand out copies.
type Credentials struct {
	certChainPEM []byte
	caChainPEM   []byte
	dh           DHParams

	builtinCert bool
}

// Option is a functional option for Load.
type Option func(*loadOptions)

type loadOptions struct {
	noBuiltinFallback bool
}

// WithoutBuiltinFallback disables the compiled-in test certificate and key.
// With the fallback disabled, unusable configured material is fatal.
func WithoutBuiltinFallback() Option {
	return func(o *loadOptions) {
		o.noBuiltinFallback = true
	}
}

// Load reads the configured credential material. It applies the fallback
// rules of the layer: test certificate when the configured one is unusable
// (warning), chain-file parse failures degrade to a warning, DH parameter
// failures fall back to the RFC 5114 group and are never fatal.
func Load(settings *config.Settings, logger observability.Logger, opts ...Option) (*Credentials, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Credentials{}

	if err := c.loadCertificate(settings.CertificateFile, logger, o); err != nil {
		return nil, err
	}
	c.loadChain(settings.CertificateChainFile, logger)
	c.loadDHParams(settings.DHParameterFile, logger)

	return c, nil
}

func (c *Credentials) loadCertificate(path string, logger observability.Logger, o loadOptions) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from host configuration
	if err == nil {
		if _, perr := parseCertificates(data); perr == nil {
			c.certChainPEM = data
			return nil
		} else {
			err = perr
		}
	}

	if o.noBuiltinFallback {
		return NewConfigErrorWithCause(path, "failed to load certificate", err)
	}

	logger.Warn("failed to load certificate, using built-in test certificate; "+
		"set CertificateFile to real material",
		observability.String("path", path),
		observability.Error(err),
	)
	c.certChainPEM = []byte(builtinCertPEM)
	c.builtinCert = true
	return nil
}

func (c *Credentials) loadChain(path string, logger observability.Logger) {
	if path == "" {
		return
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from host configuration
	if err == nil {
		_, err = parseCertificates(data)
	}
	if err != nil {
		logger.Warn("failed to load certificate chain, proceeding without it",
			observability.String("path", path),
			observability.Error(err),
		)
		return
	}
	c.caChainPEM = data
	// Present the extra chain to clients along with the leaf.
	if !c.builtinCert {
		c.certChainPEM = append(append([]byte{}, c.certChainPEM...), data...)
	}
}

func (c *Credentials) loadDHParams(path string, logger observability.Logger) {
	params, err := LoadDHParamsFile(path)
	if err != nil {
		logger.Warn("failed to load DH parameters, using RFC 5114 MODP-1024 group",
			observability.String("path", path),
			observability.Error(err),
		)
		params = DefaultDHParams()
	}
	c.dh = params
}

// CertChainPEM returns a copy of the PEM server certificate chain.
func (c *Credentials) CertChainPEM() []byte {
	return append([]byte{}, c.certChainPEM...)
}

// CAChainPEM returns a copy of the PEM CA chain, or nil when no chain file
// was configured or usable.
func (c *Credentials) CAChainPEM() []byte {
	if c.caChainPEM == nil {
		return nil
	}
	return append([]byte{}, c.caChainPEM...)
}

// DHParams returns the loaded (or fallback) DH group.
func (c *Credentials) DHParams() DHParams {
	return c.dh
}

// UsingBuiltinCertificate reports whether the compiled-in test certificate
// was selected.
func (c *Credentials) UsingBuiltinCertificate() bool {
	return c.builtinCert
}

// LoadWorkerKey reads the private key for one worker. Each worker parses
// its own copy of the key material. When the process certificate fell back
// to the built-in one, the matching built-in key is used regardless of the
// configured path, because mismatched material cannot complete a handshake.
func (c *Credentials) LoadWorkerKey(path string, logger observability.Logger, opts ...Option) ([]byte, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	if c.builtinCert {
		return []byte(builtinKeyPEM), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from host configuration
	if err == nil {
		if _, kerr := tls.X509KeyPair(c.certChainPEM, data); kerr == nil {
			return data, nil
		} else {
			err = kerr
		}
	}

	if o.noBuiltinFallback {
		return nil, NewConfigErrorWithCause(path, "failed to load private key", err)
	}

	logger.Warn("failed to load private key, using built-in test key",
		observability.String("path", path),
		observability.Error(err),
	)
	if _, kerr := tls.X509KeyPair(c.certChainPEM, []byte(builtinKeyPEM)); kerr != nil {
		return nil, NewConfigErrorWithCause(path, "built-in key does not match configured certificate", err)
	}
	return []byte(builtinKeyPEM), nil
}

// parseCertificates decodes every CERTIFICATE block in the PEM data.
func parseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, NewConfigErrorWithCause("", "failed to parse certificate", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, NewConfigErrorWithCause("", "no certificates found in PEM data", ErrNoUsableCertificate)
	}
	return certs, nil
}

package client

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
)

// CertBundle holds PEM material for reaching a backend behind a private CA.
type CertBundle struct {
	// CAPEM verifies the backend's TLS certificate.
	CAPEM string

	// CertPEM and PrivateKeyPEM are optional. When both are set the client
	// presents them for mutual TLS.
	CertPEM       string
	PrivateKeyPEM string
}

// LoadCertBundle reads ca.pem, and cert.pem plus key.pem when present, from dir.
//
//	bundle, err := client.LoadCertBundle(os.ExpandEnv("$HOME/.ocr/certs"))
func LoadCertBundle(dir string) (*CertBundle, error) {
	read := func(name string, required bool) (string, error) {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if !required && errors.Is(err, os.ErrNotExist) {
				return "", nil
			}
			return "", fmt.Errorf("read %s: %w", name, err)
		}
		return string(b), nil
	}

	ca, err := read("ca.pem", true)
	if err != nil {
		return nil, err
	}
	cert, err := read("cert.pem", false)
	if err != nil {
		return nil, err
	}
	key, err := read("key.pem", false)
	if err != nil {
		return nil, err
	}
	if (cert == "") != (key == "") {
		return nil, fmt.Errorf("cert.pem and key.pem must be provided together")
	}
	return &CertBundle{CAPEM: ca, CertPEM: cert, PrivateKeyPEM: key}, nil
}

// WithTLS trusts caPEM and, when certPEM and keyPEM are non-empty, presents
// them as a client certificate. It replaces any previously configured
// http.Client.
func WithTLS(caPEM, certPEM, keyPEM string) Option {
	return func(c *Client) error {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM([]byte(caPEM)) {
			return fmt.Errorf("failed to parse CA certificate PEM")
		}
		tlsCfg := &tls.Config{
			RootCAs:    pool,
			MinVersion: tls.VersionTLS12,
		}
		if certPEM != "" || keyPEM != "" {
			clientCert, err := tls.X509KeyPair([]byte(certPEM), []byte(keyPEM))
			if err != nil {
				return fmt.Errorf("parse client cert/key: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{clientCert}
		}

		c.httpClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}
		return nil
	}
}

// WithCertDir loads a CertBundle from dir and applies it with WithTLS:
//
//	c, err := client.New(base,
//	    client.WithCertDir(certDir),
//	    client.WithBearerToken(token),
//	)
func WithCertDir(dir string) Option {
	return func(c *Client) error {
		bundle, err := LoadCertBundle(dir)
		if err != nil {
			return fmt.Errorf("load cert bundle from %q: %w", dir, err)
		}
		return WithTLS(bundle.CAPEM, bundle.CertPEM, bundle.PrivateKeyPEM)(c)
	}
}

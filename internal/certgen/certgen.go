// Package certgen
// Author: momentics <momentics@gmail.com>
//
// Self-signed identity generation for demos and tests. Not used by the
// server or client themselves; they only load PEM files.
package certgen

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Options describes the generated certificate.
type Options struct {
	CommonName   string
	Organization string
	Country      string
	Hosts        []string
	ValidFor     time.Duration
	NotBefore    time.Time
	// RSA selects a 2048-bit RSA key instead of ECDSA P-256.
	RSA bool
}

// DefaultOptions returns a one-year localhost certificate.
func DefaultOptions() Options {
	return Options{
		CommonName:   "localhost",
		Organization: "hioload-tls",
		Country:      "CA",
		Hosts:        []string{"localhost", "127.0.0.1", "::1"},
		ValidFor:     365 * 24 * time.Hour,
	}
}

// Pair is a PEM encoded key and certificate.
type Pair struct {
	KeyPEM  []byte
	CertPEM []byte
}

// Generate creates a self-signed pair. The certificate is its own CA so
// clients can trust it directly through a root pool.
func Generate(o Options) (*Pair, error) {
	if o.ValidFor <= 0 {
		o.ValidFor = DefaultOptions().ValidFor
	}
	notBefore := o.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Minute)
	}

	var (
		priv crypto.Signer
		err  error
	)
	if o.RSA {
		priv, err = rsa.GenerateKey(rand.Reader, 2048)
	} else {
		priv, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: o.CommonName,
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(o.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	if o.Organization != "" {
		tmpl.Subject.Organization = []string{o.Organization}
	}
	if o.Country != "" {
		tmpl.Subject.Country = []string{o.Country}
	}
	if o.RSA {
		tmpl.KeyUsage |= x509.KeyUsageKeyEncipherment
	}
	for _, h := range o.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, priv.Public(), priv)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	keyDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	return &Pair{
		KeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}),
		CertPEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}, nil
}

// Write stores the pair, the key with owner-only permissions.
func (p *Pair) Write(keyPath, certPath string) error {
	for _, path := range []string{keyPath, certPath} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0o600); err != nil {
		return fmt.Errorf("write key: %w", err)
	}
	if err := os.WriteFile(certPath, p.CertPEM, 0o644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	return nil
}

// WriteTemp generates a default pair into dir and returns the file paths.
func WriteTemp(dir string) (keyPath, certPath string, err error) {
	pair, err := Generate(DefaultOptions())
	if err != nil {
		return "", "", err
	}
	keyPath = filepath.Join(dir, "key.pem")
	certPath = filepath.Join(dir, "cert.pem")
	if err := pair.Write(keyPath, certPath); err != nil {
		return "", "", err
	}
	return keyPath, certPath, nil
}

// Ensure generates a pair at the given paths unless both files already exist.
// It reports whether a new pair was written.
func Ensure(keyPath, certPath string, o Options) (bool, error) {
	_, kerr := os.Stat(keyPath)
	_, cerr := os.Stat(certPath)
	if kerr == nil && cerr == nil {
		return false, nil
	}
	pair, err := Generate(o)
	if err != nil {
		return false, err
	}
	return true, pair.Write(keyPath, certPath)
}

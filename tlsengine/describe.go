package tlsengine

import (
	"crypto/x509"
	"fmt"
	"strings"
	"time"
)

// DescribeCertificate renders subject, issuer and validity window on separate lines.
func DescribeCertificate(c *x509.Certificate) string {
	if c == nil {
		return "no certificate"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subject: %s\n", c.Subject)
	fmt.Fprintf(&b, "Issuer: %s\n", c.Issuer)
	fmt.Fprintf(&b, "Valid From: %s\n", c.NotBefore.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Valid Until: %s", c.NotAfter.UTC().Format(time.RFC3339))
	return b.String()
}

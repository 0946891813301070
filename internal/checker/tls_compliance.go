package checker

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"strings"
	"time"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

// versionSSL30 is the legacy SSL 3.0 protocol version (0x0300), defined
// locally to avoid the deprecated tls.VersionSSL30 symbol.
const versionSSL30 uint16 = 0x0300

// weakCipherSuites should not be negotiated by a modern server.
var weakCipherSuites = map[uint16]string{
	tls.TLS_RSA_WITH_RC4_128_SHA:            "TLS_RSA_WITH_RC4_128_SHA",
	tls.TLS_RSA_WITH_3DES_EDE_CBC_SHA:       "TLS_RSA_WITH_3DES_EDE_CBC_SHA",
	tls.TLS_ECDHE_ECDSA_WITH_RC4_128_SHA:    "TLS_ECDHE_ECDSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_RC4_128_SHA:      "TLS_ECDHE_RSA_WITH_RC4_128_SHA",
	tls.TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA: "TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA",
}

// CertificateInfo describes the leaf certificate presented by the server.
type CertificateInfo struct {
	Subject         string   `json:"subject"`
	Issuer          string   `json:"issuer"`
	NotBefore       string   `json:"not_before"`
	NotAfter        string   `json:"not_after"`
	DNSNames        []string `json:"dns_names,omitempty"`
	SelfSigned      bool     `json:"self_signed"`
	DaysUntilExpiry int      `json:"days_until_expiry"`
	SignatureAlg    string   `json:"signature_algorithm"`
	PublicKeyAlg    string   `json:"public_key_algorithm"`
	KeySize         int      `json:"key_size,omitempty"`
}

// TLSFinding is one issue found in a TLS connection.
type TLSFinding struct {
	Status      Status `json:"status"`
	Description string `json:"description"`
	Remediation string `json:"remediation"`
}

// TLSReport summarises a negotiated TLS connection.
type TLSReport struct {
	Version     string           `json:"version"`
	CipherSuite string           `json:"cipher_suite"`
	ALPN        string           `json:"alpn,omitempty"`
	Certificate *CertificateInfo `json:"certificate,omitempty"`
	Findings    []TLSFinding     `json:"findings,omitempty"`
}

// Status returns the worst status among the findings.
func (r *TLSReport) Status() Status {
	status := StatusSecure
	for _, f := range r.Findings {
		status = Worst(status, f.Status)
	}
	return status
}

func (r *TLSReport) add(status Status, description, remediation string) {
	r.Findings = append(r.Findings, TLSFinding{Status: status, Description: description, Remediation: remediation})
}

// InspectTLS evaluates protocol version, cipher suite and leaf certificate
// of an established connection. now is injected for expiry arithmetic.
func InspectTLS(state *tls.ConnectionState, now time.Time) *TLSReport {
	if state == nil {
		return nil
	}
	report := &TLSReport{
		Version:     tlsVersionString(state.Version),
		CipherSuite: cipherSuiteString(state.CipherSuite),
		ALPN:        state.NegotiatedProtocol,
	}

	switch {
	case state.Version < tls.VersionTLS12:
		report.add(StatusDanger,
			fmt.Sprintf("insecure protocol %s negotiated", report.Version),
			"Disable SSL 3.0, TLS 1.0 and TLS 1.1; serve TLS 1.2 and TLS 1.3 only")
	case state.Version == tls.VersionTLS12:
		if !strings.Contains(report.CipherSuite, "ECDHE") {
			report.add(StatusWarning,
				fmt.Sprintf("cipher suite %s lacks forward secrecy", report.CipherSuite),
				"Prefer ECDHE key exchange suites for forward secrecy")
		}
	}

	if name, weak := weakCipherSuites[state.CipherSuite]; weak {
		report.add(StatusDanger,
			fmt.Sprintf("weak cipher suite %s negotiated", name),
			"Remove RC4 and 3DES suites; use AES-GCM or ChaCha20-Poly1305")
	} else if state.Version == tls.VersionTLS12 && strings.Contains(report.CipherSuite, "_CBC_") {
		report.add(StatusWarning,
			fmt.Sprintf("CBC-mode cipher suite %s negotiated", report.CipherSuite),
			"Prefer AEAD cipher suites (AES-GCM, ChaCha20-Poly1305)")
	}

	if len(state.PeerCertificates) > 0 {
		report.Certificate = analyzeCertificate(state.PeerCertificates[0], now)
		checkCertificate(report)
	}

	return report
}

func analyzeCertificate(cert *x509.Certificate, now time.Time) *CertificateInfo {
	info := &CertificateInfo{
		Subject:         cert.Subject.String(),
		Issuer:          cert.Issuer.String(),
		NotBefore:       cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:        cert.NotAfter.UTC().Format(time.RFC3339),
		DNSNames:        cert.DNSNames,
		SelfSigned:      cert.Subject.String() == cert.Issuer.String(),
		DaysUntilExpiry: int(cert.NotAfter.Sub(now).Hours() / 24),
		SignatureAlg:    cert.SignatureAlgorithm.String(),
		PublicKeyAlg:    cert.PublicKeyAlgorithm.String(),
	}
	if cert.NotAfter.Before(now) {
		info.DaysUntilExpiry = -1
	}

	switch key := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		info.KeySize = key.N.BitLen()
	case *ecdsa.PublicKey:
		info.KeySize = key.Curve.Params().BitSize
	}
	return info
}

func checkCertificate(report *TLSReport) {
	cert := report.Certificate

	switch {
	case cert.DaysUntilExpiry < 0:
		report.add(StatusDanger, "certificate has expired", "Renew the TLS certificate immediately")
	case time.Duration(cert.DaysUntilExpiry)*24*time.Hour < consts.TLSSoonExpiryWindow:
		report.add(StatusWarning,
			fmt.Sprintf("certificate expires in %d day(s)", cert.DaysUntilExpiry),
			"Renew the certificate or enable automated renewal (ACME)")
	}

	if cert.SelfSigned {
		report.add(StatusWarning, "certificate is self-signed", "Use a certificate issued by a publicly trusted CA")
	}

	alg := strings.ToLower(cert.SignatureAlg)
	if strings.Contains(alg, "md5") || strings.Contains(alg, "sha1") {
		report.add(StatusDanger,
			fmt.Sprintf("weak certificate signature algorithm %s", cert.SignatureAlg),
			"Reissue the certificate with a SHA-256 or stronger signature")
	}

	if cert.PublicKeyAlg == "RSA" && cert.KeySize > 0 && cert.KeySize < 2048 {
		report.add(StatusDanger,
			fmt.Sprintf("RSA key too small (%d bits)", cert.KeySize),
			"Use RSA keys of at least 2048 bits or switch to ECDSA P-256")
	}
}

// tlsVersionString converts a TLS version constant to a display string.
func tlsVersionString(version uint16) string {
	switch version {
	case versionSSL30:
		return "SSL 3.0"
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("Unknown (0x%04x)", version)
	}
}

func cipherSuiteString(suite uint16) string {
	if name, ok := weakCipherSuites[suite]; ok {
		return name
	}
	if name := tls.CipherSuiteName(suite); name != "" {
		return name
	}
	return fmt.Sprintf("Unknown (0x%04x)", suite)
}

package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// GetMTLSCertificate returns the certificates and peer CA pool used for mTLS.
//
// Drone configuration:
//
//	GetMTLSCertificate("./tls/drone_cert.pem", "./tls/drone_key.pem", "./tls/server_ca_cert.pem")
//
// Team server configuration:
//
//	GetMTLSCertificate("./tls/server_cert.pem", "./tls/server_key.pem", "./tls/drone_ca_cert.pem")
func GetMTLSCertificate(localCert, localKey, peerCA string) ([]tls.Certificate, *x509.CertPool, error) {
	cert, err := tls.LoadX509KeyPair(localCert, localKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load local certificate/privkey: %w", err)
	}

	ca := x509.NewCertPool()

	caBytes, err := os.ReadFile(peerCA)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read peer CA certificate '%s': %w", peerCA, err)
	}
	if ok := ca.AppendCertsFromPEM(caBytes); !ok {
		return nil, nil, fmt.Errorf("failed to parse '%s'", peerCA)
	}

	return []tls.Certificate{cert}, ca, nil
}

// GetAPITLSCertificate loads the HTTP API certificate and key.
func GetAPITLSCertificate(certFile, keyFile string) ([]tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load API certificate/privkey: %w", err)
	}

	return []tls.Certificate{cert}, nil
}

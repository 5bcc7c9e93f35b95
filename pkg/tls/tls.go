// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package tls builds server TLS configurations from file-based key material
// and exposes helpers for inspecting the negotiated connection state. Key
// material loading policy beyond file paths lives outside the core.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"os"
)

var (
	errTLSdetails   = errors.New("failed to get TLS details of connection")
	errLoadCerts    = errors.New("failed to load certificates")
	errLoadClientCA = errors.New("failed to load Client CA")
	errAppendCA     = errors.New("failed to append root ca tls.Config")
	errClientAuth   = errors.New("unknown client auth policy")
)

// Config describes the TLS server parameters the transport layer consumes.
type Config struct {
	CertFile     string   `yaml:"cert_file"`
	KeyFile      string   `yaml:"key_file"`
	ClientCAFile string   `yaml:"ca_file"`
	ClientAuth   string   `yaml:"client_auth"` // "none", "request", or "require"
	ALPN         []string `yaml:"alpn"`
}

// Load returns a TLS configuration for servers, or nil when no certificate
// pair is configured.
func (c *Config) Load() (*tls.Config, error) {
	if c == nil || c.CertFile == "" || c.KeyFile == "" {
		return nil, nil
	}

	certificate, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, errors.Join(errLoadCerts, err)
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
		},
		Certificates: []tls.Certificate{certificate},
		NextProtos:   c.ALPN,
	}

	if c.ClientCAFile != "" {
		clientCA, err := os.ReadFile(c.ClientCAFile)
		if err != nil {
			return nil, errors.Join(errLoadClientCA, err)
		}
		config.ClientCAs = x509.NewCertPool()
		if !config.ClientCAs.AppendCertsFromPEM(clientCA) {
			return nil, errAppendCA
		}
	}

	switch c.ClientAuth {
	case "", "none":
		config.ClientAuth = tls.NoClientCert
	case "request":
		config.ClientAuth = tls.RequestClientCert
	case "require":
		config.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		return nil, errClientAuth
	}

	return config, nil
}

// ClientCert returns the peer's leaf certificate, forcing the handshake if
// it has not completed yet. A non-TLS connection or an anonymous peer
// yields a zero certificate.
func ClientCert(conn net.Conn) (x509.Certificate, error) {
	switch connVal := conn.(type) {
	case *tls.Conn:
		if err := connVal.Handshake(); err != nil {
			return x509.Certificate{}, err
		}
		state := connVal.ConnectionState()
		if state.Version == 0 {
			return x509.Certificate{}, errTLSdetails
		}
		if len(state.PeerCertificates) == 0 {
			return x509.Certificate{}, nil
		}
		return *state.PeerCertificates[0], nil
	default:
		return x509.Certificate{}, nil
	}
}

// PeerCertificates returns the full presented chain for a TLS connection,
// or nil for non-TLS transports.
func PeerCertificates(conn net.Conn) []*x509.Certificate {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		return tlsConn.ConnectionState().PeerCertificates
	}
	return nil
}

// SecurityStatus returns a log message describing the TLS configuration.
func SecurityStatus(c *tls.Config) string {
	if c == nil {
		return "no TLS"
	}
	ret := "TLS"
	if len(c.Certificates) == 0 {
		ret = "no server certificates"
	}
	if c.ClientCAs != nil {
		ret += " and " + c.ClientAuth.String()
	}
	return ret
}

// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// selfSigned generates a self-signed certificate for the given common name.
func selfSigned(t *testing.T, commonName string) tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{commonName},
	}
	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := tls.X509KeyPair(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER}),
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}),
	)
	require.NoError(t, err)
	return cert
}

// writeSelfSigned writes a self-signed certificate and key pair into dir.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	cert := selfSigned(t, "localhost")
	certFile = filepath.Join(dir, "server.crt")
	keyFile = filepath.Join(dir, "server.key")

	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	keyOut := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(cert.PrivateKey.(*rsa.PrivateKey)),
	})
	require.NoError(t, os.WriteFile(certFile, certOut, 0o600))
	require.NoError(t, os.WriteFile(keyFile, keyOut, 0o600))
	return certFile, keyFile
}

func TestLoadWithoutCertsReturnsNil(t *testing.T) {
	cfg := &Config{}
	tlsCfg, err := cfg.Load()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	tlsCfg, err = (*Config)(nil).Load()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)
}

func TestLoadServerConfig(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t, t.TempDir())

	cfg := &Config{
		CertFile: certFile,
		KeyFile:  keyFile,
		ALPN:     []string{"mqtt"},
	}
	tlsCfg, err := cfg.Load()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)

	assert.Len(t, tlsCfg.Certificates, 1)
	assert.Equal(t, []string{"mqtt"}, tlsCfg.NextProtos)
	assert.Equal(t, uint16(tls.VersionTLS12), tlsCfg.MinVersion)
	assert.Equal(t, tls.NoClientCert, tlsCfg.ClientAuth)
}

func TestLoadClientAuthPolicies(t *testing.T) {
	certFile, keyFile := writeSelfSigned(t, t.TempDir())

	tests := []struct {
		policy string
		want   tls.ClientAuthType
	}{
		{"", tls.NoClientCert},
		{"none", tls.NoClientCert},
		{"request", tls.RequestClientCert},
		{"require", tls.RequireAndVerifyClientCert},
	}
	for _, tt := range tests {
		cfg := &Config{CertFile: certFile, KeyFile: keyFile, ClientAuth: tt.policy}
		tlsCfg, err := cfg.Load()
		require.NoError(t, err, tt.policy)
		assert.Equal(t, tt.want, tlsCfg.ClientAuth, tt.policy)
	}

	cfg := &Config{CertFile: certFile, KeyFile: keyFile, ClientAuth: "bogus"}
	_, err := cfg.Load()
	assert.Error(t, err)
}

func TestLoadMissingFiles(t *testing.T) {
	cfg := &Config{CertFile: "/nonexistent/cert", KeyFile: "/nonexistent/key"}
	_, err := cfg.Load()
	assert.Error(t, err)
}

func TestClientCertNonTLS(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cert, err := ClientCert(server)
	require.NoError(t, err)
	assert.Empty(t, cert.Subject.CommonName)
	assert.Nil(t, PeerCertificates(server))
}

func TestClientCertCapturedOverTLS(t *testing.T) {
	serverCert := selfSigned(t, "localhost")
	clientCert := selfSigned(t, "test-client")

	clientSide, serverSide := net.Pipe()

	tlsClient := tls.Client(clientSide, &tls.Config{
		InsecureSkipVerify: true,
		Certificates:       []tls.Certificate{clientCert},
	})
	tlsServer := tls.Server(serverSide, &tls.Config{
		Certificates: []tls.Certificate{serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
	})
	defer tlsClient.Close()
	defer tlsServer.Close()

	clientErr := make(chan error, 1)
	go func() {
		clientErr <- tlsClient.Handshake()
	}()

	cert, err := ClientCert(tlsServer)
	require.NoError(t, err)
	assert.Equal(t, "test-client", cert.Subject.CommonName)
	require.NoError(t, <-clientErr)

	chain := PeerCertificates(tlsServer)
	require.Len(t, chain, 1)
	assert.Equal(t, "test-client", chain[0].Subject.CommonName)
}

func TestSecurityStatus(t *testing.T) {
	assert.Equal(t, "no TLS", SecurityStatus(nil))

	certFile, keyFile := writeSelfSigned(t, t.TempDir())
	cfg := &Config{CertFile: certFile, KeyFile: keyFile}
	tlsCfg, err := cfg.Load()
	require.NoError(t, err)
	assert.Equal(t, "TLS", SecurityStatus(tlsCfg))
}

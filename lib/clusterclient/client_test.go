// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clusterclient

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// serverCA writes the TLS test server's certificate as a CA bundle.
func serverCA(t *testing.T, server *httptest.Server) string {
	t.Helper()
	block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: server.Certificate().Raw})
	return writeFile(t, "ca.pem", block)
}

func get(t *testing.T, client *http.Client, url string, header http.Header) (*http.Response, error) {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	for name, values := range header {
		request.Header[name] = values
	}
	response, err := client.Do(request)
	if err == nil {
		t.Cleanup(func() { response.Body.Close() })
	}
	return response, err
}

func TestTrustsConfiguredCA(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer server.Close()

	client, err := New(Config{CAFile: serverCA(t, server), Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	response, err := get(t, client, server.URL, nil)
	if err != nil {
		t.Fatalf("GET with trusted CA: %v", err)
	}
	if response.StatusCode != http.StatusOK {
		t.Errorf("status = %d", response.StatusCode)
	}
}

func TestRejectsUnknownCA(t *testing.T) {
	server := httptest.NewTLSServer(http.NotFoundHandler())
	defer server.Close()

	client, err := New(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := get(t, client, server.URL, nil); err == nil {
		t.Fatal("expected certificate verification failure")
	}

	insecure, err := New(Config{InsecureSkipVerify: true, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := get(t, insecure, server.URL, nil); err != nil {
		t.Fatalf("GET with verification disabled: %v", err)
	}
}

func TestDoesNotFollowRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusFound)
			return
		}
		t.Errorf("redirect was followed to %s", r.URL.Path)
	}))
	defer server.Close()

	client, err := New(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	response, err := get(t, client, server.URL+"/old", nil)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if response.StatusCode != http.StatusFound {
		t.Errorf("status = %d, want 302", response.StatusCode)
	}
	if response.Header.Get("Location") != "/new" {
		t.Errorf("Location = %q", response.Header.Get("Location"))
	}
}

func TestPreservesContentEncoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != "" {
			t.Errorf("client added Accept-Encoding %q", r.Header.Get("Accept-Encoding"))
		}
	}))
	defer server.Close()

	client, err := New(Config{Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := get(t, client, server.URL, nil); err != nil {
		t.Fatalf("GET: %v", err)
	}
}

func TestBearerToken(t *testing.T) {
	seen := make(chan string, 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Authorization")
	}))
	defer server.Close()

	tokenPath := writeFile(t, "token", []byte("first-token\n"))
	client, err := New(Config{BearerTokenFile: tokenPath, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := get(t, client, server.URL, nil); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := <-seen; got != "Bearer first-token" {
		t.Errorf("Authorization = %q, want Bearer first-token", got)
	}

	// A controller-supplied Authorization wins.
	if _, err := get(t, client, server.URL, http.Header{"Authorization": {"Basic abc"}}); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := <-seen; got != "Basic abc" {
		t.Errorf("Authorization = %q, want the caller's", got)
	}

	// Rotation: a different size guarantees the change is noticed
	// even when the filesystem's mtime granularity is coarse.
	if err := os.WriteFile(tokenPath, []byte("rotated-token-value\n"), 0600); err != nil {
		t.Fatalf("rewriting token: %v", err)
	}
	if _, err := get(t, client, server.URL, nil); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := <-seen; got != "Bearer rotated-token-value" {
		t.Errorf("Authorization = %q after rotation", got)
	}

	// A vanished file keeps the last good token.
	if err := os.Remove(tokenPath); err != nil {
		t.Fatalf("removing token: %v", err)
	}
	if _, err := get(t, client, server.URL, nil); err != nil {
		t.Fatalf("GET: %v", err)
	}
	if got := <-seen; got != "Bearer rotated-token-value" {
		t.Errorf("Authorization = %q after removal", got)
	}
}

func TestClientCertificate(t *testing.T) {
	certPEM, keyPEM := selfSignedClientCert(t)
	clientCert, err := x509.ParseCertificate(mustDecodePEM(t, certPEM))
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	clientCAs := x509.NewCertPool()
	clientCAs.AddCert(clientCert)

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(r.TLS.PeerCertificates) == 0 {
			t.Error("no client certificate presented")
			return
		}
		io.WriteString(w, r.TLS.PeerCertificates[0].Subject.CommonName)
	}))
	server.TLS = &tls.Config{ClientAuth: tls.RequireAndVerifyClientCert, ClientCAs: clientCAs}
	server.StartTLS()
	defer server.Close()

	client, err := New(Config{
		CAFile:   serverCA(t, server),
		CertFile: writeFile(t, "client.pem", certPEM),
		KeyFile:  writeFile(t, "client-key.pem", keyPEM),
		Logger:   quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	response, err := get(t, client, server.URL, nil)
	if err != nil {
		t.Fatalf("GET with client certificate: %v", err)
	}
	body, _ := io.ReadAll(response.Body)
	if string(body) != "system:controller" {
		t.Errorf("server saw client %q", body)
	}
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{"cert without key", Config{CertFile: "/cert.pem"}, "set together"},
		{"missing CA", Config{CAFile: "/nonexistent/ca.pem"}, "reading CA bundle"},
		{"empty CA", Config{CAFile: writeFile(t, "empty.pem", []byte("not a certificate"))}, "no certificates"},
		{"missing keypair", Config{CertFile: "/nonexistent/c.pem", KeyFile: "/nonexistent/k.pem"}, "client certificate"},
		{"missing token", Config{BearerTokenFile: "/nonexistent/token"}, "bearer token"},
		{"empty token", Config{BearerTokenFile: writeFile(t, "token", []byte("  \n"))}, "is empty"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			test.config.Logger = quietLogger()
			_, err := New(test.config)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("error %q does not mention %q", err, test.want)
			}
		})
	}
}

func selfSignedClientCert(t *testing.T) (certPEM, keyPEM []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "system:controller"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("MarshalECPrivateKey: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

func mustDecodePEM(t *testing.T, data []byte) []byte {
	t.Helper()
	block, _ := pem.Decode(data)
	if block == nil {
		t.Fatal("no PEM block")
	}
	return block.Bytes
}

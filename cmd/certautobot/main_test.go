package main

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certautobot/internal/provider/digitalocean"
	"certautobot/internal/provider/digitalocean/dotest"
)

type cli struct {
	environ map[string]string
	stdin   string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newCLI(t *testing.T, environ map[string]string) *cli {
	t.Helper()
	if environ == nil {
		environ = map[string]string{}
	}
	if _, ok := environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"]; !ok {
		environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"] = t.TempDir()
	}
	if _, ok := environ["CERTAUTOBOT_PROPAGATION_DELAY"]; !ok {
		environ["CERTAUTOBOT_PROPAGATION_DELAY"] = "1ms"
	}
	return &cli{environ: environ}
}

func (c *cli) run(args ...string) int {
	return run(args, c.environ, strings.NewReader(c.stdin), &c.stdout, &c.stderr)
}

func withServer(srv *dotest.Server, environ map[string]string) map[string]string {
	environ[digitalocean.EnvToken] = srv.Token
	environ[digitalocean.EnvAPIURL] = srv.URL
	return environ
}

func writeCert(t *testing.T, configDir, fqdn string, notAfter time.Time) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(42),
		Subject:      pkix.Name{CommonName: fqdn},
		DNSNames:     []string{fqdn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	dir := filepath.Join(configDir, "live", fqdn)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
}

func TestRun_Help(t *testing.T) {
	c := newCLI(t, nil)
	assert.Equal(t, 0, c.run("--help"))
	assert.Contains(t, c.stderr.String(), "digitalocean")
	assert.Contains(t, c.stderr.String(), "--action")
}

func TestRun_BadFlags(t *testing.T) {
	c := newCLI(t, nil)
	assert.Equal(t, 1, c.run("--nope"))

	c = newCLI(t, nil)
	assert.Equal(t, 1, c.run("--action", "renew"))
	assert.Contains(t, c.stderr.String(), "--domain")

	c = newCLI(t, nil)
	assert.Equal(t, 1, c.run("--action", "explode", "--domain", "example.com"))
	assert.Contains(t, c.stderr.String(), "explode")

	c = newCLI(t, nil)
	assert.Equal(t, 1, c.run("--domain", "localhost"))
	assert.Contains(t, c.stderr.String(), "error:")
}

func TestRun_HookRoundTrip(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	c := newCLI(t, withServer(srv, map[string]string{
		"CERTBOT_DOMAIN":     "www.example.com",
		"CERTBOT_VALIDATION": "abc",
	}))
	require.Equal(t, 0, c.run("hook", "auth"), c.stderr.String())
	assert.Contains(t, c.stdout.String(), "_acme-challenge.www.example.com")
	assert.Contains(t, c.stderr.String(), "_acme-challenge.www")
	require.Len(t, srv.Records("example.com"), 1)

	c = newCLI(t, withServer(srv, map[string]string{"CERTBOT_DOMAIN": "www.example.com"}))
	require.Equal(t, 0, c.run("hook", "cleanup"), c.stderr.String())
	assert.Empty(t, srv.Records("example.com"))

	// 重复清理仍然成功
	c = newCLI(t, withServer(srv, map[string]string{"CERTBOT_DOMAIN": "www.example.com"}))
	assert.Equal(t, 0, c.run("hook", "cleanup"))
}

func TestRun_HookMissingCredential(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	for _, action := range []string{"auth", "cleanup"} {
		c := newCLI(t, map[string]string{
			"CERTBOT_DOMAIN":       "www.example.com",
			"CERTBOT_VALIDATION":   "abc",
			digitalocean.EnvAPIURL: srv.URL,
		})
		assert.Equal(t, 1, c.run("hook", action))
		assert.Contains(t, c.stderr.String(), "error:")
		assert.Contains(t, c.stderr.String(), digitalocean.EnvToken)
	}
	assert.Empty(t, srv.Calls())
}

func TestRun_HookUsage(t *testing.T) {
	c := newCLI(t, nil)
	assert.Equal(t, 1, c.run("hook"))

	c = newCLI(t, map[string]string{"CERTBOT_DOMAIN": "example.com"})
	assert.Equal(t, 1, c.run("hook", "deploy"))
}

func TestRun_Expiry(t *testing.T) {
	c := newCLI(t, nil)
	writeCert(t, c.environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"], "www.example.com", time.Now().Add(50*24*time.Hour+time.Hour))

	require.Equal(t, 0, c.run("--action", "expiry", "--domain", "example.com", "--subdomain", "www"), c.stderr.String())
	assert.Contains(t, c.stdout.String(), "www.example.com 的证书将在 50 天后过期")

	c = newCLI(t, nil)
	assert.Equal(t, 1, c.run("--action", "expiry", "--domain", "missing.example.com"))
	assert.Contains(t, c.stderr.String(), "error:")
}

func TestRun_RenewSkipped(t *testing.T) {
	c := newCLI(t, map[string]string{
		"CERTAUTOBOT_CERTBOT_PATH": filepath.Join(t.TempDir(), "certbot-not-installed"),
	})
	writeCert(t, c.environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"], "example.com", time.Now().Add(90*24*time.Hour))

	assert.Equal(t, 0, c.run("--action", "renew", "--domain", "example.com"), c.stderr.String())
	assert.Contains(t, c.stdout.String(), "无需续期，已跳过")
}

func TestRun_RenewCertbotMissing(t *testing.T) {
	c := newCLI(t, map[string]string{
		"CERTAUTOBOT_CERTBOT_PATH": filepath.Join(t.TempDir(), "certbot-not-installed"),
	})

	assert.Equal(t, 1, c.run("--domain", "example.com"))
	assert.Contains(t, c.stderr.String(), "certbot-not-installed")
}

func TestRun_RenewCertbotFailure(t *testing.T) {
	script := filepath.Join(t.TempDir(), "certbot")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"DNS_PROVIDER=$DNS_PROVIDER\" >&2\necho 'Some challenges have failed.' >&2\nexit 3\n"), 0o755))

	c := newCLI(t, map[string]string{"CERTAUTOBOT_CERTBOT_PATH": script})
	assert.Equal(t, 3, c.run("--domain", "example.com", "--provider", "Huawei", "--force"))
	assert.Contains(t, c.stderr.String(), "certbot 退出码 3")
	assert.Contains(t, c.stderr.String(), "DNS_PROVIDER=huawei")
	assert.Contains(t, c.stderr.String(), "Some challenges have failed.")
}

func TestRun_InteractiveCreate(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	c := newCLI(t, withServer(srv, map[string]string{}))
	writeCert(t, c.environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"], "www.example.com", time.Now().Add(20*24*time.Hour+time.Hour))
	c.stdin = "9\n1\n1\nwww\n3\n"

	require.Equal(t, 0, c.run(), c.stderr.String())
	out := c.stdout.String()
	assert.Contains(t, out, "1. example.com")
	assert.Contains(t, out, "无效的选择，请重新输入")
	assert.Contains(t, out, "已选择域名: example.com")
	assert.Contains(t, out, "www.example.com 的证书将在 20 天后过期")
}

func TestRun_InteractiveOverwrite(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()
	srv.AddRecord("example.com", dotest.Record{Type: "A", Name: "www", Data: "192.0.2.1"})
	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge.api", Data: "stale"})

	c := newCLI(t, withServer(srv, map[string]string{}))
	writeCert(t, c.environ["CERTAUTOBOT_CERTBOT_CONFIG_DIR"], "api.example.com", time.Now().Add(70*24*time.Hour+time.Hour))
	c.stdin = "1\n2\n1\n3\n"

	require.Equal(t, 0, c.run(), c.stderr.String())
	out := c.stdout.String()
	assert.Contains(t, out, "1. _acme-challenge.api (TXT)")
	assert.NotContains(t, out, "www (A)")
	assert.Contains(t, out, "api.example.com 的证书将在 70 天后过期")
}

func TestRun_InteractiveInputEnds(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	c := newCLI(t, withServer(srv, map[string]string{}))
	c.stdin = "1\n"
	assert.Equal(t, 1, c.run())
	assert.Contains(t, c.stderr.String(), "error:")
}

func TestRun_InteractiveMissingCredential(t *testing.T) {
	c := newCLI(t, nil)
	assert.Equal(t, 1, c.run())
	assert.Contains(t, c.stderr.String(), digitalocean.EnvToken)
}

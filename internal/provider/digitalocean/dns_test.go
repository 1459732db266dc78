package digitalocean

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certautobot/internal/provider"
	"certautobot/internal/provider/digitalocean/dotest"
)

func newTestProvider(t *testing.T, srv *dotest.Server, token string) *DNSProvider {
	t.Helper()
	p, err := NewDNSProvider(logr.Discard(), provider.Settings{
		EnvToken:  token,
		EnvAPIURL: srv.URL,
	})
	require.NoError(t, err)
	return p
}

func TestNewDNSProvider_MissingToken(t *testing.T) {
	_, err := NewDNSProvider(logr.Discard(), provider.Settings{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrAuth))
}

func TestNewDNSProvider_DefaultURL(t *testing.T) {
	p, err := NewDNSProvider(logr.Discard(), provider.Settings{EnvToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, defaultAPIURL, p.baseURL)
}

func TestRegistered(t *testing.T) {
	b, err := provider.Lookup("DigitalOcean")
	require.NoError(t, err)
	assert.Equal(t, []string{EnvToken}, b.CredentialEnv)
	assert.Nil(t, b.NewCertStore)
}

func TestFetchDomains(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "secret")
	domains, err := p.FetchDomains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"example.com"}, domains)
}

func TestFetchDomains_BadToken(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "wrong")
	_, err := p.FetchDomains(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrAuth))

	var perr *provider.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
}

func TestFetchDomains_Unreachable(t *testing.T) {
	srv := dotest.NewServer("secret")
	p := newTestProvider(t, srv, "secret")
	srv.Close()

	_, err := p.FetchDomains(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrTransientNetwork))
}

func TestFetchRecords_UnknownDomain(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "secret")
	_, err := p.FetchRecords(context.Background(), "other.org")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

func TestCreateTXTRecord_AllowsDuplicates(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "secret")
	ctx := context.Background()

	first, err := p.CreateTXTRecord(ctx, "example.com", "_acme-challenge.www", "v1", 60)
	require.NoError(t, err)
	second, err := p.CreateTXTRecord(ctx, "example.com", "_acme-challenge.www", "v2", 60)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	records, err := p.FetchRecords(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "TXT", records[0].Type)
	assert.Equal(t, "_acme-challenge.www", records[0].Name)
	assert.Equal(t, "v1", records[0].Data)
	assert.Equal(t, 60, records[0].TTL)
}

func TestCreateTXTRecord_ProviderError(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "secret")
	_, err := p.CreateTXTRecord(context.Background(), "missing.org", "_acme-challenge", "v", 60)
	require.Error(t, err)

	var perr *provider.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusNotFound, perr.StatusCode)
	assert.Contains(t, perr.Body, "domain not found")
}

func TestDeleteTXTRecord(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	id := srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "x", TTL: 60})
	p := newTestProvider(t, srv, "secret")
	ctx := context.Background()

	deleted, err := p.DeleteTXTRecord(ctx, "example.com", id)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, srv.Records("example.com"))

	// 再次删除同一ID不是错误
	deleted, err = p.DeleteTXTRecord(ctx, "example.com", id)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteTXTRecord_ServerError(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	id := srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "x"})
	srv.FailDelete(id, http.StatusInternalServerError)

	p := newTestProvider(t, srv, "secret")
	deleted, err := p.DeleteTXTRecord(context.Background(), "example.com", id)
	require.Error(t, err)
	assert.False(t, deleted)

	var perr *provider.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
}

func TestRequestPaths(t *testing.T) {
	srv := dotest.NewServer("secret", "example.com")
	defer srv.Close()

	p := newTestProvider(t, srv, "secret")
	ctx := context.Background()

	rec, err := p.CreateTXTRecord(ctx, "example.com", "_acme-challenge", "v", 60)
	require.NoError(t, err)
	_, err = p.DeleteTXTRecord(ctx, "example.com", rec.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /domains/example.com/records",
		"DELETE /domains/example.com/records/" + rec.ID,
	}, srv.Calls())
}

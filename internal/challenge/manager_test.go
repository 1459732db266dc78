package challenge

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certautobot/internal/domain"
	"certautobot/internal/provider"
	"certautobot/internal/provider/digitalocean"
	"certautobot/internal/provider/digitalocean/dotest"
)

type fakeVerifier struct {
	visible bool
	err     error
	asked   []string
}

func (f *fakeVerifier) Visible(_ context.Context, fqdn, value string) (bool, error) {
	f.asked = append(f.asked, fqdn+"="+value)
	return f.visible, f.err
}

type sleepRecorder struct {
	calls []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.calls = append(s.calls, d)
}

func newTestManager(t *testing.T, srv *dotest.Server, opts ...Option) *Manager {
	t.Helper()
	p, err := digitalocean.NewDNSProvider(logr.Discard(), provider.Settings{
		digitalocean.EnvToken:  srv.Token,
		digitalocean.EnvAPIURL: srv.URL,
	})
	require.NoError(t, err)
	return NewManager(p, logr.Discard(), opts...)
}

func mustSplit(t *testing.T, fqdn string) domain.Spec {
	t.Helper()
	spec, err := domain.Split(fqdn)
	require.NoError(t, err)
	return spec
}

func TestCreateThenCleanup(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	sleeper := &sleepRecorder{}
	m := newTestManager(t, srv, WithSleep(sleeper.sleep))
	ctx := context.Background()
	spec := mustSplit(t, "www.example.com")

	record, err := m.Create(ctx, spec, "validation-token")
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, []time.Duration{DefaultPropagationDelay}, sleeper.calls)

	stored := srv.Records("example.com")
	require.Len(t, stored, 1)
	assert.Equal(t, "TXT", stored[0].Type)
	assert.Equal(t, "_acme-challenge.www", stored[0].Name)
	assert.Equal(t, "validation-token", stored[0].Data)
	assert.Equal(t, DefaultTTL, stored[0].TTL)

	result, err := m.Cleanup(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Empty(t, result.FailedIDs)
	assert.Empty(t, srv.Records("example.com"))
}

func TestCreate_AppendsNextToStaleRecords(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "stale"})
	m := newTestManager(t, srv, WithPropagationDelay(0))

	_, err := m.Create(context.Background(), mustSplit(t, "example.com"), "fresh")
	require.NoError(t, err)

	stored := srv.Records("example.com")
	require.Len(t, stored, 2)
	assert.Equal(t, "stale", stored[0].Data)
	assert.Equal(t, "fresh", stored[1].Data)

	// 创建时不查询已有记录
	assert.Equal(t, []string{"POST /domains/example.com/records"}, srv.Calls())
}

func TestCreate_ProviderFailure(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	sleeper := &sleepRecorder{}
	m := newTestManager(t, srv, WithSleep(sleeper.sleep))

	_, err := m.Create(context.Background(), mustSplit(t, "www.unknown.org"), "v")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
	assert.Empty(t, sleeper.calls)
}

func TestCreate_Options(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	sleeper := &sleepRecorder{}
	verifier := &fakeVerifier{visible: false}
	m := newTestManager(t, srv,
		WithTTL(300),
		WithPropagationDelay(3*time.Second),
		WithSleep(sleeper.sleep),
		WithVerifier(verifier),
	)

	_, err := m.Create(context.Background(), mustSplit(t, "api.example.com"), "v")
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{3 * time.Second}, sleeper.calls)
	assert.Equal(t, []string{"_acme-challenge.api.example.com=v"}, verifier.asked)
	assert.Equal(t, 300, srv.Records("example.com")[0].TTL)
}

func TestCreate_VerifierErrorIgnored(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	m := newTestManager(t, srv, WithPropagationDelay(0), WithVerifier(&fakeVerifier{err: errors.New("timeout")}))
	_, err := m.Create(context.Background(), mustSplit(t, "example.com"), "v")
	assert.NoError(t, err)
}

func TestCleanup_Idempotent(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge.www", Data: "a"})
	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge.www", Data: "b"})
	m := newTestManager(t, srv)
	ctx := context.Background()
	spec := mustSplit(t, "www.example.com")

	first, err := m.Cleanup(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Deleted)

	second, err := m.Cleanup(ctx, spec)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Deleted)
	assert.False(t, second.Partial())
}

func TestCleanup_OnlyMatchingRecords(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "root"})
	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge.api", Data: "api"})
	srv.AddRecord("example.com", dotest.Record{Type: "CNAME", Name: "_acme-challenge.www", Data: "elsewhere."})
	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge.www", Data: "www"})
	m := newTestManager(t, srv)

	result, err := m.Cleanup(context.Background(), mustSplit(t, "www.example.com"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	remaining := srv.Records("example.com")
	require.Len(t, remaining, 3)
	for _, r := range remaining {
		assert.False(t, r.Type == "TXT" && r.Name == "_acme-challenge.www")
	}
}

func TestCleanup_PartialFailure(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "a"})
	failing := srv.AddRecord("example.com", dotest.Record{Type: "TXT", Name: "_acme-challenge", Data: "b"})
	srv.FailDelete(failing, http.StatusInternalServerError)
	m := newTestManager(t, srv)

	result, err := m.Cleanup(context.Background(), mustSplit(t, "example.com"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, []string{failing}, result.FailedIDs)
	assert.True(t, result.Partial())
}

func TestCleanup_FetchFailure(t *testing.T) {
	srv := dotest.NewServer("token", "example.com")
	defer srv.Close()

	m := newTestManager(t, srv)
	_, err := m.Cleanup(context.Background(), mustSplit(t, "www.unknown.org"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNotFound))
}

package services

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/config"
	"wablast/models"
	"wablast/utils"
)

// fakeProxyRepo is an in-memory ProxyConfigRepository
type fakeProxyRepo struct {
	proxies map[uint]*models.ProxyConfig
}

func newFakeProxyRepo(proxies ...*models.ProxyConfig) *fakeProxyRepo {
	repo := &fakeProxyRepo{proxies: make(map[uint]*models.ProxyConfig)}
	for _, p := range proxies {
		repo.proxies[p.ID] = p
	}
	return repo
}

func (r *fakeProxyRepo) ByID(_ context.Context, id uint) (*models.ProxyConfig, error) {
	return r.proxies[id], nil
}

func (r *fakeProxyRepo) ByFilter(_ context.Context, filter models.ProxyConfigFilter, _ string, _, _ int) ([]*models.ProxyConfig, error) {
	var out []*models.ProxyConfig
	for _, p := range r.proxies {
		if filter.AccountID != nil && (p.AccountID == nil || *p.AccountID != *filter.AccountID) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakeProxyRepo) Save(_ context.Context, proxy *models.ProxyConfig) error {
	if proxy.ID == 0 {
		proxy.ID = uint(len(r.proxies) + 1)
	}
	r.proxies[proxy.ID] = proxy
	return nil
}

func (r *fakeProxyRepo) SaveBatch(ctx context.Context, proxies []*models.ProxyConfig) error {
	for _, p := range proxies {
		if err := r.Save(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeProxyRepo) Update(_ context.Context, proxy *models.ProxyConfig) error {
	r.proxies[proxy.ID] = proxy
	return nil
}

func (r *fakeProxyRepo) ListCandidates(_ context.Context, accountID *uint) ([]*models.ProxyConfig, error) {
	var out []*models.ProxyConfig
	for _, p := range r.proxies {
		if !utils.IsTrue(p.IsActive) {
			continue
		}
		scoped := p.AccountID != nil && accountID != nil && *p.AccountID == *accountID
		if !p.IsGlobal && !scoped {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		if out[i].FailCount != out[j].FailCount {
			return out[i].FailCount < out[j].FailCount
		}
		return out[i].UsageCount < out[j].UsageCount
	})
	return out, nil
}

func (r *fakeProxyRepo) IncrementUsage(_ context.Context, proxyID uint) error {
	r.proxies[proxyID].UsageCount++
	return nil
}

func (r *fakeProxyRepo) RecordHealth(_ context.Context, proxyID uint, ok bool, at time.Time) error {
	p := r.proxies[proxyID]
	p.LastCheckedAt = &at
	if ok {
		p.FailCount = 0
		p.LastStatus = models.ProxyStatusWorking
	} else {
		p.FailCount++
		p.LastStatus = models.ProxyStatusFailed
	}
	return nil
}

func testProxyConfig(probeURL string) *config.ProxyConfig {
	return &config.ProxyConfig{
		Enabled:      true,
		ProbeURL:     probeURL,
		ProbeTimeout: 5 * time.Second,
	}
}

func httpProxy(id uint, accountID *uint, host string, port, priority int) *models.ProxyConfig {
	return &models.ProxyConfig{
		ID:        id,
		AccountID: accountID,
		IsGlobal:  accountID == nil,
		Type:      models.ProxyTypeHTTP,
		Host:      host,
		Port:      port,
		Priority:  priority,
		IsActive:  utils.ToPtr(true),
	}
}

func TestSelectPrefersLowestPriority(t *testing.T) {
	account := uint(7)
	repo := newFakeProxyRepo(
		httpProxy(1, &account, "proxy-a", 8080, 200),
		httpProxy(2, &account, "proxy-b", 8080, 10),
		httpProxy(3, nil, "proxy-global", 8080, 100),
	)
	service := NewProxyService(repo, testProxyConfig(""), log.New(io.Discard, "", 0))

	selected, err := service.Select(context.Background(), account)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "proxy-b", selected.Host)

	// selection counts as a use
	assert.Equal(t, int64(1), repo.proxies[2].UsageCount)
	assert.Zero(t, repo.proxies[1].UsageCount)
}

func TestSelectBreaksTiesByFailuresThenUsage(t *testing.T) {
	account := uint(7)
	flaky := httpProxy(1, &account, "proxy-flaky", 8080, 100)
	flaky.FailCount = 5
	busy := httpProxy(2, &account, "proxy-busy", 8080, 100)
	busy.UsageCount = 40
	idle := httpProxy(3, &account, "proxy-idle", 8080, 100)

	repo := newFakeProxyRepo(flaky, busy, idle)
	service := NewProxyService(repo, testProxyConfig(""), log.New(io.Discard, "", 0))

	selected, err := service.Select(context.Background(), account)
	require.NoError(t, err)
	require.NotNil(t, selected)
	assert.Equal(t, "proxy-idle", selected.Host)
}

func TestSelectDisabledReturnsNoProxy(t *testing.T) {
	account := uint(7)
	repo := newFakeProxyRepo(httpProxy(1, &account, "proxy-a", 8080, 100))
	cfg := testProxyConfig("")
	cfg.Enabled = false
	service := NewProxyService(repo, cfg, log.New(io.Discard, "", 0))

	selected, err := service.Select(context.Background(), account)
	require.NoError(t, err)
	assert.Nil(t, selected)
	assert.Zero(t, repo.proxies[1].UsageCount)
}

func TestSelectNoCandidates(t *testing.T) {
	service := NewProxyService(newFakeProxyRepo(), testProxyConfig(""), log.New(io.Discard, "", 0))

	selected, err := service.Select(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, selected)
}

func TestClientForWithoutProxy(t *testing.T) {
	service := NewProxyService(newFakeProxyRepo(), testProxyConfig(""), log.New(io.Discard, "", 0))

	client, err := service.ClientFor(context.Background(), 7)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestHealthCheckRecordsSuccess(t *testing.T) {
	// an HTTP proxy receives the absolute-URI request, so a plain server
	// standing in for the proxy can answer the probe directly
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ip":"203.0.113.9"}`))
	}))
	t.Cleanup(server.Close)

	serverURL, err := url.Parse(server.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(serverURL.Port())
	require.NoError(t, err)

	account := uint(7)
	proxy := httpProxy(1, &account, serverURL.Hostname(), port, 100)
	proxy.FailCount = 2
	repo := newFakeProxyRepo(proxy)
	service := NewProxyService(repo, testProxyConfig("http://probe.invalid/ip"), log.New(io.Discard, "", 0))

	ip, err := service.HealthCheck(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", ip)

	assert.Equal(t, models.ProxyStatusWorking, proxy.LastStatus)
	assert.Zero(t, proxy.FailCount)
	require.NotNil(t, proxy.LastCheckedAt)
}

func TestHealthCheckRecordsFailure(t *testing.T) {
	account := uint(7)
	proxy := httpProxy(1, &account, "127.0.0.1", 1, 100)
	repo := newFakeProxyRepo(proxy)
	service := NewProxyService(repo, testProxyConfig("http://probe.invalid/ip"), log.New(io.Discard, "", 0))

	_, err := service.HealthCheck(context.Background(), 1)
	require.Error(t, err)

	assert.Equal(t, models.ProxyStatusFailed, proxy.LastStatus)
	assert.Equal(t, int64(1), proxy.FailCount)
}

func TestClientForSocksProxies(t *testing.T) {
	for _, proxyType := range []models.ProxyType{models.ProxyTypeSOCKS4, models.ProxyTypeSOCKS5} {
		t.Run(string(proxyType), func(t *testing.T) {
			account := uint(7)
			proxy := httpProxy(1, &account, "proxy-a", 1080, 100)
			proxy.Type = proxyType
			proxy.Username = utils.ToPtr("scout")
			repo := newFakeProxyRepo(proxy)
			service := NewProxyService(repo, testProxyConfig(""), log.New(io.Discard, "", 0))

			client, err := service.ClientFor(context.Background(), account)
			require.NoError(t, err)
			require.NotNil(t, client)
		})
	}
}

func TestHealthCheckUnsupportedProxyType(t *testing.T) {
	account := uint(7)
	proxy := httpProxy(1, &account, "proxy-a", 1080, 100)
	proxy.Type = models.ProxyType("ftp")
	repo := newFakeProxyRepo(proxy)
	service := NewProxyService(repo, testProxyConfig("http://probe.invalid/ip"), log.New(io.Discard, "", 0))

	_, err := service.HealthCheck(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported proxy type")
	assert.Equal(t, models.ProxyStatusFailed, proxy.LastStatus)
}

func TestHealthCheckUnknownProxy(t *testing.T) {
	service := NewProxyService(newFakeProxyRepo(), testProxyConfig(""), log.New(io.Discard, "", 0))

	_, err := service.HealthCheck(context.Background(), 99)
	require.Error(t, err)
}

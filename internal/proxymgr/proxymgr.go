// Package proxymgr rotates the proxies handed to yt-dlp and benches the ones that keep failing.
package proxymgr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"bulkdl/internal/config"
	"bulkdl/internal/errs"
	"bulkdl/internal/observability"
)

const (
	dialTimeout = 10 * time.Second
	maxBackoff  = time.Hour
)

type proxyInfo struct {
	url          string
	failures     int
	benchedUntil time.Time
}

// Manager hands out proxies round-robin, skipping benched ones.
type Manager struct {
	log     *slog.Logger
	cfg     config.Proxy
	metrics *observability.Metrics
	now     func() time.Time

	mu      sync.Mutex
	proxies []*proxyInfo
	next    int
}

// New creates a manager for cfg.Proxy.Proxies. metrics may be nil.
func New(log *slog.Logger, cfg *config.Config, metrics *observability.Metrics) *Manager {
	mgr := &Manager{
		log:     log.With(slog.String("package", "proxymgr")),
		cfg:     cfg.Proxy,
		metrics: metrics,
		now:     time.Now,
		proxies: make([]*proxyInfo, 0, len(cfg.Proxy.Proxies)),
	}

	for _, proxy := range cfg.Proxy.Proxies {
		mgr.proxies = append(mgr.proxies, &proxyInfo{url: proxy})
	}

	metrics.SetProxiesAvailable(len(mgr.proxies))

	return mgr
}

// Enabled reports whether any proxy is configured.
func (m *Manager) Enabled() bool {
	return len(m.proxies) > 0
}

// Next returns the next usable proxy in rotation.
// It returns "" and no error when no proxy is configured,
// and errs.ErrNoProxiesAvailable when every proxy is benched.
func (m *Manager) Next() (string, error) {
	if !m.Enabled() {
		return "", nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	for range m.proxies {
		info := m.proxies[m.next]
		m.next = (m.next + 1) % len(m.proxies)

		if now.Before(info.benchedUntil) {
			continue
		}

		m.metrics.RecordProxyRequest(info.url)

		return info.url, nil
	}

	return "", errs.ErrNoProxiesAvailable
}

// MarkFailed records a failure; after cfg.MaxFailures consecutive failures
// the proxy is benched with exponential backoff capped at one hour.
func (m *Manager) MarkFailed(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.find(proxyURL)
	if info == nil {
		return
	}

	info.failures++
	m.metrics.RecordProxyFailure(proxyURL)

	if info.failures < m.cfg.MaxFailures {
		return
	}

	backoff := min(m.cfg.FailureBackoff*time.Duration(1<<min(info.failures-m.cfg.MaxFailures, 16)), maxBackoff)
	info.benchedUntil = m.now().Add(backoff)

	m.metrics.SetProxiesAvailable(m.availableLocked())
	m.log.Warn("proxy benched",
		slog.String("proxy", proxyURL),
		slog.Int("failures", info.failures),
		slog.Duration("backoff", backoff))
}

// MarkSuccess clears the failure history of a proxy.
func (m *Manager) MarkSuccess(proxyURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.find(proxyURL)
	if info == nil {
		return
	}

	info.failures = 0
	info.benchedUntil = time.Time{}

	m.metrics.SetProxiesAvailable(m.availableLocked())
}

// Available returns the number of proxies not currently benched.
func (m *Manager) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.availableLocked()
}

// Check dials the proxy host and marks the proxy by the result.
func (m *Manager) Check(ctx context.Context, proxyURL string) error {
	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("parse proxy url: %w", err)
	}

	dialer := &net.Dialer{Timeout: dialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", parsed.Host)
	if err != nil {
		m.MarkFailed(proxyURL)

		return fmt.Errorf("dial proxy: %w", err)
	}

	_ = conn.Close()

	m.MarkSuccess(proxyURL)

	return nil
}

// Run checks every proxy each cfg.HealthCheckInterval until ctx is done.
// It returns immediately when health checks are disabled.
func (m *Manager) Run(ctx context.Context) {
	if m.cfg.HealthCheckInterval <= 0 || !m.Enabled() {
		return
	}

	ticker := time.NewTicker(m.cfg.HealthCheckInterval)
	defer ticker.Stop()

	m.log.Info("proxy health checker started",
		slog.Duration("interval", m.cfg.HealthCheckInterval),
		slog.Int("proxies", len(m.proxies)))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, info := range m.proxies {
				if err := m.Check(ctx, info.url); err != nil {
					m.log.Debug("proxy check failed", slog.String("proxy", info.url), slog.Any("error", err))
				}
			}
		}
	}
}

func (m *Manager) find(proxyURL string) *proxyInfo {
	for _, info := range m.proxies {
		if info.url == proxyURL {
			return info
		}
	}

	return nil
}

func (m *Manager) availableLocked() int {
	now := m.now()
	n := 0

	for _, info := range m.proxies {
		if !now.Before(info.benchedUntil) {
			n++
		}
	}

	return n
}

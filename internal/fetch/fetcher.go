// Copyright 2024 The cellar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fetch downloads source archives into the download cache and
// verifies them against their formula checksum.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenk/backoff"
	"github.com/goplus/cellar/formula"
	"github.com/goplus/cellar/internal/ctxlog"
	"github.com/rs/dnscache"
	circuit "github.com/rubyist/circuitbreaker"
)

var (
	ErrNotFound         = errors.New("source archive not found")
	ErrRateLimited      = errors.New("rate limited by upstream")
	ErrUpstreamDown     = errors.New("upstream unavailable")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Fetcher downloads source archives. Transient failures are retried with
// exponential backoff and every host has its own circuit breaker.
type Fetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
	cacheDir   string

	mu       sync.Mutex
	breakers map[string]*circuit.Breaker
	trip     int64

	// stop ends the DNS cache refresh of the default transport; done is
	// closed once it has ended. Both are nil with a custom client.
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.client = c
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithMaxRetries sets how often a transient failure is retried. Zero or a
// negative n disables retries.
func WithMaxRetries(n int) Option {
	return func(f *Fetcher) {
		f.maxRetries = n
	}
}

// WithBaseDelay sets the initial delay of the exponential backoff.
func WithBaseDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		f.baseDelay = d
	}
}

// WithTripThreshold sets how many consecutive failures open the circuit
// breaker of a host.
func WithTripThreshold(n int) Option {
	return func(f *Fetcher) {
		f.trip = int64(n)
	}
}

// dnsRefresh is how often cached DNS entries are refreshed.
const dnsRefresh = 5 * time.Minute

func newTransport(r *dnscache.Resolver) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := r.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			for _, ip := range ips {
				conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					return conn, nil
				}
			}
			return nil, fmt.Errorf("failed to dial any resolved IP of %s", host)
		},
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// New returns a Fetcher storing downloads under cacheDir. Without
// WithHTTPClient it dials through a DNS cache refreshed in the background
// until Close is called.
func New(cacheDir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		userAgent:  "cellar/1.0",
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		cacheDir:   cacheDir,
		breakers:   make(map[string]*circuit.Breaker),
		trip:       5,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		r := &dnscache.Resolver{}
		f.client = &http.Client{
			Timeout:   30 * time.Minute,
			Transport: newTransport(r),
		}
		f.stop = make(chan struct{})
		f.done = make(chan struct{})
		go f.refresh(r, dnsRefresh)
	}
	return f
}

func (f *Fetcher) refresh(r *dnscache.Resolver, interval time.Duration) {
	defer close(f.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			r.Refresh(true)
		}
	}
}

// Close stops the background DNS cache refresh. Downloads still work
// afterwards, resolving through the entries already cached.
func (f *Fetcher) Close() {
	if f.stop == nil {
		return
	}
	f.closeOnce.Do(func() {
		close(f.stop)
		<-f.done
	})
}

// CachePath returns where the archive at rawURL is cached.
func (f *Fetcher) CachePath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	base := "archive"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "." && b != "/" {
			base = b
		}
	}
	return filepath.Join(f.cacheDir, "downloads", hex.EncodeToString(sum[:8])+"--"+base)
}

// Download makes sure the archive at rawURL is in the download cache and
// matches want, then returns its path. A cached archive is verified again
// before reuse and downloaded afresh when it no longer matches.
func (f *Fetcher) Download(ctx context.Context, rawURL string, want formula.Checksum) (string, error) {
	logger := ctxlog.FromContext(ctx)
	dest := f.CachePath(rawURL)
	if _, err := os.Stat(dest); err == nil {
		if err := Verify(dest, want); err == nil {
			logger.Debug("using cached download", "path", dest)
			return dest, nil
		}
		logger.Warn("cached download is corrupt, fetching again", "path", dest)
		if err := os.Remove(dest); err != nil {
			return "", err
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", err
	}

	logger.Info("downloading", "url", rawURL)
	body, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	tmp := dest + ".incomplete"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(out, h), body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("download %s: %w", rawURL, err)
	}
	if !want.Matches(h.Sum(nil)) {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: %s: want %s, got sha256:%x", ErrChecksumMismatch, rawURL, want, h.Sum(nil))
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return dest, nil
}

// Verify hashes the file at path and compares it with want.
func Verify(path string, want formula.Checksum) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()
	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return err
	}
	if !want.Matches(h.Sum(nil)) {
		return fmt.Errorf("%w: %s: want %s, got sha256:%x", ErrChecksumMismatch, path, want, h.Sum(nil))
	}
	return nil
}

// Fetch opens the body of rawURL. The caller must close it.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host := hostOf(rawURL)
	breaker := f.breaker(host)
	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var body io.ReadCloser
	var notFound error
	err := breaker.Call(func() error {
		var err error
		body, err = f.retry(ctx, rawURL)
		if errors.Is(err, ErrNotFound) {
			// the host answered; not a reason to trip
			notFound = err
			return nil
		}
		return err
	}, 0)
	if notFound != nil {
		return nil, notFound
	}
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}
	return body, err
}

func (f *Fetcher) breaker(host string) *circuit.Breaker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.breakers[host]; ok {
		return b
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 30 * time.Second
	eb.MaxInterval = 5 * time.Minute
	eb.Multiplier = 2.0
	eb.Reset()
	b := circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    eb,
		ShouldTrip: circuit.ThresholdTripFunc(f.trip),
	})
	f.breakers[host] = b
	return b
}

// retry gets rawURL, retrying transient failures at most maxRetries times.
// backoff.WithMaxRetries treats 0 as unlimited, so no retries bypasses it.
func (f *Fetcher) retry(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if f.maxRetries <= 0 {
		return f.get(ctx, rawURL)
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = f.baseDelay
	eb.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(eb, uint64(f.maxRetries))
	b.Reset()

	for {
		body, err := f.get(ctx, rawURL)
		if err == nil {
			return body, nil
		}
		if !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrUpstreamDown) {
			return nil, err
		}
		delay := b.NextBackOff()
		if delay == backoff.Stop {
			return nil, err
		}
		ctxlog.FromContext(ctx).Debug("retrying download", "url", rawURL, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, rawURL)
	case resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %s", ErrUpstreamDown, rawURL, resp.Status)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, rawURL, msg)
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}

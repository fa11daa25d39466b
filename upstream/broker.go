package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"hotelhub/metrics"
)

const (
	// DefaultTokenTTL applies when the login response carries no usable expiry.
	DefaultTokenTTL = 55 * time.Minute
	// DefaultLoginTimeout bounds one shared login attempt.
	DefaultLoginTimeout = 15 * time.Second

	loginFlightKey = "login"
	maxBodyBytes   = 10 << 20
)

// Credentials authenticate the reseller against the upstream provider.
type Credentials struct {
	Username string
	Password string
}

// TokenBroker hands out the shared upstream bearer token. When the cached
// token is missing or stale, concurrent callers share a single login.
type TokenBroker struct {
	client       *http.Client
	store        TokenStore
	loginURL     string
	creds        Credentials
	loginTimeout time.Duration
	defaultTTL   time.Duration
	skew         time.Duration
	now          func() time.Time
	logger       *zap.Logger

	flight singleflight.Group
}

// BrokerOption customises a TokenBroker.
type BrokerOption func(*TokenBroker)

// WithBrokerHTTPClient sets the client used for login calls.
func WithBrokerHTTPClient(c *http.Client) BrokerOption {
	return func(b *TokenBroker) { b.client = c }
}

// WithLoginTimeout bounds a shared login. Zero disables the bound.
func WithLoginTimeout(d time.Duration) BrokerOption {
	return func(b *TokenBroker) { b.loginTimeout = d }
}

// WithDefaultTTL sets the lifetime assumed for tokens without an expiry.
func WithDefaultTTL(d time.Duration) BrokerOption {
	return func(b *TokenBroker) {
		if d > 0 {
			b.defaultTTL = d
		}
	}
}

// WithExpirySkew treats tokens as stale d before they actually expire.
func WithExpirySkew(d time.Duration) BrokerOption {
	return func(b *TokenBroker) { b.skew = d }
}

func WithBrokerClock(now func() time.Time) BrokerOption {
	return func(b *TokenBroker) { b.now = now }
}

func WithBrokerLogger(l *zap.Logger) BrokerOption {
	return func(b *TokenBroker) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewTokenBroker builds a broker that logs in at baseURL+loginPath.
func NewTokenBroker(baseURL, loginPath string, creds Credentials, store TokenStore, opts ...BrokerOption) *TokenBroker {
	b := &TokenBroker{
		client:       &http.Client{Timeout: 30 * time.Second},
		store:        store,
		loginURL:     strings.TrimRight(baseURL, "/") + loginPath,
		creds:        creds,
		loginTimeout: DefaultLoginTimeout,
		defaultTTL:   DefaultTokenTTL,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AccessToken returns a usable bearer token, logging in when necessary.
// If ctx ends while a login is running, AccessToken returns ctx.Err() and
// the login carries on for the other waiters.
func (b *TokenBroker) AccessToken(ctx context.Context) (string, error) {
	tok, ok, err := b.cached(ctx)
	if err != nil {
		return "", err
	}
	if ok {
		return tok.AccessToken, nil
	}

	ch := b.flight.DoChan(loginFlightKey, func() (any, error) {
		fctx := context.WithoutCancel(ctx)
		if b.loginTimeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, b.loginTimeout)
			defer cancel()
		}

		// A login may have finished between our read and joining the flight.
		if tok, ok, err := b.cached(fctx); err != nil {
			return "", err
		} else if ok {
			return tok.AccessToken, nil
		}
		return b.login(fctx)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Invalidate discards every cached token. The next AccessToken call logs in.
func (b *TokenBroker) Invalidate(ctx context.Context) error {
	if err := b.store.DeleteAll(ctx); err != nil {
		return err
	}
	metrics.UpstreamTokenInvalidations.Inc()
	b.logger.Info("upstream token invalidated")
	return nil
}

func (b *TokenBroker) cached(ctx context.Context) (CachedToken, bool, error) {
	tok, err := b.store.Latest(ctx)
	if errors.Is(err, ErrNoToken) {
		return CachedToken{}, false, nil
	}
	if err != nil {
		return CachedToken{}, false, fmt.Errorf("upstream: read cached token: %w", err)
	}
	return tok, tok.usableAt(b.now(), b.skew), nil
}

func (b *TokenBroker) login(ctx context.Context) (string, error) {
	started := time.Now()
	b.logger.Info("upstream login started", zap.String("url", b.loginURL))

	tok, err := b.requestToken(ctx)
	if err != nil {
		metrics.UpstreamLogins.WithLabelValues("error").Inc()
		b.logger.Error("upstream login failed", zap.Error(err), zap.Duration("took", time.Since(started)))
		return "", &AuthError{Err: err}
	}
	metrics.UpstreamLogins.WithLabelValues("ok").Inc()

	if _, err := b.store.Save(ctx, tok); err != nil {
		b.logger.Warn("upstream token not cached", zap.Error(err))
	}

	b.logger.Info("upstream login finished",
		zap.Time("expires_at", tok.ExpiresAt),
		zap.Duration("took", time.Since(started)))
	return tok.AccessToken, nil
}

func (b *TokenBroker) requestToken(ctx context.Context) (CachedToken, error) {
	payload, err := json.Marshal(loginRequest{Username: b.creds.Username, Password: b.creds.Password})
	if err != nil {
		return CachedToken{}, fmt.Errorf("encode login: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.loginURL, bytes.NewReader(payload))
	if err != nil {
		return CachedToken{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return CachedToken{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return CachedToken{}, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CachedToken{}, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return CachedToken{}, fmt.Errorf("decode login envelope: %w", err)
	}
	if !env.IsSuccess {
		return CachedToken{}, &APIError{Message: env.Message}
	}

	var res loginResult
	if err := json.Unmarshal(env.Result, &res); err != nil {
		return CachedToken{}, fmt.Errorf("decode login result: %w", err)
	}
	if res.AccessToken == "" {
		return CachedToken{}, ErrEmptyToken
	}

	now := b.now()
	return CachedToken{
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
		ExpiresAt:    b.expiry(res, now),
		CreatedAt:    now,
	}, nil
}

// expiry prefers the explicit expiration, then the exp claim of a JWT
// access token, then the default TTL.
func (b *TokenBroker) expiry(res loginResult, now time.Time) time.Time {
	if res.Expiration != "" {
		if t, err := parseExpiration(res.Expiration); err == nil {
			return t
		}
		b.logger.Warn("unparseable upstream token expiration", zap.String("expiration", res.Expiration))
	}
	if t, ok := jwtExpiry(res.AccessToken); ok {
		return t
	}
	return now.Add(b.defaultTTL)
}

func parseExpiration(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	// Some upstream builds omit the zone; those timestamps are UTC.
	return time.ParseInLocation("2006-01-02T15:04:05.999999999", s, time.UTC)
}

// jwtExpiry reads exp without verifying the signature; the upstream owns the
// signing key and only the lifetime is needed here.
func jwtExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

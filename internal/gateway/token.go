package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/NineNineAFK/verto/internal/cache"
	"github.com/NineNineAFK/verto/internal/domain"
	"github.com/NineNineAFK/verto/internal/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RefreshMargin is how long before its stated expiry a token is treated as expired.
const RefreshMargin = 120 * time.Second

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
}

// tokenSource caches the OAuth client-credentials token. Concurrent callers that find the
// token stale share a single fetch.
type tokenSource struct {
	http    *http.Client
	authURL string
	form    url.Values
	shared  cache.TokenCache
	key     string
	now     func() time.Time

	mu      sync.RWMutex
	current *cache.Token
	group   singleflight.Group
}

func (s *tokenSource) Token(ctx context.Context) (string, error) {
	if tok := s.cached(); tok != nil {
		return tok.AccessToken, nil
	}

	// the fetch is shared, so one caller's cancellation must not fail the others
	sharedCtx := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		// another caller may have refreshed while we waited
		if tok := s.cached(); tok != nil {
			return tok, nil
		}
		if tok := s.fromShared(sharedCtx); tok != nil {
			s.store(tok)
			return tok, nil
		}

		tok, err := s.fetch(sharedCtx)
		if err != nil {
			return nil, err
		}
		s.store(tok)
		if s.shared != nil {
			if err := s.shared.Set(sharedCtx, s.key, tok); err != nil {
				logging.FromContext(ctx).Warn("failed to share gateway token", zap.Error(err))
			}
		}
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*cache.Token).AccessToken, nil
}

// Invalidate drops the token so the next call fetches a new one.
func (s *tokenSource) Invalidate(ctx context.Context) {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if s.shared != nil {
		_ = s.shared.Delete(ctx, s.key)
	}
}

func (s *tokenSource) fresh(tok *cache.Token) bool {
	return tok != nil && tok.AccessToken != "" && s.now().Before(tok.ExpiresAt.Add(-RefreshMargin))
}

func (s *tokenSource) cached() *cache.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fresh(s.current) {
		return s.current
	}
	return nil
}

func (s *tokenSource) store(tok *cache.Token) {
	s.mu.Lock()
	s.current = tok
	s.mu.Unlock()
}

func (s *tokenSource) fromShared(ctx context.Context) *cache.Token {
	if s.shared == nil {
		return nil
	}
	tok, err := s.shared.Get(ctx, s.key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			logging.FromContext(ctx).Warn("failed to read shared gateway token", zap.Error(err))
		}
		return nil
	}
	if !s.fresh(tok) {
		return nil
	}
	return tok
}

func (s *tokenSource) fetch(ctx context.Context) (*cache.Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.authURL, strings.NewReader(s.form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: build token request: %v", domain.ErrGateway, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch token: %v", domain.ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: read token response: %v", domain.ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: body}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("%w: decode token response: %v", domain.ErrGateway, err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response without access_token", domain.ErrGateway)
	}

	expiresAt := time.Unix(tr.ExpiresAt, 0)
	if tr.ExpiresAt == 0 {
		expiresAt = s.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return &cache.Token{AccessToken: tr.AccessToken, ExpiresAt: expiresAt}, nil
}

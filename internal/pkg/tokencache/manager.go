package tokencache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/fitstack/mindbridge/app/models"
	"github.com/fitstack/mindbridge/internal/pkg/mindbody"
)

const (
	cacheKeyPrefix = "mindbody:token:"

	// GracePeriod is the safety margin subtracted from a token's nominal
	// expiry so it is renewed before the provider actually rejects it.
	GracePeriod = 300 * time.Second

	minCacheTTL = 300 * time.Second
)

// TokenIssuer is the outbound slice of the Mindbody client the manager needs.
type TokenIssuer interface {
	IssueToken(ctx context.Context, username, password string) (*mindbody.TokenResponse, error)
	RevokeToken(ctx context.Context, accessToken string) error
}

type cachedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int       `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Manager caches bearer tokens per principal so one upstream issue call is
// amortized across many API calls. The cache store and issuer are injected;
// there is no ambient global state.
type Manager struct {
	issuer TokenIssuer
	store  Store
	repo   Repository
	group  singleflight.Group
	now    func() time.Time
}

func NewManager(issuer TokenIssuer, store Store, repo Repository) *Manager {
	return &Manager{
		issuer: issuer,
		store:  store,
		repo:   repo,
		now:    time.Now,
	}
}

// CacheKey derives the deterministic cache key for a principal.
func CacheKey(username string) string {
	sum := sha256.Sum256([]byte(username))
	return cacheKeyPrefix + hex.EncodeToString(sum[:16])
}

// isTokenValid applies the expiry-with-grace rule: the token is usable while
// the current time is before issued_at + expires_in - grace.
func isTokenValid(issuedAt time.Time, expiresIn int, now time.Time) bool {
	cutoff := issuedAt.Add(time.Duration(expiresIn)*time.Second - GracePeriod)
	return now.Before(cutoff)
}

// GetToken returns a valid bearer token for the principal, issuing a fresh
// one upstream on cache miss or expiry within the grace period. Concurrent
// misses for the same username are collapsed into one upstream call.
func (m *Manager) GetToken(ctx context.Context, username, password string) (string, error) {
	key := CacheKey(username)

	if token, ok := m.cachedValid(key); ok {
		return token, nil
	}

	val, err, _ := m.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: another caller may have refreshed.
		if token, ok := m.cachedValid(key); ok {
			return token, nil
		}
		if m.repo != nil {
			if row, err := m.repo.LatestValid(username, m.now().Add(GracePeriod)); err == nil {
				m.cacheToken(key, cachedToken{
					AccessToken: row.AccessToken,
					TokenType:   row.TokenType,
					ExpiresIn:   row.ExpiresIn,
					IssuedAt:    row.IssuedAt,
				})
				return row.AccessToken, nil
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				log.Warnf("[TokenCache] token row lookup failed for %s: %v", username, err)
			}
		}
		return m.issueAndCache(ctx, username, password, key)
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

func (m *Manager) cachedValid(key string) (string, bool) {
	raw, err := m.store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warnf("[TokenCache] cache read failed: %v", err)
		}
		return "", false
	}
	var cached cachedToken
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return "", false
	}
	if !isTokenValid(cached.IssuedAt, cached.ExpiresIn, m.now()) {
		return "", false
	}
	return cached.AccessToken, true
}

func (m *Manager) issueAndCache(ctx context.Context, username, password, key string) (string, error) {
	resp, err := m.issuer.IssueToken(ctx, username, password)
	if err != nil {
		return "", err
	}

	issuedAt := m.now()
	if m.repo != nil {
		row := &models.ApiToken{
			Username:    username,
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			ExpiresIn:   resp.ExpiresIn,
			IssuedAt:    issuedAt,
			ExpiresAt:   issuedAt.Add(time.Duration(resp.ExpiresIn) * time.Second),
		}
		if err := m.repo.Create(row); err != nil {
			log.Warnf("[TokenCache] failed to persist token row for %s: %v", username, err)
		}
	}

	m.cacheToken(key, cachedToken{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresIn:   resp.ExpiresIn,
		IssuedAt:    issuedAt,
	})
	return resp.AccessToken, nil
}

func (m *Manager) cacheToken(key string, token cachedToken) {
	raw, err := json.Marshal(token)
	if err != nil {
		return
	}
	ttl := time.Duration(token.ExpiresIn)*time.Second - GracePeriod
	if ttl < minCacheTTL {
		ttl = minCacheTTL
	}
	if err := m.store.Set(key, string(raw), ttl); err != nil {
		log.Warnf("[TokenCache] cache write failed: %v", err)
	}
}

// RevokeToken invalidates a token upstream and marks its durable row
// revoked. The cache entry cannot be reverse-looked-up from the opaque
// token value; it is left to expire via its TTL.
func (m *Manager) RevokeToken(ctx context.Context, accessToken string) error {
	if err := m.issuer.RevokeToken(ctx, accessToken); err != nil {
		return err
	}
	if m.repo != nil {
		if err := m.repo.RevokeByToken(accessToken); err != nil {
			return err
		}
	}
	return nil
}

// RevokeAllForUser revokes every live token for the principal: upstream
// first per token, then the durable rows, then the cache entry. An
// upstream revoke failure is logged and does not stop the remaining
// revocations; the row is still marked revoked so it is never reused.
func (m *Manager) RevokeAllForUser(ctx context.Context, username string) (int64, error) {
	var revoked int64
	if m.repo != nil {
		rows, err := m.repo.LiveByUsername(username)
		if err != nil {
			return 0, err
		}
		for _, row := range rows {
			if err := m.issuer.RevokeToken(ctx, row.AccessToken); err != nil {
				log.Warnf("[TokenCache] upstream revoke failed for %s: %v", username, err)
			}
		}
		revoked, err = m.repo.RevokeByUsername(username)
		if err != nil {
			return 0, err
		}
	}
	if err := m.store.Delete(CacheKey(username)); err != nil {
		log.Warnf("[TokenCache] cache eviction failed for %s: %v", username, err)
	}
	return revoked, nil
}

// Cleanup deletes revoked rows and rows expired longer ago than retention.
func (m *Manager) Cleanup(retention time.Duration) (int64, error) {
	if m.repo == nil {
		return 0, nil
	}
	return m.repo.DeleteStale(m.now().Add(-retention))
}

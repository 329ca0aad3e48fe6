// Package auth verifies partner API requests. Each request carries an API
// key, a unix timestamp, a nonce, and an HMAC-SHA256 signature over the
// request metadata; a verified request resolves to the partner address the
// key is registered for.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// HeaderAPIKey is the header containing the caller's API key identifier.
	HeaderAPIKey = "X-Api-Key"
	// HeaderTimestamp is the unix timestamp (seconds) used when signing the request.
	HeaderTimestamp = "X-Timestamp"
	// HeaderNonce provides replay protection when combined with the timestamp.
	HeaderNonce = "X-Nonce"
	// HeaderSignature carries the hex-encoded HMAC-SHA256 signature for the request.
	HeaderSignature = "X-Signature"
	// MaxBodyForSignature is the maximum body size we will hash when authenticating.
	MaxBodyForSignature int = 1 << 20 // 1 MiB

	maxAllowedTimestampSkew  = 2 * time.Minute
	defaultTimestampSkew     = maxAllowedTimestampSkew
	maxNonceWindow           = 10 * time.Minute
	defaultNonceWindow       = maxNonceWindow
	defaultNonceCapacity     = 4096
	maxNonceCapacity         = 65536
	persistencePruneInterval = time.Minute
)

var (
	// ErrMissingHeader indicates a required authentication header was absent.
	ErrMissingHeader = errors.New("auth: missing header")
	// ErrUnknownKey indicates the API key is not registered.
	ErrUnknownKey = errors.New("auth: unknown api key")
	// ErrTimestampSkew indicates the signed timestamp fell outside the window.
	ErrTimestampSkew = errors.New("auth: timestamp outside allowed skew")
	// ErrInvalidSignature indicates the HMAC did not match.
	ErrInvalidSignature = errors.New("auth: invalid signature")
	// ErrNonceReused indicates the timestamp/nonce pair was seen before.
	ErrNonceReused = errors.New("auth: nonce already used")
)

// Credential holds a partner's shared secret and on-platform address.
type Credential struct {
	Secret  string
	Partner [20]byte
}

// Principal is the authenticated caller of a partner endpoint.
type Principal struct {
	APIKey  string
	Partner [20]byte
}

// NonceRecord captures persisted nonce usage metadata.
type NonceRecord struct {
	APIKey     string
	Timestamp  string
	Nonce      string
	ObservedAt time.Time
}

// NoncePersistence provides durable storage for nonce usage so replay
// protection survives restarts.
type NoncePersistence interface {
	EnsureNonce(ctx context.Context, record NonceRecord) (bool, error)
	RecentNonces(ctx context.Context, cutoff time.Time) ([]NonceRecord, error)
	PruneNonces(ctx context.Context, cutoff time.Time) error
}

// Authenticator verifies API key + HMAC signatures on incoming requests and
// maps them to partner identities.
type Authenticator struct {
	credentials          map[string]Credential
	allowedTimestampSkew time.Duration
	nonceTTL             time.Duration
	nowFn                func() time.Time

	mu     sync.Mutex
	nonces *nonceCache

	persistence NoncePersistence
	lastPruned  time.Time
}

// NewAuthenticator builds an Authenticator from the registered partner
// credentials, keyed by API key identifier.
func NewAuthenticator(credentials map[string]Credential, skew, nonceTTL time.Duration, nonceCapacity int, nowFn func() time.Time, persistence NoncePersistence) *Authenticator {
	cloned := make(map[string]Credential, len(credentials))
	for key, cred := range credentials {
		key = strings.TrimSpace(key)
		cred.Secret = strings.TrimSpace(cred.Secret)
		if key == "" || cred.Secret == "" {
			continue
		}
		cloned[key] = cred
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if skew <= 0 || skew > maxAllowedTimestampSkew {
		skew = defaultTimestampSkew
	}
	if nonceTTL <= 0 || nonceTTL > maxNonceWindow {
		nonceTTL = defaultNonceWindow
	}
	if nonceCapacity <= 0 || nonceCapacity > maxNonceCapacity {
		nonceCapacity = defaultNonceCapacity
	}
	return &Authenticator{
		credentials:          cloned,
		allowedTimestampSkew: skew,
		nonceTTL:             nonceTTL,
		nowFn:                nowFn,
		nonces:               newNonceCache(nonceTTL, nonceCapacity),
		persistence:          persistence,
	}
}

// Authenticate validates headers and signature, returning the partner
// principal on success.
func (a *Authenticator) Authenticate(r *http.Request, body []byte) (*Principal, error) {
	if len(body) > MaxBodyForSignature {
		return nil, fmt.Errorf("auth: request body exceeds %d bytes", MaxBodyForSignature)
	}
	apiKey := strings.TrimSpace(r.Header.Get(HeaderAPIKey))
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderAPIKey)
	}
	cred, ok := a.credentials[apiKey]
	if !ok {
		return nil, ErrUnknownKey
	}
	timestampHeader := strings.TrimSpace(r.Header.Get(HeaderTimestamp))
	if timestampHeader == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderTimestamp)
	}
	ts, err := parseUnixTimestamp(timestampHeader)
	if err != nil {
		return nil, fmt.Errorf("auth: invalid timestamp: %w", err)
	}
	now := a.nowFn().UTC()
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.allowedTimestampSkew {
		return nil, ErrTimestampSkew
	}
	nonce := strings.TrimSpace(r.Header.Get(HeaderNonce))
	if nonce == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderNonce)
	}
	providedSig := strings.TrimSpace(r.Header.Get(HeaderSignature))
	if providedSig == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingHeader, HeaderSignature)
	}
	expected := ComputeSignature(cred.Secret, timestampHeader, nonce, r.Method, CanonicalRequestPath(r), body)
	providedBytes, err := hex.DecodeString(providedSig)
	if err != nil {
		return nil, fmt.Errorf("%w: bad encoding", ErrInvalidSignature)
	}
	if !hmac.Equal(providedBytes, expected) {
		return nil, ErrInvalidSignature
	}
	duplicate, err := a.registerNonce(r.Context(), apiKey, timestampHeader, nonce, now)
	if err != nil {
		return nil, err
	}
	if duplicate {
		return nil, ErrNonceReused
	}
	return &Principal{APIKey: apiKey, Partner: cred.Partner}, nil
}

// HydrateNonces warms the in-memory cache with persisted nonce usage records.
func (a *Authenticator) HydrateNonces(ctx context.Context, cutoff time.Time) error {
	if a == nil || a.persistence == nil {
		return nil
	}
	records, err := a.persistence.RecentNonces(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("auth: load persistent nonces: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range records {
		if strings.TrimSpace(rec.APIKey) == "" || strings.TrimSpace(rec.Nonce) == "" {
			continue
		}
		observed := rec.ObservedAt
		if observed.IsZero() {
			observed = cutoff
		}
		a.nonces.Add(compositeNonceKey(rec.APIKey, rec.Timestamp, rec.Nonce), observed)
	}
	return nil
}

func (a *Authenticator) registerNonce(ctx context.Context, apiKey, timestamp, nonce string, now time.Time) (bool, error) {
	composite := compositeNonceKey(apiKey, timestamp, nonce)

	a.mu.Lock()
	seen := a.nonces.Contains(composite, now)
	a.mu.Unlock()
	if seen {
		return true, nil
	}

	if a.persistence != nil {
		if err := a.prunePersistent(ctx, now); err != nil {
			return false, err
		}
		record := NonceRecord{APIKey: apiKey, Timestamp: timestamp, Nonce: nonce, ObservedAt: now}
		existed, err := a.persistence.EnsureNonce(ctx, record)
		if err != nil {
			return false, fmt.Errorf("auth: persist nonce: %w", err)
		}
		if existed {
			a.mu.Lock()
			a.nonces.Add(composite, now)
			a.mu.Unlock()
			return true, nil
		}
	}

	a.mu.Lock()
	a.nonces.Add(composite, now)
	a.mu.Unlock()
	return false, nil
}

func (a *Authenticator) prunePersistent(ctx context.Context, now time.Time) error {
	if a.persistence == nil || a.nonceTTL <= 0 {
		return nil
	}
	if !a.lastPruned.IsZero() && now.Sub(a.lastPruned) < persistencePruneInterval {
		return nil
	}
	if err := a.persistence.PruneNonces(ctx, now.Add(-a.nonceTTL)); err != nil {
		return fmt.Errorf("auth: prune persistent nonces: %w", err)
	}
	a.lastPruned = now
	return nil
}

func compositeNonceKey(apiKey, timestamp, nonce string) string {
	return apiKey + "|" + timestamp + "|" + nonce
}

// CanonicalRequestPath normalises URL paths and query ordering for signing.
func CanonicalRequestPath(r *http.Request) string {
	path := r.URL.Path
	if path == "" {
		path = "/"
	}
	if r.URL.RawQuery != "" {
		path += "?" + CanonicalQuery(r.URL.RawQuery)
	}
	return path
}

// CanonicalQuery normalises raw query strings for stable HMAC signing.
func CanonicalQuery(raw string) string {
	if raw == "" {
		return ""
	}
	parts := strings.Split(raw, "&")
	sort.Strings(parts)
	return strings.Join(parts, "&")
}

// ComputeSignature builds the HMAC-SHA256 signature bytes for the request metadata.
func ComputeSignature(secret, timestamp, nonce, method, path string, body []byte) []byte {
	payload := strings.Join([]string{timestamp, nonce, strings.ToUpper(method), path, string(body)}, "\n")
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return mac.Sum(nil)
}

func parseUnixTimestamp(v string) (time.Time, error) {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

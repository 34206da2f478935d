// internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/minitoshi/susbot/engine"
)

var (
	ErrMissingToken      = errors.New("missing identity token")
	ErrInvalidToken      = errors.New("invalid identity token")
	ErrDevTokensDisabled = errors.New("dev tokens are disabled")
)

// DevTokenPrefix marks a "dev:<id>:<name>" token, accepted only in dev mode.
const DevTokenPrefix = "dev:"

// cacheTTL caps how long a verified token is trusted without re-checking.
const cacheTTL = 55 * time.Minute

// Claims is the JWT payload of an agent identity token.
type Claims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Karma  int    `json:"karma"`
	jwt.RegisteredClaims
}

type cachedProfile struct {
	profile   engine.Profile
	expiresAt time.Time
}

// Verifier turns identity tokens into verified agent profiles.
type Verifier struct {
	secret   []byte
	audience string
	devMode  bool
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedProfile
}

// NewVerifier returns a verifier for HS256 tokens signed with secret. With
// devMode set it also accepts dev tokens.
func NewVerifier(secret, audience string, devMode bool) *Verifier {
	return &Verifier{
		secret:   []byte(secret),
		audience: audience,
		devMode:  devMode,
		now:      time.Now,
		cache:    make(map[string]cachedProfile),
	}
}

// Verify checks token and returns the profile it identifies.
func (v *Verifier) Verify(token string) (engine.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return engine.Profile{}, ErrMissingToken
	}
	if strings.HasPrefix(token, DevTokenPrefix) {
		return v.verifyDev(token)
	}

	now := v.now()
	v.mu.Lock()
	if c, ok := v.cache[token]; ok && now.Before(c.expiresAt) {
		v.mu.Unlock()
		return c.profile, nil
	}
	v.mu.Unlock()

	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return engine.Profile{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return engine.Profile{}, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}

	profile := engine.Profile{
		ID:        claims.Subject,
		Name:      claims.Name,
		AvatarURL: claims.Avatar,
		Karma:     claims.Karma,
	}
	if profile.Name == "" {
		profile.Name = defaultName(profile.ID)
	}

	expires := now.Add(cacheTTL)
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(expires) {
		expires = claims.ExpiresAt.Time
	}
	v.mu.Lock()
	v.cache[token] = cachedProfile{profile: profile, expiresAt: expires}
	v.mu.Unlock()
	return profile, nil
}

// verifyDev parses "dev:<id>[:<name>]".
func (v *Verifier) verifyDev(token string) (engine.Profile, error) {
	if !v.devMode {
		return engine.Profile{}, ErrDevTokensDisabled
	}
	parts := strings.SplitN(strings.TrimPrefix(token, DevTokenPrefix), ":", 2)
	id := parts[0]
	if id == "" {
		return engine.Profile{}, fmt.Errorf("%w: empty dev id", ErrInvalidToken)
	}
	name := defaultName(id)
	if len(parts) == 2 && parts[1] != "" {
		name = parts[1]
	}
	return engine.Profile{ID: id, Name: name}, nil
}

func defaultName(id string) string {
	if len(id) > 6 {
		id = id[:6]
	}
	return "Agent_" + id
}

// Issue mints a signed token for profile valid for ttl.
func (v *Verifier) Issue(profile engine.Profile, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		Name:   profile.Name,
		Avatar: profile.AvatarURL,
		Karma:  profile.Karma,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   profile.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// PruneCache drops expired cache entries and reports how many were removed.
func (v *Verifier) PruneCache() int {
	now := v.now()
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for tok, c := range v.cache {
		if !now.Before(c.expiresAt) {
			delete(v.cache, tok)
			n++
		}
	}
	if n > 0 {
		log.WithField("removed", n).Debug("Pruned identity token cache")
	}
	return n
}

// TokenFromRequest extracts a bearer token from the Authorization header,
// falling back to the X-Identity-Token header and then the "token" query
// parameter for WebSocket clients.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	if h := r.Header.Get("X-Identity-Token"); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// HashAdminKey bcrypt-hashes an admin key for ADMIN_KEY_HASH.
func HashAdminKey(key string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash admin key: %w", err)
	}
	return string(h), nil
}

// CheckAdminKey reports whether key matches the bcrypt hash. An empty hash
// matches nothing.
func CheckAdminKey(hash, key string) bool {
	if hash == "" || key == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}

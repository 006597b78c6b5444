package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	SubjectContextKey contextKey = "subject"
)

// InternalTokenHeader carries the shared secret for internal routes.
const InternalTokenHeader = "X-Internal-Token"

const insecureJWTSecret = "default-insecure-secret-change-me"

// Claims are the JWT claims accepted by the management API.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Auth validates HS256 bearer tokens.
type Auth struct {
	secret []byte
}

// NewAuth creates an Auth. An empty secret falls back to an insecure default.
func NewAuth(secret string) *Auth {
	if secret == "" {
		log.Warn().Msg("JWT_SECRET not set, using default insecure secret")
		secret = insecureJWTSecret
	}
	return &Auth{secret: []byte(secret)}
}

// Sign issues a token for subject valid for ttl.
func (a *Auth) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Auth) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Middleware requires a valid bearer token and stores its subject in the
// request context.
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return a.handler(next, false)
}

// QueryTokenMiddleware is Middleware that also accepts ?token= for clients
// that cannot set headers, such as browser websockets.
func (a *Auth) QueryTokenMiddleware(next http.Handler) http.Handler {
	return a.handler(next, true)
}

func (a *Auth) handler(next http.Handler, allowQuery bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			bearerToken := strings.Split(authHeader, " ")
			if len(bearerToken) != 2 || bearerToken[0] != "Bearer" {
				writeErrorKind(w, http.StatusUnauthorized, KindUnauthorized, "invalid token format")
				return
			}
			tokenString = bearerToken[1]
		} else if allowQuery {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			writeErrorKind(w, http.StatusUnauthorized, KindUnauthorized, "no token provided")
			return
		}

		claims, err := a.parse(tokenString)
		if err != nil {
			writeErrorKind(w, http.StatusUnauthorized, KindUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), SubjectContextKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSubjectFromContext returns the authenticated subject.
func GetSubjectFromContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(SubjectContextKey).(string)
	return subject, ok
}

// InternalTokenMiddleware requires the shared internal token. An empty token
// disables the routes it guards.
func InternalTokenMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get(InternalTokenHeader) != token {
				writeErrorKind(w, http.StatusUnauthorized, KindUnauthorized, "invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RevealLimiter throttles secret reveals per client.
type RevealLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewRevealLimiter allows perMinute reveals per client with an equal burst.
func NewRevealLimiter(perMinute int) *RevealLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &RevealLimiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (rl *RevealLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, ok := rl.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(rl.rate, rl.burst)
		rl.limiters[key] = limiter
	}
	return limiter
}

// Handler rejects requests beyond the allowance with 429.
func (rl *RevealLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !rl.getLimiter(key).Allow() {
			log.Warn().Str("client", key).Str("path", r.URL.Path).Msg("Reveal rate limit exceeded")
			w.Header().Set("Retry-After", "60")
			writeErrorKind(w, http.StatusTooManyRequests, KindRateLimited, "too many reveal requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Cleanup drops limiters that have refilled completely.
func (rl *RevealLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, limiter := range rl.limiters {
		if limiter.Tokens() >= float64(rl.burst) {
			delete(rl.limiters, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (rl *RevealLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.Cleanup()
			}
		}
	}()
}

func clientKey(r *http.Request) string {
	if subject, ok := GetSubjectFromContext(r.Context()); ok && subject != "" {
		return "sub:" + subject
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

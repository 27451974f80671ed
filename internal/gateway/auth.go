package gateway

import (
	"crypto/subtle"
	"net"
	"os"
	"sync"
	"time"

	"github.com/soyeahso/roombot/internal/config"
)

// AuthResult is the outcome of an authentication attempt.
type AuthResult struct {
	OK     bool   `json:"ok"`
	Method string `json:"method,omitempty"` // "token" | "password"
	Reason string `json:"reason,omitempty"`
}

// ResolvedAuth holds the resolved auth configuration for the gateway.
type ResolvedAuth struct {
	Mode     string
	Token    string
	Password string
}

// ResolveAuth resolves credentials from config, then the environment.
func ResolveAuth(cfg config.GatewayAuth) ResolvedAuth {
	auth := ResolvedAuth{Mode: cfg.Mode, Token: cfg.Token, Password: cfg.Password}
	if auth.Token == "" {
		auth.Token = os.Getenv("ROOMBOT_GATEWAY_TOKEN")
	}
	if auth.Password == "" {
		auth.Password = os.Getenv("ROOMBOT_GATEWAY_PASSWORD")
	}
	if auth.Mode == "" {
		if auth.Password != "" {
			auth.Mode = "password"
		} else {
			auth.Mode = "token"
		}
	}
	return auth
}

// Authorize checks the client's credentials against the server's.
func Authorize(serverAuth ResolvedAuth, clientAuth *ConnectAuth) AuthResult {
	if clientAuth == nil {
		return AuthResult{Reason: "no credentials provided"}
	}

	switch serverAuth.Mode {
	case "token":
		if serverAuth.Token == "" {
			return AuthResult{Reason: "server token not configured"}
		}
		if clientAuth.Token == "" {
			return AuthResult{Reason: "token required"}
		}
		if !safeEqual(clientAuth.Token, serverAuth.Token) {
			return AuthResult{Reason: "token_mismatch"}
		}
		return AuthResult{OK: true, Method: "token"}

	case "password":
		if serverAuth.Password == "" {
			return AuthResult{Reason: "server password not configured"}
		}
		if clientAuth.Password == "" {
			return AuthResult{Reason: "password required"}
		}
		if !safeEqual(clientAuth.Password, serverAuth.Password) {
			return AuthResult{Reason: "password_mismatch"}
		}
		return AuthResult{OK: true, Method: "password"}

	default:
		return AuthResult{Reason: "unknown auth mode: " + serverAuth.Mode}
	}
}

// safeEqual compares in constant time, including when lengths differ.
func safeEqual(a, b string) bool {
	lenMatch := subtle.ConstantTimeEq(int32(len(a)), int32(len(b)))
	cmp := subtle.ConstantTimeCompare([]byte(a), []byte(b))
	return subtle.ConstantTimeSelect(lenMatch, cmp, 0) == 1
}

const (
	authFailWindow = 5 * time.Minute
	authMaxFails   = 10
	authMaxHosts   = 10000
)

// authLimiter blocks hosts with too many failed handshakes inside the
// window. Stale hosts are pruned when the table fills up.
type authLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// recent drops failures older than the window. Callers hold mu.
func (l *authLimiter) recent(host string, now time.Time) []time.Time {
	cutoff := now.Add(-authFailWindow)
	times := l.failures[host]
	kept := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(remoteHost(remoteAddr), l.now())) < authMaxFails
}

func (l *authLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if _, tracked := l.failures[host]; !tracked && len(l.failures) >= authMaxHosts {
		for h := range l.failures {
			l.recent(h, now)
		}
		if len(l.failures) >= authMaxHosts {
			l.evictOldest()
		}
	}
	l.failures[host] = append(l.failures[host], now)
}

func (l *authLimiter) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for h, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(oldestAt)) {
			oldest, oldestAt = h, times[0]
		}
	}
	delete(l.failures, oldest)
}

func (l *authLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

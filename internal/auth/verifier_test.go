package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestDevTokens(t *testing.T) {
	v := NewVerifier("dev", "", "", "", "")
	p, err := v.Verify("t1:Admin")
	require.NoError(t, err)
	require.Equal(t, Principal{Tenant: "t1", Role: "admin"}, p)
	require.True(t, p.IsAdmin())

	_, err = v.Verify("no-role")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestHMACTokens(t *testing.T) {
	secret := "12345678901234567890123456789012"
	v := NewVerifier("hmac", secret, "", "", "")

	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant": "t1",
		"exp":    time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	p, err := v.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "t1", p.Tenant)
	require.Equal(t, "user", p.Role)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant": "t1",
		"exp":    time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.Verify(expired)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"tenant": "t1"}).SignedString([]byte("other-secret-other-secret-other!"))
	require.NoError(t, err)
	_, err = v.Verify(wrongKey)
	require.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"tenant": "t1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.Verify(none)
	require.ErrorIs(t, err, ErrInvalidToken)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "admin"}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, err = v.Verify(noTenant)
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestJWKSTokens(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v := NewVerifier("jwks", "", srv.URL, "org", "")
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"org": "t9", "role": "admin"})
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	p, err := v.Verify(signed)
	require.NoError(t, err)
	require.Equal(t, Principal{Tenant: "t9", Role: "admin"}, p)

	tok.Header["kid"] = "unknown"
	signed, err = tok.SignedString(key)
	require.NoError(t, err)
	_, err = v.Verify(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

type keySet struct {
	mu   sync.Mutex
	keys map[string]*rsa.PrivateKey
}

func (s *keySet) add(kid string, key *rsa.PrivateKey) {
	s.mu.Lock()
	s.keys[kid] = key
	s.mu.Unlock()
}

// jwksServer serves the public halves of keys under their kids and counts
// fetches.
func jwksServer(t *testing.T, keys *keySet, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		keys.mu.Lock()
		defer keys.mu.Unlock()
		set := []map[string]string{}
		for kid, key := range keys.keys {
			set = append(set, map[string]string{
				"kty": "RSA",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": set})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"tenant": "t1"})
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSUnknownKidDoesNotRefetchEveryRequest(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int64
	srv := jwksServer(t, &keySet{keys: map[string]*rsa.PrivateKey{"k1": key}}, &hits)
	v := NewVerifier("jwks", "", srv.URL, "", "")

	bogus := signRS256(t, key, "bogus")
	for i := 0; i < 50; i++ {
		_, err := v.Verify(bogus)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
	require.LessOrEqual(t, hits.Load(), int64(1))

	// a known kid is still served from the cache
	_, err = v.Verify(signRS256(t, key, "k1"))
	require.NoError(t, err)
	require.LessOrEqual(t, hits.Load(), int64(1))
}

func TestJWKSPicksUpRotatedKeyAfterCooldown(t *testing.T) {
	k1, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	k2, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	var hits atomic.Int64
	keys := &keySet{keys: map[string]*rsa.PrivateKey{"k1": k1}}
	srv := jwksServer(t, keys, &hits)
	v := NewVerifier("jwks", "", srv.URL, "", "")
	v.minRefetch = 200 * time.Millisecond

	_, err = v.Verify(signRS256(t, k1, "k1"))
	require.NoError(t, err)

	keys.add("k2", k2)
	_, err = v.Verify(signRS256(t, k2, "k2"))
	require.ErrorIs(t, err, ErrInvalidToken)

	time.Sleep(250 * time.Millisecond)
	p, err := v.Verify(signRS256(t, k2, "k2"))
	require.NoError(t, err)
	require.Equal(t, "t1", p.Tenant)
	require.Equal(t, int64(2), hits.Load())
}

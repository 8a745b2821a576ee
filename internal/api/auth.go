package api

import (
    "net/http"
    "strings"
)

// authenticate resolves the tenant from the bearer token when a verifier is
// configured and pins it in X-Tenant-Id, so a client cannot pick another
// tenant by header. /v1/admin requires the admin role. The stream endpoint
// also accepts ?access_token= since browsers cannot set headers on sockets.
func (s *Server) authenticate(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if s.Auth == nil || !strings.HasPrefix(r.URL.Path, "/v1/") {
            next.ServeHTTP(w, r)
            return
        }
        tok := ""
        if authz := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
            tok = strings.TrimSpace(authz[len("Bearer "):])
        } else if r.URL.Path == "/v1/sourcing/stream" {
            tok = r.URL.Query().Get("access_token")
        }
        if tok == "" {
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required", r.URL.Path)
            return
        }
        p, err := s.Auth.Verify(tok)
        if err != nil {
            writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
            return
        }
        if strings.HasPrefix(r.URL.Path, "/v1/admin/") && !p.IsAdmin() {
            writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
            return
        }
        r.Header.Set("X-Tenant-Id", p.Tenant)
        q := r.URL.Query()
        if q.Has("tenantId") {
            q.Del("tenantId")
            r.URL.RawQuery = q.Encode()
        }
        next.ServeHTTP(w, r)
    })
}

// Package api implements the HTTP surface of the route solver.
package api

import (
    "net/http"
    "strings"
)

type Principal struct {
    Tenant string
    Role   string // admin, dispatcher, viewer
    // Anonymous is set when no valid bearer token was presented.
    Anonymous bool
}

// getPrincipal extracts tenant and role from a bearer token when one is
// present, else from the X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
    authz := r.Header.Get("Authorization")
    if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
        tok := strings.TrimSpace(authz[len("Bearer "):])
        if pr, err := s.Auth.Verify(tok); err == nil {
            return Principal{Tenant: pr.Tenant, Role: pr.Role}
        }
        return Principal{Anonymous: true}
    }
    if s.Config.Auth.RequireToken {
        return Principal{Anonymous: true}
    }
    tenant := r.Header.Get("X-Tenant-Id")
    role := r.Header.Get("X-Role")
    if tenant == "" {
        tenant = "t_demo"
    }
    if role == "" {
        role = "admin"
    }
    return Principal{Tenant: tenant, Role: role}
}

// authenticated resolves the principal and answers 401 for anonymous callers.
func (s *Server) authenticated(w http.ResponseWriter, r *http.Request) (Principal, bool) {
    p := s.getPrincipal(r)
    if p.Anonymous {
        w.Header().Set("WWW-Authenticate", `Bearer realm="shelterroute"`)
        writeProblem(w, http.StatusUnauthorized, "Unauthorized", "valid bearer token required", r.URL.Path)
        return p, false
    }
    return p, true
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return !p.Anonymous && p.Role == "admin" }

// CanSolve reports whether the principal may run solves.
func (p Principal) CanSolve() bool { return p.IsAdmin() || (!p.Anonymous && p.Role == "dispatcher") }

// CanRead reports whether the principal may read tenant data.
func (p Principal) CanRead() bool { return !p.Anonymous }

package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/sirupsen/logrus"

    "shelterroute/internal/integrations"
    "shelterroute/internal/integrations/csvfile"
    "shelterroute/internal/model"
    "shelterroute/internal/opt"
    "shelterroute/internal/planner"
    "shelterroute/internal/store"
)

const maxBodyBytes = 4 << 20

// SolveHandler handles POST /v1/solve
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed)
        return
    }
    p, ok := s.authenticated(w, r)
    if !ok { return }
    if !p.CanSolve() { writeProblem(w, 403, "Forbidden", "dispatcher or admin required", r.URL.Path); return }
    if !s.limits.Allow(p.Tenant) {
        w.Header().Set("Retry-After", "1")
        writeTypedProblem(w, Problem{Type: ProblemRateLimit, Title: "Too many solves", Status: http.StatusTooManyRequests, Instance: r.URL.Path})
        return
    }
    var req model.SolveRequest
    if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    if errs := validateStruct(req); errs != nil {
        writeTypedProblem(w, Problem{Type: ProblemValidation, Title: "Invalid solve request", Status: http.StatusBadRequest, Instance: r.URL.Path, Errors: errs})
        return
    }
    resp, err := s.Planner.Solve(r.Context(), p.Tenant, req)
    if err != nil {
        pr := solveProblem(err)
        pr.Instance = r.URL.Path
        writeTypedProblem(w, pr)
        return
    }
    writeJSON(w, http.StatusOK, resp)
}

// solveProblem maps a planner error onto a problem response.
func solveProblem(err error) Problem {
    switch {
    case errors.Is(err, opt.ErrEmptyInput):
        return Problem{Type: ProblemEmptyInput, Title: "No destinations", Status: http.StatusUnprocessableEntity, Detail: err.Error()}
    case errors.Is(err, opt.ErrNoSolution):
        return Problem{Type: ProblemNoSolution, Title: "No solution found", Status: http.StatusInternalServerError, Detail: err.Error()}
    case errors.Is(err, opt.ErrInvalidLocation), errors.Is(err, opt.ErrInvalidFleet), errors.Is(err, planner.ErrTooManyVehicles):
        return Problem{Type: ProblemValidation, Title: "Invalid solve request", Status: http.StatusBadRequest, Detail: err.Error()}
    case errors.Is(err, store.ErrNotFound):
        return Problem{Type: ProblemNotFound, Title: "Unknown shelter", Status: http.StatusNotFound, Detail: err.Error()}
    case errors.Is(err, store.ErrAmbiguous):
        return Problem{Type: ProblemAmbiguous, Title: "Ambiguous shelter name", Status: http.StatusConflict, Detail: err.Error()}
    default:
        return Problem{Title: "Solve failed", Status: http.StatusInternalServerError, Detail: err.Error()}
    }
}

// SheltersHandler handles GET/POST /v1/shelters
func (s *Server) SheltersHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.authenticated(w, r)
    if !ok { return }
    switch r.Method {
    case http.MethodPost:
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        if strings.HasPrefix(r.Header.Get("Content-Type"), "text/csv") {
            s.importSheltersCSV(w, r, p.Tenant)
            return
        }
        var body struct {
            Shelters []model.ShelterIn `json:"shelters" validate:"required,min=1,max=5000,dive"`
        }
        if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if errs := validateStruct(body); errs != nil {
            writeTypedProblem(w, Problem{Type: ProblemValidation, Title: "Invalid shelters", Status: http.StatusBadRequest, Instance: r.URL.Path, Errors: errs})
            return
        }
        created, skipped, err := s.Store.CreateShelters(r.Context(), p.Tenant, body.Shelters)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create shelters failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusAccepted, map[string]any{"created": created, "skipped": skipped})
    case http.MethodGet:
        q, err := parseShelterQuery(r)
        if err != nil {
            writeTypedProblem(w, Problem{Type: ProblemValidation, Title: "Invalid query", Status: http.StatusBadRequest, Detail: err.Error(), Instance: r.URL.Path})
            return
        }
        items, next, err := s.Store.ListShelters(r.Context(), p.Tenant, q)
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "List shelters failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// importSheltersCSV stores a CSV upload. Bad rows are reported, not fatal.
func (s *Server) importSheltersCSV(w http.ResponseWriter, r *http.Request, tenant string) {
    src := csvfile.FromReader("upload", http.MaxBytesReader(w, r.Body, maxBodyBytes))
    res, err := integrations.Import(r.Context(), src, s.Store, tenant)
    switch {
    case errors.Is(err, csvfile.ErrMissingColumn):
        writeTypedProblem(w, Problem{Type: ProblemValidation, Title: "Invalid shelter CSV", Status: http.StatusBadRequest, Detail: err.Error(), Instance: r.URL.Path})
    case err != nil:
        writeProblem(w, http.StatusInternalServerError, "Import shelters failed", err.Error(), r.URL.Path)
    default:
        s.Log.WithFields(logrus.Fields{"tenant": tenant, "created": res.Created, "skipped": res.Skipped, "rejected": len(res.Rejected)}).Info("shelters imported")
        writeJSON(w, http.StatusAccepted, res)
    }
}

func parseShelterQuery(r *http.Request) (model.ShelterQuery, error) {
    v := r.URL.Query()
    q := model.ShelterQuery{District: v.Get("district"), Cursor: v.Get("cursor")}
    if s := v.Get("limit"); s != "" {
        n, err := strconv.Atoi(s)
        if err != nil || n < 0 { return q, fmt.Errorf("limit must be a non-negative integer") }
        q.Limit = n
    }
    if s := v.Get("precision"); s != "" {
        n, err := strconv.ParseUint(s, 10, 8)
        if err != nil || n < 1 || n > store.GeohashChars { return q, fmt.Errorf("precision must be 1..%d", store.GeohashChars) }
        q.Precision = uint(n)
    }
    if s := v.Get("near"); s != "" {
        lat, lng, ok := strings.Cut(s, ",")
        if !ok { return q, fmt.Errorf("near must be lat,lng") }
        pt := model.GeoPoint{}
        var err1, err2 error
        pt.Lat, err1 = strconv.ParseFloat(strings.TrimSpace(lat), 64)
        pt.Lng, err2 = strconv.ParseFloat(strings.TrimSpace(lng), 64)
        if err1 != nil || err2 != nil { return q, fmt.Errorf("near must be lat,lng") }
        if errs := validateStruct(pt); errs != nil { return q, fmt.Errorf("near: %s", strings.Join(errs, "; ")) }
        q.Near = &pt
    }
    return q, nil
}

// DistrictsHandler handles GET /v1/shelters/districts
func (s *Server) DistrictsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authenticated(w, r)
    if !ok { return }
    ds, err := s.Store.ListDistricts(r.Context(), p.Tenant)
    if err != nil {
        writeProblem(w, http.StatusInternalServerError, "List districts failed", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"items": ds})
}

// SolverConfigHandler returns the effective solver settings
func (s *Server) SolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authenticated(w, r)
    if !ok { return }
    set, err := s.Planner.Settings(r.Context(), p.Tenant)
    if err != nil { writeProblem(w, 500, "Load settings failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"defaults": set.View()})
}

// Admin get/set solver tenant overrides
func (s *Server) AdminSolverConfigHandler(w http.ResponseWriter, r *http.Request) {
    p, ok := s.authenticated(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodGet:
        cfg, err := s.Store.GetSolverSettings(r.Context(), p.Tenant)
        if err != nil { writeProblem(w, 500, "Load settings failed", err.Error(), r.URL.Path); return }
        if cfg == nil { cfg = &model.SolverSettings{} }
        writeJSON(w, 200, map[string]any{"config": cfg})
    case http.MethodPut:
        var body struct{ Config *model.SolverSettings `json:"config"` }
        if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil { writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path); return }
        if body.Config == nil { writeProblem(w, 400, "Missing config", "", r.URL.Path); return }
        if errs := validateStruct(body.Config); errs != nil {
            writeTypedProblem(w, Problem{Type: ProblemValidation, Title: "Invalid settings", Status: http.StatusBadRequest, Instance: r.URL.Path, Errors: errs})
            return
        }
        if err := s.Store.SaveSolverSettings(r.Context(), p.Tenant, *body.Config); err != nil { writeProblem(w, 500, "Save failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]bool{"ok": true})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// SolveStatsHandler handles GET /v1/admin/solve-stats
func (s *Server) SolveStatsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    p, ok := s.authenticated(w, r)
    if !ok { return }
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    limit := 0
    if v := r.URL.Query().Get("limit"); v != "" { limit, _ = strconv.Atoi(v) }
    writeJSON(w, 200, map[string]any{"items": s.Planner.Stats().Recent(p.Tenant, limit)})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    type pinger interface{ Ping(ctx context.Context) error }
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "store: "+err.Error(), r.URL.Path); return }
    if pb, ok := s.Broker.(pinger); ok {
        if err := pb.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", "broker: "+err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}

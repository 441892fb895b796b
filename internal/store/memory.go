package store

import (
    "context"
    "fmt"
    "sort"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"

    "shelterroute/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu       sync.Mutex
    shelters map[string]model.Shelter       // id -> shelter
    byTen    map[string][]string            // tenant -> shelter ids, insertion order
    settings map[string]model.SolverSettings // tenant -> settings
}

func NewMemory() *Memory {
    return &Memory{
        shelters: map[string]model.Shelter{},
        byTen:    map[string][]string{},
        settings: map[string]model.SolverSettings{},
    }
}

func shelterKey(district, name string) string { return district + "\x00" + name }

// CreateShelters skips entries whose (district, name) already exists.
func (m *Memory) CreateShelters(ctx context.Context, tenantID string, in []model.ShelterIn) (int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    seen := map[string]bool{}
    for _, id := range m.byTen[tenantID] {
        sh := m.shelters[id]
        seen[shelterKey(sh.District, sh.Name)] = true
    }
    created, skipped := 0, 0
    for _, s := range in {
        k := shelterKey(s.District, s.Name)
        if seen[k] { skipped++; continue }
        seen[k] = true
        id := uuid.New().String()
        m.shelters[id] = model.Shelter{
            ID:        id,
            Name:      s.Name,
            District:  s.District,
            Address:   s.Address,
            Capacity:  s.Capacity,
            Location:  s.Location,
            Geohash:   shelterGeohash(s.Location),
            CreatedAt: time.Now().UTC(),
        }
        m.byTen[tenantID] = append(m.byTen[tenantID], id)
        created++
    }
    return created, skipped, nil
}

func (m *Memory) ListShelters(ctx context.Context, tenantID string, q model.ShelterQuery) ([]model.Shelter, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.byTen[tenantID]
    // an unknown cursor ends the listing instead of restarting it
    start := 0
    if q.Cursor != "" {
        start = len(ids)
        for i, id := range ids {
            if id == q.Cursor { start = i + 1; break }
        }
    }
    var cells []string
    if q.Near != nil { cells = nearCells(*q.Near, q.Precision) }
    limit := clampLimit(q.Limit)
    out := []model.Shelter{}
    next := ""
    for i := start; i < len(ids); i++ {
        sh := m.shelters[ids[i]]
        if q.District != "" && sh.District != q.District { continue }
        if cells != nil && !inCells(sh.Geohash, cells) { continue }
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, sh)
    }
    return out, next, nil
}

func inCells(hash string, cells []string) bool {
    for _, c := range cells {
        if strings.HasPrefix(hash, c) { return true }
    }
    return false
}

// GetSheltersByName resolves names in request order. An empty district
// searches all districts and fails with ErrAmbiguous on a name that appears
// in more than one.
func (m *Memory) GetSheltersByName(ctx context.Context, tenantID, district string, names []string) ([]model.Shelter, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    byName := map[string][]model.Shelter{}
    for _, id := range m.byTen[tenantID] {
        sh := m.shelters[id]
        if district != "" && sh.District != district { continue }
        byName[sh.Name] = append(byName[sh.Name], sh)
    }
    out := make([]model.Shelter, 0, len(names))
    for _, n := range names {
        switch found := byName[n]; len(found) {
        case 0:
            return nil, fmt.Errorf("shelter %q: %w", n, ErrNotFound)
        case 1:
            out = append(out, found[0])
        default:
            return nil, fmt.Errorf("shelter %q in %d districts: %w", n, len(found), ErrAmbiguous)
        }
    }
    return out, nil
}

func (m *Memory) ListDistricts(ctx context.Context, tenantID string) ([]model.District, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    counts := map[string]int{}
    for _, id := range m.byTen[tenantID] {
        counts[m.shelters[id].District]++
    }
    out := make([]model.District, 0, len(counts))
    for name, n := range counts {
        out = append(out, model.District{Name: name, Shelters: n})
    }
    sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
    return out, nil
}

func (m *Memory) GetSolverSettings(ctx context.Context, tenantID string) (*model.SolverSettings, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if s, ok := m.settings[tenantID]; ok { return &s, nil }
    return nil, nil
}

func (m *Memory) SaveSolverSettings(ctx context.Context, tenantID string, s model.SolverSettings) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.settings[tenantID] = s
    return nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

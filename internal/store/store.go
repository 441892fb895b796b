package store

import (
    "context"
    "errors"

    "github.com/mmcloughlin/geohash"

    "shelterroute/internal/model"
)

// Store is the persistence interface used by the API server and planner.
// Solutions are never stored.
type Store interface {
    // Shelter catalog
    CreateShelters(ctx context.Context, tenantID string, in []model.ShelterIn) (created, skipped int, err error)
    ListShelters(ctx context.Context, tenantID string, q model.ShelterQuery) (items []model.Shelter, nextCursor string, err error)
    GetSheltersByName(ctx context.Context, tenantID, district string, names []string) ([]model.Shelter, error)
    ListDistricts(ctx context.Context, tenantID string) ([]model.District, error)

    // Solver settings per tenant; nil when the tenant has none.
    GetSolverSettings(ctx context.Context, tenantID string) (*model.SolverSettings, error)
    SaveSolverSettings(ctx context.Context, tenantID string, s model.SolverSettings) error

    Ping(ctx context.Context) error
}

var (
    ErrNotFound  = errors.New("not found")
    ErrAmbiguous = errors.New("ambiguous shelter name")
)

// GeohashChars is the precision shelters are indexed at.
const GeohashChars = 9

const (
    defaultNearPrecision uint = 6
    defaultLimit              = 100
    maxLimit                  = 500
)

func shelterGeohash(p model.GeoPoint) string {
    return geohash.EncodeWithPrecision(p.Lat, p.Lng, GeohashChars)
}

// nearCells returns the geohash cell containing p and its neighbours.
func nearCells(p model.GeoPoint, precision uint) []string {
    if precision == 0 { precision = defaultNearPrecision }
    if precision > GeohashChars { precision = GeohashChars }
    center := geohash.EncodeWithPrecision(p.Lat, p.Lng, precision)
    return append([]string{center}, geohash.Neighbors(center)...)
}

func clampLimit(limit int) int {
    if limit <= 0 { return defaultLimit }
    if limit > maxLimit { return maxLimit }
    return limit
}

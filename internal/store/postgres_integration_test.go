//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "github.com/google/uuid"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "shelterroute/internal/model"
)

func TestPostgresSheltersAndSettings(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    ctx := t.Context()
    p, err := NewPostgres(ctx, dsn)
    require.NoError(t, err)
    defer p.Close()
    require.NoError(t, p.Migrate(ctx))
    require.NoError(t, p.Migrate(ctx), "migrations must be idempotent")

    tenant := "t_" + uuid.NewString()
    created, skipped, err := p.CreateShelters(ctx, tenant, []model.ShelterIn{
        {Name: "Kita Hall", District: "Kita", Location: model.GeoPoint{Lat: 33.87, Lng: 132.75}},
        {Name: "Kita Hall", District: "Kita", Location: model.GeoPoint{Lat: 33.87, Lng: 132.75}},
        {Name: "Minami School", District: "Minami", Location: model.GeoPoint{Lat: 33.83, Lng: 132.77}},
    })
    require.NoError(t, err)
    assert.Equal(t, 2, created)
    assert.Equal(t, 1, skipped)

    items, _, err := p.ListShelters(ctx, tenant, model.ShelterQuery{Near: &model.GeoPoint{Lat: 33.87, Lng: 132.75}})
    require.NoError(t, err)
    require.Len(t, items, 1)
    assert.Equal(t, "Kita Hall", items[0].Name)

    got, err := p.GetSheltersByName(ctx, tenant, "", []string{"Minami School"})
    require.NoError(t, err)
    assert.Equal(t, "Minami", got[0].District)

    ds, err := p.ListDistricts(ctx, tenant)
    require.NoError(t, err)
    assert.Len(t, ds, 2)

    spread := true
    require.NoError(t, p.SaveSolverSettings(ctx, tenant, model.SolverSettings{SpreadFleet: &spread}))
    s, err := p.GetSolverSettings(ctx, tenant)
    require.NoError(t, err)
    require.NotNil(t, s)
    assert.True(t, *s.SpreadFleet)
}

package store

import (
    "context"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "shelterroute/internal/model"
)

func seedShelters(t *testing.T, m *Memory) {
    t.Helper()
    created, skipped, err := m.CreateShelters(context.Background(), "t1", []model.ShelterIn{
        {Name: "Minami School", District: "Minami", Location: model.GeoPoint{Lat: 33.8390, Lng: 132.7650}},
        {Name: "Kita Hall", District: "Kita", Location: model.GeoPoint{Lat: 33.8700, Lng: 132.7500}},
        {Name: "Kita Gym", District: "Kita", Location: model.GeoPoint{Lat: 33.8710, Lng: 132.7510}},
        {Name: "Community Center", District: "Kita", Location: model.GeoPoint{Lat: 33.8650, Lng: 132.7400}},
        {Name: "Community Center", District: "Minami", Location: model.GeoPoint{Lat: 33.8300, Lng: 132.7700}},
        {Name: "Kita Hall", District: "Kita", Location: model.GeoPoint{Lat: 1, Lng: 1}},
    })
    require.NoError(t, err)
    require.Equal(t, 5, created)
    require.Equal(t, 1, skipped)
}

func TestMemorySheltersDedupAndDistricts(t *testing.T) {
    m := NewMemory()
    seedShelters(t, m)

    ds, err := m.ListDistricts(context.Background(), "t1")
    require.NoError(t, err)
    assert.Equal(t, []model.District{{Name: "Kita", Shelters: 3}, {Name: "Minami", Shelters: 2}}, ds)

    other, err := m.ListDistricts(context.Background(), "t2")
    require.NoError(t, err)
    assert.Empty(t, other)

    _, skipped, err := m.CreateShelters(context.Background(), "t1", []model.ShelterIn{{Name: "Kita Gym", District: "Kita"}})
    require.NoError(t, err)
    assert.Equal(t, 1, skipped)
}

func TestMemoryListSheltersFiltersAndPages(t *testing.T) {
    m := NewMemory()
    seedShelters(t, m)
    ctx := context.Background()

    kita, next, err := m.ListShelters(ctx, "t1", model.ShelterQuery{District: "Kita"})
    require.NoError(t, err)
    assert.Len(t, kita, 3)
    assert.Empty(t, next)
    for _, s := range kita {
        assert.Len(t, s.Geohash, GeohashChars)
    }

    page1, next, err := m.ListShelters(ctx, "t1", model.ShelterQuery{Limit: 2})
    require.NoError(t, err)
    require.Len(t, page1, 2)
    require.NotEmpty(t, next)
    page2, next2, err := m.ListShelters(ctx, "t1", model.ShelterQuery{Limit: 2, Cursor: next})
    require.NoError(t, err)
    require.Len(t, page2, 2)
    assert.NotEqual(t, page1[0].ID, page2[0].ID)
    page3, next3, err := m.ListShelters(ctx, "t1", model.ShelterQuery{Limit: 2, Cursor: next2})
    require.NoError(t, err)
    assert.Len(t, page3, 1)
    assert.Empty(t, next3)

    near, _, err := m.ListShelters(ctx, "t1", model.ShelterQuery{Near: &model.GeoPoint{Lat: 33.8705, Lng: 132.7505}, Precision: 6})
    require.NoError(t, err)
    names := []string{}
    for _, s := range near {
        names = append(names, s.Name)
    }
    assert.Contains(t, names, "Kita Hall")
    assert.Contains(t, names, "Kita Gym")
    assert.NotContains(t, names, "Minami School")
}

func TestMemoryListSheltersUnknownCursorIsEmpty(t *testing.T) {
    m := NewMemory()
    seedShelters(t, m)
    items, next, err := m.ListShelters(context.Background(), "t1", model.ShelterQuery{Cursor: "ffffffff-ffff-ffff-ffff-ffffffffffff"})
    require.NoError(t, err)
    assert.Empty(t, items)
    assert.Empty(t, next)
}

func TestMemoryGetSheltersByName(t *testing.T) {
    m := NewMemory()
    seedShelters(t, m)
    ctx := context.Background()

    got, err := m.GetSheltersByName(ctx, "t1", "", []string{"Kita Gym", "Minami School"})
    require.NoError(t, err)
    require.Len(t, got, 2)
    assert.Equal(t, "Kita Gym", got[0].Name)
    assert.Equal(t, "Minami School", got[1].Name)

    _, err = m.GetSheltersByName(ctx, "t1", "", []string{"Community Center"})
    require.ErrorIs(t, err, ErrAmbiguous)

    got, err = m.GetSheltersByName(ctx, "t1", "Minami", []string{"Community Center"})
    require.NoError(t, err)
    assert.Equal(t, "Minami", got[0].District)

    _, err = m.GetSheltersByName(ctx, "t1", "", []string{"Nowhere"})
    require.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySolverSettings(t *testing.T) {
    m := NewMemory()
    ctx := context.Background()
    s, err := m.GetSolverSettings(ctx, "t1")
    require.NoError(t, err)
    assert.Nil(t, s)

    workers := 2
    require.NoError(t, m.SaveSolverSettings(ctx, "t1", model.SolverSettings{Workers: &workers}))
    s, err = m.GetSolverSettings(ctx, "t1")
    require.NoError(t, err)
    require.NotNil(t, s)
    assert.Equal(t, 2, *s.Workers)
    require.NoError(t, m.Ping(ctx))
}

func TestNearCellsClampsPrecision(t *testing.T) {
    cells := nearCells(model.GeoPoint{Lat: 33.85, Lng: 132.75}, 0)
    require.Len(t, cells, 9)
    assert.Len(t, cells[0], int(defaultNearPrecision))
    assert.Len(t, nearCells(model.GeoPoint{Lat: 33.85, Lng: 132.75}, 20)[0], GeohashChars)
}

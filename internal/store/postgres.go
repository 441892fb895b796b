package store

import (
    "context"
    "database/sql"
    "embed"
    "encoding/json"
    "errors"
    "fmt"
    "io/fs"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "shelterroute/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
    db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    db.SetMaxOpenConns(10)
    db.SetMaxIdleConns(5)
    db.SetConnMaxLifetime(30 * time.Minute)
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
    files, err := fs.Glob(migrations, "migrations/*.sql")
    if err != nil { return err }
    sort.Strings(files)
    for _, f := range files {
        b, err := migrations.ReadFile(f)
        if err != nil { return err }
        if _, err := p.db.ExecContext(ctx, string(b)); err != nil {
            return fmt.Errorf("migrate %s: %w", f, err)
        }
    }
    return nil
}

// CreateShelters inserts shelters. Dedup by (tenant_id, district, name).
func (p *Postgres) CreateShelters(ctx context.Context, tenantID string, in []model.ShelterIn) (int, int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    created, skipped := 0, 0
    for _, s := range in {
        res, err := tx.ExecContext(ctx, `INSERT INTO shelters (id, tenant_id, name, district, address, capacity, lat, lng, geohash)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (tenant_id, district, name) DO NOTHING`,
            uuid.New(), tenantID, s.Name, s.District, s.Address, s.Capacity, s.Location.Lat, s.Location.Lng, shelterGeohash(s.Location))
        if err != nil { return 0, 0, err }
        if n, _ := res.RowsAffected(); n == 0 { skipped++ } else { created++ }
    }
    if err := tx.Commit(); err != nil { return 0, 0, err }
    return created, skipped, nil
}

const shelterCols = `id::text, name, district, address, capacity, lat, lng, geohash, created_at`

func scanShelter(rows *sql.Rows) (model.Shelter, error) {
    var s model.Shelter
    err := rows.Scan(&s.ID, &s.Name, &s.District, &s.Address, &s.Capacity, &s.Location.Lat, &s.Location.Lng, &s.Geohash, &s.CreatedAt)
    return s, err
}

func (p *Postgres) ListShelters(ctx context.Context, tenantID string, q model.ShelterQuery) ([]model.Shelter, string, error) {
    limit := clampLimit(q.Limit)
    base := `SELECT ` + shelterCols + ` FROM shelters WHERE tenant_id=$1`
    args := []any{tenantID}
    idx := 2
    if q.District != "" { base += ` AND district=$` + fmt.Sprint(idx); args = append(args, q.District); idx++ }
    if q.Near != nil {
        cells := nearCells(*q.Near, q.Precision)
        base += fmt.Sprintf(` AND left(geohash, $%d) = ANY($%d)`, idx, idx+1)
        args = append(args, len(cells[0]), cells)
        idx += 2
    }
    if q.Cursor != "" { base += ` AND id::text > $` + fmt.Sprint(idx); args = append(args, q.Cursor); idx++ }
    base += ` ORDER BY id::text LIMIT $` + fmt.Sprint(idx)
    args = append(args, limit+1)

    rows, err := p.db.QueryContext(ctx, base, args...)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Shelter{}
    for rows.Next() {
        s, err := scanShelter(rows)
        if err != nil { return nil, "", err }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) > limit {
        out = out[:limit]
        next = out[limit-1].ID
    }
    return out, next, nil
}

func (p *Postgres) GetSheltersByName(ctx context.Context, tenantID, district string, names []string) ([]model.Shelter, error) {
    if len(names) == 0 { return []model.Shelter{}, nil }
    q := `SELECT ` + shelterCols + ` FROM shelters WHERE tenant_id=$1 AND name = ANY($2)`
    args := []any{tenantID, names}
    if district != "" { q += ` AND district=$3`; args = append(args, district) }
    rows, err := p.db.QueryContext(ctx, q, args...)
    if err != nil { return nil, err }
    defer rows.Close()
    byName := map[string][]model.Shelter{}
    for rows.Next() {
        s, err := scanShelter(rows)
        if err != nil { return nil, err }
        byName[s.Name] = append(byName[s.Name], s)
    }
    if err := rows.Err(); err != nil { return nil, err }
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

func (p *Postgres) ListDistricts(ctx context.Context, tenantID string) ([]model.District, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT district, count(*) FROM shelters WHERE tenant_id=$1 GROUP BY district ORDER BY district`, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.District{}
    for rows.Next() {
        var d model.District
        if err := rows.Scan(&d.Name, &d.Shelters); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) GetSolverSettings(ctx context.Context, tenantID string) (*model.SolverSettings, error) {
    row := p.db.QueryRowContext(ctx, `SELECT settings FROM solver_settings WHERE tenant_id=$1`, tenantID)
    var js []byte
    if err := row.Scan(&js); err != nil {
        if errors.Is(err, sql.ErrNoRows) { return nil, nil }
        return nil, err
    }
    var s model.SolverSettings
    if err := json.Unmarshal(js, &s); err != nil { return nil, err }
    return &s, nil
}

func (p *Postgres) SaveSolverSettings(ctx context.Context, tenantID string, s model.SolverSettings) error {
    js, err := json.Marshal(s)
    if err != nil { return err }
    _, err = p.db.ExecContext(ctx, `INSERT INTO solver_settings (tenant_id, settings, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET settings=$2, updated_at=now()`, tenantID, string(js))
    return err
}

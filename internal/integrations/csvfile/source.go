// Package csvfile reads shelter catalogs exported as CSV. Headers may use the
// English column names or the Japanese ones found in municipal shelter lists.
package csvfile

import (
    "context"
    "encoding/csv"
    "errors"
    "fmt"
    "io"
    "math"
    "os"
    "strconv"
    "strings"

    "shelterroute/internal/integrations"
    "shelterroute/internal/model"
)

var ErrMissingColumn = errors.New("csvfile: missing column")

const (
    colName     = "name"
    colDistrict = "district"
    colLat      = "lat"
    colLng      = "lng"
    colAddress  = "address"
    colCapacity = "capacity"
)

var aliases = map[string]string{
    "name": colName, "shelter": colName, "避難所": colName, "施設名": colName,
    "district": colDistrict, "学校区": colDistrict, "a32_004": colDistrict,
    "lat": colLat, "latitude": colLat, "緯度": colLat,
    "lng": colLng, "lon": colLng, "longitude": colLng, "経度": colLng,
    "address": colAddress, "住所": colAddress, "所在地": colAddress,
    "capacity": colCapacity, "収容人数": colCapacity,
}

var required = []string{colName, colDistrict, colLat, colLng}

// Source reads a CSV document on every Fetch.
type Source struct {
    name string
    open func() (io.ReadCloser, error)
}

func FromFile(path string) *Source {
    return &Source{name: "csv:" + path, open: func() (io.ReadCloser, error) { return os.Open(path) }}
}

// FromReader wraps r. The reader is consumed by the first Fetch.
func FromReader(name string, r io.Reader) *Source {
    return &Source{name: name, open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil }}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Fetch(ctx context.Context) (integrations.Batch, error) {
    rc, err := s.open()
    if err != nil {
        return integrations.Batch{}, err
    }
    defer rc.Close()
    return Parse(ctx, rc)
}

// Parse reads a header row and then one shelter per row. Rows with a blank
// name or district, or with bad coordinates, are rejected. Repeats of a
// (district, name) pair are dropped.
func Parse(ctx context.Context, r io.Reader) (integrations.Batch, error) {
    b := integrations.Batch{Shelters: []model.ShelterIn{}, Rejected: []integrations.Rejection{}}
    cr := csv.NewReader(r)
    cr.FieldsPerRecord = -1
    cr.TrimLeadingSpace = true
    cr.ReuseRecord = true

    header, err := cr.Read()
    if err != nil {
        if errors.Is(err, io.EOF) {
            return b, fmt.Errorf("%w: empty file", ErrMissingColumn)
        }
        return b, err
    }
    idx := map[string]int{}
    for i, h := range header {
        h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
        if col, ok := aliases[strings.ToLower(h)]; ok {
            if _, dup := idx[col]; !dup {
                idx[col] = i
            }
        }
    }
    for _, c := range required {
        if _, ok := idx[c]; !ok {
            return b, fmt.Errorf("%w: %s", ErrMissingColumn, c)
        }
    }

    seen := map[string]bool{}
    for {
        if err := ctx.Err(); err != nil {
            return b, err
        }
        rec, err := cr.Read()
        if errors.Is(err, io.EOF) {
            return b, nil
        }
        if err != nil {
            var pe *csv.ParseError
            if errors.As(err, &pe) {
                b.Rejected = append(b.Rejected, integrations.Rejection{Line: pe.StartLine, Reason: pe.Err.Error()})
                continue
            }
            return b, err
        }
        field := func(col string) string {
            i, ok := idx[col]
            if !ok || i >= len(rec) {
                return ""
            }
            return strings.TrimSpace(rec[i])
        }
        if blank(rec) {
            continue
        }
        line, _ := cr.FieldPos(0)
        sh, reason := row(field)
        if reason != "" {
            b.Rejected = append(b.Rejected, integrations.Rejection{Line: line, Reason: reason})
            continue
        }
        key := sh.District + "\x00" + sh.Name
        if seen[key] {
            b.Duplicates++
            continue
        }
        seen[key] = true
        b.Shelters = append(b.Shelters, sh)
        b.Lines = append(b.Lines, line)
    }
}

func row(field func(string) string) (model.ShelterIn, string) {
    sh := model.ShelterIn{Name: field(colName), District: field(colDistrict), Address: field(colAddress)}
    if sh.Name == "" {
        return sh, "name is empty"
    }
    if sh.District == "" {
        return sh, "district is empty"
    }
    lat, err := strconv.ParseFloat(field(colLat), 64)
    if err != nil || math.IsNaN(lat) || lat < -90 || lat > 90 {
        return sh, fmt.Sprintf("bad latitude %q", field(colLat))
    }
    lng, err := strconv.ParseFloat(field(colLng), 64)
    if err != nil || math.IsNaN(lng) || lng < -180 || lng > 180 {
        return sh, fmt.Sprintf("bad longitude %q", field(colLng))
    }
    sh.Location = model.GeoPoint{Lat: lat, Lng: lng}
    if c := field(colCapacity); c != "" {
        n, err := strconv.Atoi(c)
        if err != nil || n < 0 {
            return sh, fmt.Sprintf("bad capacity %q", c)
        }
        sh.Capacity = n
    }
    return sh, ""
}

func blank(rec []string) bool {
    for _, f := range rec {
        if strings.TrimSpace(f) != "" {
            return false
        }
    }
    return true
}

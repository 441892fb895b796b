// Package integrations pulls shelter catalogs from external sources into the store.
package integrations

import (
    "context"
    "fmt"

    "github.com/go-playground/validator/v10"

    "shelterroute/internal/model"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ShelterSource yields one batch of shelters per Fetch.
type ShelterSource interface {
    Name() string
    Fetch(ctx context.Context) (Batch, error)
}

type Batch struct {
    Shelters   []model.ShelterIn
    Lines      []int // source line of each shelter; may be nil
    Rejected   []Rejection
    Duplicates int // rows repeating an earlier (district, name)
}

// Rejection is a source row that could not be turned into a shelter.
type Rejection struct {
    Line   int    `json:"line"`
    Reason string `json:"reason"`
}

// ShelterWriter is the part of the store an import needs.
type ShelterWriter interface {
    CreateShelters(ctx context.Context, tenantID string, in []model.ShelterIn) (int, int, error)
}

type Result struct {
    Source     string      `json:"source"`
    Created    int         `json:"created"`
    Skipped    int         `json:"skipped"`
    Duplicates int         `json:"duplicates"`
    Rejected   []Rejection `json:"rejected"`
}

// Import fetches one batch from src and stores its shelters for tenantID.
// Shelters already in the catalog are counted as skipped. Shelters failing
// the same field rules as the JSON API are rejected, not stored.
func Import(ctx context.Context, src ShelterSource, w ShelterWriter, tenantID string) (Result, error) {
    res := Result{Source: src.Name(), Rejected: []Rejection{}}
    b, err := src.Fetch(ctx)
    if err != nil {
        return res, fmt.Errorf("%s: fetch: %w", src.Name(), err)
    }
    res.Duplicates = b.Duplicates
    if b.Rejected != nil {
        res.Rejected = b.Rejected
    }
    valid := make([]model.ShelterIn, 0, len(b.Shelters))
    for i, sh := range b.Shelters {
        if err := validate.Struct(sh); err != nil {
            line := 0
            if i < len(b.Lines) {
                line = b.Lines[i]
            }
            res.Rejected = append(res.Rejected, Rejection{Line: line, Reason: err.Error()})
            continue
        }
        valid = append(valid, sh)
    }
    if len(valid) == 0 {
        return res, nil
    }
    res.Created, res.Skipped, err = w.CreateShelters(ctx, tenantID, valid)
    if err != nil {
        return res, fmt.Errorf("%s: store: %w", src.Name(), err)
    }
    return res, nil
}

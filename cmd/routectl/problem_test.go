package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterroute/internal/model"
)

const squareYAML = `
origin: {lat: 0, lng: 0}
vehicles: 3
time_budget: 2s
seed: 7
destinations:
  - name: a
    location: {lat: 0, lng: 1}
  - name: b
    location: {lat: 1, lng: 0}
  - name: c
    location: {lat: 1, lng: 1}
`

func TestReadProblem(t *testing.T) {
	p, err := readProblem(strings.NewReader(squareYAML))
	require.NoError(t, err)
	req := p.request()
	assert.Equal(t, 3, req.Vehicles)
	assert.Equal(t, 2000, req.TimeBudgetMs)
	assert.Equal(t, int64(7), req.Seed)
	require.Len(t, req.Destinations, 3)
	assert.Equal(t, "c", req.Destinations[2].Name)
	assert.Equal(t, model.GeoPoint{Lat: 1, Lng: 1}, req.Destinations[2].Location)

	_, err = readProblem(strings.NewReader("vehicles: 0\n"))
	require.Error(t, err)
	_, err = readProblem(strings.NewReader("vehicles: 1\nbogus: true\n"))
	require.Error(t, err)
}

func TestRunSolve(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "problem.yaml")
	require.NoError(t, os.WriteFile(path, []byte(squareYAML), 0o600))

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runSolve(ctx, []string{"-f", path}, &out))

	var resp model.SolveResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	assert.Len(t, resp.Routes, 3)
	assert.InDelta(t, 400.0, resp.Metrics.TotalDistanceKm, 1e-9)
}

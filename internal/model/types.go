package model

import "time"

// Wire types shared by the API, planner and store.

type GeoPoint struct {
    Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
    Lng float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// Destination is a stop to visit. Name is display-only.
type Destination struct {
    Name     string   `json:"name,omitempty" yaml:"name" validate:"max=200"`
    Location GeoPoint `json:"location" yaml:"location"`
}

// SolveRequest is the immutable input of one solve. Destinations and
// ShelterNames may be combined; named shelters are appended after the raw
// destinations in the order given.
type SolveRequest struct {
    SolveID       string        `json:"solveId,omitempty" validate:"omitempty,uuid"`
    Origin        *GeoPoint     `json:"origin,omitempty"`
    Destinations  []Destination `json:"destinations,omitempty" validate:"max=1000,dive"`
    ShelterNames  []string      `json:"shelterNames,omitempty" validate:"max=1000,dive,required,max=200"`
    District      string        `json:"district,omitempty" validate:"max=100"`
    Vehicles      int           `json:"vehicles" validate:"required,min=1"`
    TimeBudgetMs  int           `json:"timeBudgetMs,omitempty" validate:"gte=0,lte=600000"`
    Workers       int           `json:"workers,omitempty" validate:"gte=0,lte=16"`
    Metaheuristic string        `json:"metaheuristic,omitempty" validate:"omitempty,oneof=guided none"`
    SpreadFleet   *bool         `json:"spreadFleet,omitempty"`
    OmitIdle      *bool         `json:"omitIdle,omitempty"`
    Seed          int64         `json:"seed,omitempty"`
    // CallbackURL receives a signed POST when the solve completes or fails.
    CallbackURL string `json:"callbackUrl,omitempty" validate:"omitempty,http_url,max=2000"`
}

type Stop struct {
    Index    int      `json:"index"`
    Name     string   `json:"name,omitempty"`
    Location GeoPoint `json:"location"`
}

// VehicleRoute is one vehicle's tour. Path is framed by the origin.
type VehicleRoute struct {
    Vehicle           int        `json:"vehicle"`
    Stops             []Stop     `json:"stops"`
    Path              []GeoPoint `json:"path"`
    StopCount         int        `json:"stopCount"`
    DistanceKm        float64    `json:"distanceKm"`
    TravelTimeMinutes float64    `json:"travelTimeMinutes"`
    TotalTimeMinutes  float64    `json:"totalTimeMinutes"`
}

type Metrics struct {
    TotalDistanceKm    float64 `json:"totalDistanceKm"`
    TotalTimeMinutes   float64 `json:"totalTimeMinutes"`
    TravelTimeMinutes  float64 `json:"travelTimeMinutes"`
    ServiceTimeMinutes float64 `json:"serviceTimeMinutes"`
    StopCount          int     `json:"stopCount"`
    VehiclesUsed       int     `json:"vehiclesUsed"`
}

type SearchStats struct {
    InitialCost   int64  `json:"initialCost"`
    BestCost      int64  `json:"bestCost"`
    Iterations    int    `json:"iterations"`
    PenaltyRounds int    `json:"penaltyRounds"`
    Improvements  int    `json:"improvements"`
    Workers       int    `json:"workers"`
    ElapsedMs     int64  `json:"elapsedMs"`
    StopReason    string `json:"stopReason"`
}

type SolveResponse struct {
    SolveID  string         `json:"solveId"`
    Origin   GeoPoint       `json:"origin"`
    Routes   [][]GeoPoint   `json:"routes"`
    Vehicles []VehicleRoute `json:"vehicles"`
    Metrics  Metrics        `json:"metrics"`
    Stats    SearchStats    `json:"stats"`
}

// Shelter is a catalog entry that can be named in a solve request.
type Shelter struct {
    ID        string    `json:"id"`
    Name      string    `json:"name"`
    District  string    `json:"district"`
    Address   string    `json:"address,omitempty"`
    Capacity  int       `json:"capacity,omitempty"`
    Location  GeoPoint  `json:"location"`
    Geohash   string    `json:"geohash"`
    CreatedAt time.Time `json:"createdAt"`
}

type ShelterIn struct {
    Name     string   `json:"name" yaml:"name" validate:"required,max=200"`
    District string   `json:"district" yaml:"district" validate:"required,max=100"`
    Address  string   `json:"address,omitempty" yaml:"address" validate:"max=500"`
    Capacity int      `json:"capacity,omitempty" yaml:"capacity" validate:"gte=0"`
    Location GeoPoint `json:"location" yaml:"location"`
}

// ShelterQuery filters the catalog. Near selects shelters in the geohash
// cell of the point at Precision and its eight neighbours.
type ShelterQuery struct {
    District  string
    Near      *GeoPoint
    Precision uint
    Cursor    string
    Limit     int
}

type District struct {
    Name     string `json:"name"`
    Shelters int    `json:"shelters"`
}

// SolverSettings are per-tenant overrides of the process solver defaults.
// Nil fields inherit.
type SolverSettings struct {
    TimeBudgetMs   *int      `json:"timeBudgetMs,omitempty" validate:"omitempty,min=1,max=600000"`
    Workers        *int      `json:"workers,omitempty" validate:"omitempty,min=1,max=16"`
    DispatchCost   *int64    `json:"dispatchCost,omitempty" validate:"omitempty,gte=0"`
    Metaheuristic  *string   `json:"metaheuristic,omitempty" validate:"omitempty,oneof=guided none"`
    Alpha          *float64  `json:"alpha,omitempty" validate:"omitempty,gt=0,lte=10"`
    MaxStallRounds *int      `json:"maxStallRounds,omitempty" validate:"omitempty,min=1"`
    SpreadFleet    *bool     `json:"spreadFleet,omitempty"`
    OmitIdle       *bool     `json:"omitIdle,omitempty"`
    SpeedKmPerMin  *float64  `json:"speedKmPerMin,omitempty" validate:"omitempty,gt=0"`
    ServiceMinutes *float64  `json:"serviceMinutes,omitempty" validate:"omitempty,gte=0"`
    MaxVehicles    *int      `json:"maxVehicles,omitempty" validate:"omitempty,min=1,max=1000"`
    DefaultOrigin  *GeoPoint `json:"defaultOrigin,omitempty"`
}

// SolveRecord is the telemetry kept for a recent solve. Routes are not kept.
type SolveRecord struct {
    SolveID         string    `json:"solveId"`
    Status          string    `json:"status"`
    Error           string    `json:"error,omitempty"`
    Destinations    int       `json:"destinations"`
    Vehicles        int       `json:"vehicles"`
    VehiclesUsed    int       `json:"vehiclesUsed"`
    TotalDistanceKm float64   `json:"totalDistanceKm"`
    BestCost        int64     `json:"bestCost"`
    Iterations      int       `json:"iterations"`
    StopReason      string    `json:"stopReason,omitempty"`
    ElapsedMs       int64     `json:"elapsedMs"`
    CreatedAt       time.Time `json:"createdAt"`
}

package main

import (
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"shelterroute/internal/model"
)

// problem is the YAML file format accepted by routectl.
type problem struct {
	Origin        *model.GeoPoint     `yaml:"origin"`
	Vehicles      int                 `yaml:"vehicles"`
	TimeBudget    time.Duration       `yaml:"time_budget"`
	Workers       int                 `yaml:"workers"`
	Metaheuristic string              `yaml:"metaheuristic"`
	SpreadFleet   *bool               `yaml:"spread_fleet"`
	OmitIdle      *bool               `yaml:"omit_idle"`
	Seed          int64               `yaml:"seed"`
	Destinations  []model.Destination `yaml:"destinations"`
	ShelterNames  []string            `yaml:"shelter_names"`
	District      string              `yaml:"district"`
}

func readProblem(r io.Reader) (problem, error) {
	var p problem
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("parse problem: %w", err)
	}
	if p.Vehicles < 1 {
		return p, fmt.Errorf("vehicles must be at least 1")
	}
	return p, nil
}

func (p problem) request() model.SolveRequest {
	return model.SolveRequest{
		Origin:        p.Origin,
		Destinations:  p.Destinations,
		ShelterNames:  p.ShelterNames,
		District:      p.District,
		Vehicles:      p.Vehicles,
		TimeBudgetMs:  int(p.TimeBudget.Milliseconds()),
		Workers:       p.Workers,
		Metaheuristic: p.Metaheuristic,
		SpreadFleet:   p.SpreadFleet,
		OmitIdle:      p.OmitIdle,
		Seed:          p.Seed,
	}
}

package domain

import (
	"fmt"
	"strings"
	"time"
)

type FuelType string

const (
	FuelMS  FuelType = "MS"
	FuelMSP FuelType = "MSP"
	FuelHSD FuelType = "HSD"
	FuelCNG FuelType = "CNG"
)

func AllFuelTypes() []FuelType {
	return []FuelType{FuelMS, FuelMSP, FuelHSD, FuelCNG}
}

func ParseFuelType(raw string) (FuelType, error) {
	switch FuelType(strings.ToUpper(strings.TrimSpace(raw))) {
	case FuelMS:
		return FuelMS, nil
	case FuelMSP:
		return FuelMSP, nil
	case FuelHSD:
		return FuelHSD, nil
	case FuelCNG:
		return FuelCNG, nil
	}
	return "", fmt.Errorf("unknown fuel type %q", raw)
}

// InferFuelType resolves a fuel type from a nozzle name. It is used only when
// building the checkpoint registry, never per reconciliation run. MSP is
// checked before MS so "MSP-Auto" does not collide with the MS prefix.
func InferFuelType(nozzle string) (FuelType, error) {
	name := strings.TrimSpace(nozzle)
	switch {
	case strings.Contains(name, "HSD"):
		return FuelHSD, nil
	case strings.Contains(name, "MSP"):
		return FuelMSP, nil
	case strings.Contains(name, "MS"):
		return FuelMS, nil
	case strings.Contains(name, "Nozzle"):
		return FuelCNG, nil
	}
	return "", fmt.Errorf("cannot infer fuel type for nozzle %q", nozzle)
}

// RateTable maps a fuel type to its unit price in paise per liter.
type RateTable map[FuelType]int64

// Resolve returns the price for the given fuel type, falling back to the
// injected default table when the row is missing. A run must never fail merely
// because a rate row is momentarily absent.
func (t RateTable) Resolve(fuel FuelType, fallback RateTable) int64 {
	if t != nil {
		if rate, ok := t[fuel]; ok && rate > 0 {
			return rate
		}
	}
	return fallback[fuel]
}

// RateSet is one persisted snapshot of the rate table. The most recently
// written set is authoritative; older sets are retained but never read back.
type RateSet struct {
	ID        string    `json:"id"`
	Rates     RateTable `json:"rates"`
	UpdatedBy string    `json:"updated_by"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Nozzle struct {
	Name     string   `json:"name" yaml:"name"`
	FuelType FuelType `json:"fuel_type" yaml:"fuel"`
}

// Checkpoint is a physical dispensing point owning a fixed set of nozzles.
type Checkpoint struct {
	Name    string   `json:"name" yaml:"name"`
	Nozzles []Nozzle `json:"nozzles" yaml:"nozzles"`
}

package checkpoint

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"pumpdesk/backend/internal/domain"
)

// Registry is the validated nozzle layout of the station: every checkpoint's
// nozzle set with an explicit nozzle-to-fuel-type mapping. It is built once at
// startup; reconciliation never falls back to string matching at runtime.
type Registry struct {
	checkpoints []domain.Checkpoint
	byName      map[string]domain.Checkpoint
	fuelByNozzle map[string]domain.FuelType
}

type registryFile struct {
	Checkpoints []domain.Checkpoint `yaml:"checkpoints"`
}

// New builds a registry from the given checkpoints. Nozzle entries without an
// explicit fuel type are resolved by name inference once, here. Duplicate
// nozzle names, empty checkpoints, and un-inferable nozzles are rejected.
func New(checkpoints []domain.Checkpoint) (*Registry, error) {
	if len(checkpoints) == 0 {
		return nil, fmt.Errorf("at least one checkpoint required")
	}

	reg := &Registry{
		checkpoints:  make([]domain.Checkpoint, 0, len(checkpoints)),
		byName:       make(map[string]domain.Checkpoint, len(checkpoints)),
		fuelByNozzle: make(map[string]domain.FuelType),
	}

	for _, cp := range checkpoints {
		name := strings.TrimSpace(cp.Name)
		if name == "" {
			return nil, fmt.Errorf("checkpoint with empty name")
		}
		if _, exists := reg.byName[name]; exists {
			return nil, fmt.Errorf("duplicate checkpoint %q", name)
		}
		if len(cp.Nozzles) == 0 {
			return nil, fmt.Errorf("checkpoint %q has no nozzles", name)
		}

		resolved := domain.Checkpoint{Name: name, Nozzles: make([]domain.Nozzle, 0, len(cp.Nozzles))}
		for _, nz := range cp.Nozzles {
			nozzleName := strings.TrimSpace(nz.Name)
			if nozzleName == "" {
				return nil, fmt.Errorf("checkpoint %q has a nozzle with empty name", name)
			}
			if _, exists := reg.fuelByNozzle[nozzleName]; exists {
				return nil, fmt.Errorf("nozzle %q appears in more than one checkpoint", nozzleName)
			}

			fuel := nz.FuelType
			if fuel == "" {
				inferred, err := domain.InferFuelType(nozzleName)
				if err != nil {
					return nil, fmt.Errorf("checkpoint %q: %w", name, err)
				}
				fuel = inferred
			} else {
				parsed, err := domain.ParseFuelType(string(fuel))
				if err != nil {
					return nil, fmt.Errorf("checkpoint %q nozzle %q: %w", name, nozzleName, err)
				}
				fuel = parsed
			}

			reg.fuelByNozzle[nozzleName] = fuel
			resolved.Nozzles = append(resolved.Nozzles, domain.Nozzle{Name: nozzleName, FuelType: fuel})
		}

		reg.checkpoints = append(reg.checkpoints, resolved)
		reg.byName[name] = resolved
	}

	return reg, nil
}

// LoadFile reads a checkpoint layout from a YAML file.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoints file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse checkpoints file: %w", err)
	}

	return New(file.Checkpoints)
}

// Default returns the built-in station layout used when no checkpoints file
// is configured.
func Default() *Registry {
	reg, err := New([]domain.Checkpoint{
		{Name: "Front", Nozzles: []domain.Nozzle{{Name: "HSD1"}, {Name: "HSD2"}}},
		{Name: "Central", Nozzles: []domain.Nozzle{{Name: "MS"}, {Name: "HSD"}}},
		{Name: "Auto Point", Nozzles: []domain.Nozzle{{Name: "MS-Auto"}, {Name: "MSP-Auto"}}},
		{Name: "CNG", Nozzles: []domain.Nozzle{{Name: "Nozzle 1"}, {Name: "Nozzle 2"}, {Name: "Nozzle 3"}, {Name: "Nozzle 4"}}},
	})
	if err != nil {
		// The built-in layout is static; a failure here is a programming error.
		panic(err)
	}
	return reg
}

// Checkpoints returns the station layout in declaration order.
func (r *Registry) Checkpoints() []domain.Checkpoint {
	out := make([]domain.Checkpoint, len(r.checkpoints))
	copy(out, r.checkpoints)
	return out
}

// Checkpoint looks up a checkpoint by name.
func (r *Registry) Checkpoint(name string) (domain.Checkpoint, bool) {
	cp, ok := r.byName[strings.TrimSpace(name)]
	return cp, ok
}

// FuelTypeFor resolves the fuel type of a registered nozzle. Resolving the
// same nozzle twice always yields the same result.
func (r *Registry) FuelTypeFor(nozzle string) (domain.FuelType, bool) {
	fuel, ok := r.fuelByNozzle[strings.TrimSpace(nozzle)]
	return fuel, ok
}

// Owns reports whether the named checkpoint owns the given nozzle.
func (r *Registry) Owns(checkpointName, nozzle string) bool {
	cp, ok := r.Checkpoint(checkpointName)
	if !ok {
		return false
	}
	for _, nz := range cp.Nozzles {
		if nz.Name == strings.TrimSpace(nozzle) {
			return true
		}
	}
	return false
}

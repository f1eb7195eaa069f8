package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"pumpdesk/backend/internal/domain"
)

func TestDefaultLayout(t *testing.T) {
	reg := Default()

	checkpoints := reg.Checkpoints()
	if len(checkpoints) != 4 {
		t.Fatalf("expected 4 checkpoints, got %d", len(checkpoints))
	}

	cases := []struct {
		nozzle string
		fuel   domain.FuelType
	}{
		{"HSD1", domain.FuelHSD},
		{"HSD2", domain.FuelHSD},
		{"MS", domain.FuelMS},
		{"HSD", domain.FuelHSD},
		{"MS-Auto", domain.FuelMS},
		{"MSP-Auto", domain.FuelMSP},
		{"Nozzle 1", domain.FuelCNG},
		{"Nozzle 4", domain.FuelCNG},
	}
	for _, tc := range cases {
		fuel, ok := reg.FuelTypeFor(tc.nozzle)
		if !ok {
			t.Errorf("nozzle %q not registered", tc.nozzle)
			continue
		}
		if fuel != tc.fuel {
			t.Errorf("nozzle %q resolved %s, want %s", tc.nozzle, fuel, tc.fuel)
		}
	}

	if !reg.Owns("Front", "HSD1") {
		t.Fatal("Front should own HSD1")
	}
	if reg.Owns("Front", "MS") {
		t.Fatal("Front should not own MS")
	}
}

func TestNewRejectsDuplicateNozzles(t *testing.T) {
	_, err := New([]domain.Checkpoint{
		{Name: "A", Nozzles: []domain.Nozzle{{Name: "MS"}}},
		{Name: "B", Nozzles: []domain.Nozzle{{Name: "MS"}}},
	})
	if err == nil {
		t.Fatal("expected error for nozzle registered in two checkpoints")
	}
}

func TestNewRejectsEmptyAndUnInferable(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty layout")
	}
	if _, err := New([]domain.Checkpoint{{Name: "A"}}); err == nil {
		t.Fatal("expected error for checkpoint without nozzles")
	}
	_, err := New([]domain.Checkpoint{
		{Name: "A", Nozzles: []domain.Nozzle{{Name: "Pump X"}}},
	})
	if err == nil {
		t.Fatal("expected error for un-inferable nozzle without explicit fuel type")
	}
}

func TestNewHonorsExplicitFuelType(t *testing.T) {
	reg, err := New([]domain.Checkpoint{
		{Name: "A", Nozzles: []domain.Nozzle{{Name: "Pump X", FuelType: "cng"}}},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	fuel, ok := reg.FuelTypeFor("Pump X")
	if !ok || fuel != domain.FuelCNG {
		t.Fatalf("expected CNG for Pump X, got %s ok=%v", fuel, ok)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkpoints.yaml")
	content := `checkpoints:
  - name: Front
    nozzles:
      - name: HSD1
      - name: HSD2
  - name: Island
    nozzles:
      - name: Pump A
        fuel: MS
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if fuel, _ := reg.FuelTypeFor("HSD1"); fuel != domain.FuelHSD {
		t.Fatalf("expected HSD for HSD1, got %s", fuel)
	}
	if fuel, _ := reg.FuelTypeFor("Pump A"); fuel != domain.FuelMS {
		t.Fatalf("expected MS for Pump A, got %s", fuel)
	}
	if _, ok := reg.Checkpoint("Island"); !ok {
		t.Fatal("Island checkpoint missing")
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("checkpoints: [\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

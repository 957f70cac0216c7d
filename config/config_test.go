package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devadigapratham/printfarm/api/models"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Store != StoreMemory || cfg.HTTPAddr != ":8080" || cfg.TickInterval != time.Second || cfg.FleetSize != 10 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestParseRaft(t *testing.T) {
	cfg, err := Parse([]string{
		"-store", "raft", "-id", "node1", "-raft-addr", "127.0.0.1:7000", "-raft-dir", "/tmp/node1",
		"-bootstrap", "-peers", "127.0.0.1:7001, 127.0.0.1:7002", "-tick", "250ms",
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !cfg.Bootstrap || cfg.NodeID != "node1" || cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if len(cfg.Peers) != 2 || cfg.Peers[1] != "127.0.0.1:7002" {
		t.Errorf("peers = %v", cfg.Peers)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"raft without id", []string{"-store", "raft", "-raft-addr", "a:1", "-raft-dir", "d"}},
		{"raft without addr", []string{"-store", "raft", "-id", "n", "-raft-dir", "d"}},
		{"postgres without dsn", []string{"-store", "postgres"}},
		{"unknown store", []string{"-store", "etcd"}},
		{"zero tick", []string{"-tick", "0s"}},
		{"empty fleet", []string{"-fleet-size", "0"}},
		{"unknown flag", []string{"-colour"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.args); err == nil {
				t.Errorf("expected an error for %v", tt.args)
			}
		})
	}
}

func TestLoadFleet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	data := `{
		"printers": [
			{"id": 1, "name": "P1", "consumable_kind": "PLA", "consumable_level": 100},
			{"id": 2, "name": "P2", "status": "Maintenance", "consumable_kind": "TPU", "consumable_level": 40}
		],
		"estimates": {"Benchy": {"estimated_duration": "45m", "consumable_required": 2.5}}
	}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	fleet, err := LoadFleet(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(fleet.Printers) != 2 {
		t.Fatalf("printers = %d, want 2", len(fleet.Printers))
	}
	if fleet.Printers[0].Status != models.PrinterIdle || fleet.Printers[1].Status != models.PrinterMaintenance {
		t.Errorf("statuses = %s, %s", fleet.Printers[0].Status, fleet.Printers[1].Status)
	}

	e, ok := fleet.Estimates.GetEstimate("benchy")
	if !ok {
		t.Fatal("benchy estimate missing")
	}
	if e.EstimatedDuration != 45*time.Minute || e.ConsumableRequired != 2.5 {
		t.Errorf("estimate = %+v", e)
	}
}

func TestLoadFleetBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.json")
	data := `{"printers": [], "estimates": {"vase": {"estimated_duration": "an hour"}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFleet(path); err == nil {
		t.Error("expected an error for an unparsable duration")
	}
}

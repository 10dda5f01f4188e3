package replay

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadFixture(t *testing.T) {
	path := writeFixture(t, `{
		"description": "basic scenario",
		"blocks_per_epoch": 100,
		"model": {"provider": "local", "name": "hash-embed", "weights_hash": "dev", "dimensions": 32},
		"steps": [
			{"submit": {"ref": "fact", "content": "the reef remembers"}},
			{"block": 50},
			{"sweep": true}
		],
		"expected": [
			{"ref": "fact", "state": "UnderReview"}
		]
	}`)

	f, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Steps) != 3 || f.Steps[0].Submit == nil || f.Steps[1].Block == nil || !f.Steps[2].Sweep {
		t.Fatalf("steps = %+v", f.Steps)
	}
	if f.Model.ToModelID().Dimensions != 32 {
		t.Fatalf("model = %+v", f.Model)
	}
}

func TestLoadFixtureRejectsUnknownRef(t *testing.T) {
	path := writeFixture(t, `{
		"model": {"provider": "local", "name": "m", "weights_hash": "h", "dimensions": 8},
		"steps": [{"submit": {"ref": "a", "content": "x"}}],
		"expected": [{"ref": "ghost", "state": "Hardened"}]
	}`)

	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected unknown ref error")
	}
}

func TestLoadFixtureRejectsUnknownState(t *testing.T) {
	path := writeFixture(t, `{
		"model": {"provider": "local", "name": "m", "weights_hash": "h", "dimensions": 8},
		"steps": [{"submit": {"ref": "a", "content": "x"}}],
		"expected": [{"ref": "a", "state": "Petrified"}]
	}`)

	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected unknown state error")
	}
}

func TestLoadFixtureRejectsAmbiguousStep(t *testing.T) {
	path := writeFixture(t, `{
		"model": {"provider": "local", "name": "m", "weights_hash": "h", "dimensions": 8},
		"steps": [{"submit": {"ref": "a", "content": "x"}, "sweep": true}]
	}`)

	if _, err := LoadFixture(path); err == nil {
		t.Fatal("expected ambiguous step error")
	}
}

func TestLoadFixtureMissingFile(t *testing.T) {
	if _, err := LoadFixture(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected read error")
	}
}

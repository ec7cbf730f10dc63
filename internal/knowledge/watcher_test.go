package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherTables = `
biomarkers:
  - slug: glucosa
    name: Glucose
    unit: mg/dL
    optimal_min: 70
    optimal_max: 95
    lab_min: 60
    lab_max: 110
`

func TestTableWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	if err := os.WriteFile(path, []byte(watcherTables), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Snapshot, 1)
	w, err := NewTableWatcher(path, initial, func(s *Snapshot) {
		select {
		case reloaded <- s:
		default:
		}
	})
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	updated := watcherTables + `
  - slug: tsh
    name: TSH
    unit: mIU/L
    optimal_min: 1.0
    optimal_max: 2.2
    lab_min: 0.4
    lab_max: 4.0
`
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-reloaded:
		if _, ok := snap.Reference("tsh"); !ok {
			t.Fatal("reloaded snapshot should contain the new entry")
		}
		if current := w.Snapshot(); current != snap {
			t.Error("Snapshot() should return the reloaded snapshot")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not reload within 5s")
	}
}

func TestTableWatcherKeepsLastGoodSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	if err := os.WriteFile(path, []byte(watcherTables), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewTableWatcher(path, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("biomarkers: [broken"), 0644); err != nil {
		t.Fatal(err)
	}

	// Give the watcher time to process the event; the broken file must not
	// replace the last good snapshot.
	time.Sleep(1 * time.Second)
	if _, ok := w.Snapshot().Reference("glucosa"); !ok {
		t.Fatal("watcher replaced the last good snapshot with a failed reload")
	}
}

func TestTableWatcherLoadsFinalWriteOfRapidSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	if err := os.WriteFile(path, []byte(watcherTables), 0644); err != nil {
		t.Fatal(err)
	}

	initial, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan *Snapshot, 4)
	w, err := NewTableWatcher(path, initial, func(s *Snapshot) {
		reloaded <- s
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Editors commonly write twice in quick succession. The second write
	// lands well inside the debounce window; it must still be loaded.
	intermediate := watcherTables + `
  - slug: ferritina
    name: Ferritin
    unit: ng/mL
    optimal_min: 50
    optimal_max: 150
    lab_min: 20
    lab_max: 300
`
	final := watcherTables + `
  - slug: tsh
    name: TSH
    unit: mIU/L
    optimal_min: 1.0
    optimal_max: 2.2
    lab_min: 0.4
    lab_max: 4.0
`
	if err := os.WriteFile(path, []byte(intermediate), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(final), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case snap := <-reloaded:
			if _, ok := snap.Reference("tsh"); ok {
				return
			}
			// An earlier reload may have caught the intermediate state;
			// keep waiting for the final one.
		case <-deadline:
			t.Fatal("final write of the rapid sequence was never loaded")
		}
	}
}

func TestTableWatcherStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tables.yaml")
	if err := os.WriteFile(path, []byte(watcherTables), 0644); err != nil {
		t.Fatal(err)
	}
	initial, err := LoadSnapshotFile(path)
	if err != nil {
		t.Fatal(err)
	}

	w, err := NewTableWatcher(path, initial, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop() // second stop must not panic or block
}

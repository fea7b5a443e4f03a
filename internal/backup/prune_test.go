package backup

import (
	"context"
	"testing"
)

func createN(t *testing.T, m *Manager, n int) []*Record {
	t.Helper()
	var out []*Record
	for i := 0; i < n; i++ {
		rec, err := m.Create(context.Background(), "1.0.0", "")
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestManager_Prune(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"a.txt": "a"})
	created := createN(t, m, 5)

	// Prune to keep only 2
	result, err := m.Prune(2)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	if result.Kept != 2 {
		t.Errorf("Prune() Kept = %v, want 2", result.Kept)
	}
	if len(result.Deleted) != 3 {
		t.Errorf("Prune() Deleted count = %v, want 3", len(result.Deleted))
	}

	// The two newest survive
	backups, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("List() after prune = %v, want 2", len(backups))
	}
	if backups[0].ID != created[4].ID || backups[1].ID != created[3].ID {
		t.Errorf("List() after prune = [%s %s], want [%s %s]",
			backups[0].ID, backups[1].ID, created[4].ID, created[3].ID)
	}
}

func TestManager_PruneNoOp(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"a.txt": "a"})
	createN(t, m, 2)

	// Prune with keep=5 (more than we have)
	result, err := m.Prune(5)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	if result.Kept != 2 {
		t.Errorf("Prune() Kept = %v, want 2", result.Kept)
	}
	if len(result.Deleted) != 0 {
		t.Errorf("Prune() Deleted count = %v, want 0", len(result.Deleted))
	}
}

func TestManager_PruneKeepZero(t *testing.T) {
	m, _ := newTestManager(t, map[string]string{"a.txt": "a"})
	createN(t, m, 3)

	// Prune with keep=0 (delete all)
	result, err := m.Prune(0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	if result.Kept != 0 {
		t.Errorf("Prune() Kept = %v, want 0", result.Kept)
	}
	if len(result.Deleted) != 3 {
		t.Errorf("Prune() Deleted count = %v, want 3", len(result.Deleted))
	}

	backups, err := m.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("List() after prune all = %v, want 0", len(backups))
	}
}

func TestManager_PruneNegativeKeep(t *testing.T) {
	m, _ := newTestManager(t, nil)

	if _, err := m.Prune(-1); err == nil {
		t.Error("Prune(-1) expected error for negative keep count")
	}
}

func TestManager_PruneEmpty(t *testing.T) {
	m, _ := newTestManager(t, nil)

	result, err := m.Prune(5)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}

	if result.Kept != 0 {
		t.Errorf("Prune() Kept = %v, want 0", result.Kept)
	}
	if len(result.Deleted) != 0 {
		t.Errorf("Prune() Deleted count = %v, want 0", len(result.Deleted))
	}
}

func TestDefaultKeepCount(t *testing.T) {
	if DefaultKeepCount != 5 {
		t.Errorf("DefaultKeepCount = %v, want 5", DefaultKeepCount)
	}
}

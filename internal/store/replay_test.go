package store

import (
	"fmt"
	"testing"
)

func TestReplayGuard_SeenAndRemember(t *testing.T) {
	rg := NewReplayGuard(100, 0.001)

	if rg.Seen("fp1") {
		t.Error("fresh guard should not have seen anything")
	}

	rg.Remember("fp1")
	if !rg.Seen("fp1") {
		t.Error("remembered fingerprint should be seen")
	}
	if rg.Seen("fp2") {
		t.Error("unremembered fingerprint should not be seen")
	}
	if rg.Size() != 1 {
		t.Errorf("Size() = %d, want 1", rg.Size())
	}

	// Remembering twice is idempotent.
	rg.Remember("fp1")
	if rg.Size() != 1 {
		t.Errorf("Size() after duplicate Remember = %d, want 1", rg.Size())
	}
}

func TestReplayGuard_Forget(t *testing.T) {
	rg := NewReplayGuard(100, 0.001)

	rg.Remember("fp1")
	rg.Forget("fp1")

	if rg.Seen("fp1") {
		t.Error("forgotten fingerprint should not be seen despite bloom residue")
	}
	if rg.Size() != 0 {
		t.Errorf("Size() = %d, want 0", rg.Size())
	}

	// Forgetting a missing fingerprint is a no-op.
	rg.Forget("never-there")
}

func TestReplayGuard_EvictsAtCapacity(t *testing.T) {
	rg := NewReplayGuard(10, 0.001)

	for i := 0; i < 20; i++ {
		rg.Remember(fmt.Sprintf("fp%d", i))
	}

	if rg.Size() > 10 {
		t.Errorf("Size() = %d, want at most capacity 10", rg.Size())
	}
	if !rg.Seen("fp19") {
		t.Error("most recent fingerprint should survive eviction")
	}
}

func TestReplayGuard_Clear(t *testing.T) {
	rg := NewReplayGuard(100, 0.001)

	rg.Remember("fp1")
	rg.Remember("fp2")
	rg.Clear()

	if rg.Size() != 0 {
		t.Errorf("Size() after Clear = %d, want 0", rg.Size())
	}
	if rg.Seen("fp1") || rg.Seen("fp2") {
		t.Error("cleared guard should have seen nothing")
	}
}

package affinity

import "testing"

func TestPinUnsetIsNoOp(t *testing.T) {
	if err := Pin(Unset, "test"); err != nil {
		t.Errorf("Pin(Unset, ...) should be a no-op, got %v", err)
	}
}

func TestPinRejectsOutOfRangeCore(t *testing.T) {
	if err := Pin(1<<20, "test"); err == nil {
		t.Error("expected an error pinning to an absurdly large core id")
	}
}

func TestPinRejectsNegativeNonSentinel(t *testing.T) {
	if err := Pin(-5, "test"); err == nil {
		t.Error("expected an error for a negative core id other than Unset")
	}
}

package checkout

import (
	"testing"

	"github.com/google/uuid"

	pkgerrors "github.com/KTAKhang/SEP490-Group10-sub002/pkg/errors"
)

func TestValidateHolds_NoViolations(t *testing.T) {
	items := []HoldCheck{
		{ProductID: uuid.New(), Requested: 2, Held: 2, Present: true, Live: true},
		{ProductID: uuid.New(), Requested: 1, Held: 3, Present: true, Live: true},
	}
	if err := ValidateHolds(items); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidateHolds_Violations(t *testing.T) {
	missing := uuid.New()
	expired := uuid.New()
	short := uuid.New()
	items := []HoldCheck{
		{ProductID: missing, Requested: 1},
		{ProductID: expired, Requested: 1, Held: 1, Present: true},
		{ProductID: short, Requested: 4, Held: 2, Present: true, Live: true},
		{ProductID: uuid.New(), Requested: 1, Held: 1, Present: true, Live: true},
	}

	err := ValidateHolds(items)
	if err == nil {
		t.Fatal("expected hold violation")
	}
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeHoldExpired {
		t.Fatalf("expected hold expired code, got %v", err)
	}

	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("unexpected details type %T", typed.Details())
	}
	violations, ok := details["violations"].([]HoldViolation)
	if !ok {
		t.Fatalf("unexpected violations type %T", details["violations"])
	}
	if len(violations) != 3 {
		t.Fatalf("expected 3 violations, got %d", len(violations))
	}
	want := map[uuid.UUID]string{missing: HoldMissing, expired: HoldExpired, short: HoldShort}
	for _, v := range violations {
		if want[v.ProductID] != v.Reason {
			t.Fatalf("product %s: expected reason %q, got %q", v.ProductID, want[v.ProductID], v.Reason)
		}
	}
}

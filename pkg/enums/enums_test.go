package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	got, err := ParseOrderStatus("SHIPPING")
	if err != nil || got != OrderStatusShipping {
		t.Fatalf("expected SHIPPING, got %q err=%v", got, err)
	}
	if _, err := ParseOrderStatus("shipping"); err == nil {
		t.Fatalf("expected lowercase status to be rejected")
	}
}

func TestParsePaymentMethodIsCaseInsensitive(t *testing.T) {
	got, err := ParsePaymentMethod(" gateway ")
	if err != nil || got != PaymentMethodGateway {
		t.Fatalf("expected GATEWAY, got %q err=%v", got, err)
	}
	if _, err := ParsePaymentMethod("card"); err == nil {
		t.Fatalf("expected unknown method to be rejected")
	}
}

func TestParseRoleRejectsInternalRoles(t *testing.T) {
	if _, err := ParseRole("gateway"); err == nil {
		t.Fatalf("gateway role must not be accepted from tokens")
	}
	if r, err := ParseRole("ADMIN"); err != nil || r != RoleAdmin {
		t.Fatalf("expected admin, got %q err=%v", r, err)
	}
}

func TestPaymentStatusValidity(t *testing.T) {
	if !PaymentStatusRefundPending.IsValid() {
		t.Fatalf("expected REFUND_PENDING to be valid")
	}
	if PaymentStatus("settled").IsValid() {
		t.Fatalf("expected unknown status to be invalid")
	}
}

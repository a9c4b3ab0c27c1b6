package core

import (
	"errors"
	"testing"
)

func TestDeriveConsentStatus_PartiallyAuthorisedOnlyWhenAllConditionsHold(t *testing.T) {
	for _, multilevel := range []bool{false, true} {
		for _, partial := range []bool{false, true} {
			resp := ScaResponse{
				ScaStatus:             ScaStatusFinalised,
				MultilevelScaRequired: multilevel,
				PartiallyAuthorised:   partial,
			}
			got := DeriveConsentStatus(resp)
			want := ConsentStatusValid
			if multilevel && partial {
				want = ConsentStatusPartiallyAuthorised
			}
			if got != want {
				t.Fatalf("multilevel=%t partial=%t: expected %s, got %s", multilevel, partial, want, got)
			}
		}
	}

	notFinal := ScaResponse{ScaStatus: ScaStatusMethodSelected, MultilevelScaRequired: true, PartiallyAuthorised: true}
	if got := DeriveConsentStatus(notFinal); got == ConsentStatusPartiallyAuthorised {
		t.Fatalf("expected non-finalised state not to report partial authorisation")
	}
	if got := DeriveConsentStatus(ScaResponse{ScaStatus: ScaStatusFailed}); got != ConsentStatusRejected {
		t.Fatalf("expected rejected for failed authorisation, got %s", got)
	}
}

func TestConsentState_RevokedOverridesDerivedStatus(t *testing.T) {
	state := consentState(ScaStatusFinalised)
	state.Revoked = true
	if got := state.ConsentStatus(); got != ConsentStatusRevokedByPSU {
		t.Fatalf("expected revoked status, got %s", got)
	}
}

func TestParseScaStatus_AcceptsRemoteSpelling(t *testing.T) {
	cases := map[string]ScaStatus{
		"psuIdentified":     ScaStatusPSUIdentified,
		"PSUAUTHENTICATED":  ScaStatusPSUAuthenticated,
		"scamethodselected": ScaStatusMethodSelected,
		" finalised ":       ScaStatusFinalised,
		"EXEMPTED":          ScaStatusExempted,
	}
	for raw, want := range cases {
		got, err := ParseScaStatus(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %s, got %s", raw, want, got)
		}
	}
	if _, err := ParseScaStatus("received"); !errors.Is(err, ErrInvalidScaStatus) {
		t.Fatalf("expected invalid status error, got %v", err)
	}
}

func TestScaStatus_TerminalAndExemption(t *testing.T) {
	for _, status := range []ScaStatus{ScaStatusFinalised, ScaStatusExempted, ScaStatusFailed} {
		if !status.IsTerminal() {
			t.Fatalf("expected %s to be terminal", status)
		}
	}
	for _, status := range []ScaStatus{ScaStatusStarted, ScaStatusPSUIdentified, ScaStatusPSUAuthenticated, ScaStatusMethodSelected} {
		if status.IsTerminal() {
			t.Fatalf("expected %s to be non-terminal", status)
		}
	}
	if ScaStatusMethodSelected.IsExemptionCandidate() || ScaStatusFinalised.IsExemptionCandidate() {
		t.Fatalf("unexpected exemption candidate")
	}
}

func TestParsePaymentType(t *testing.T) {
	if got, err := ParsePaymentType("periodic"); err != nil || got != PaymentTypePeriodic {
		t.Fatalf("expected periodic, got %q err=%v", got, err)
	}
	for _, raw := range []string{"", "instant"} {
		if _, err := ParsePaymentType(raw); !errors.Is(err, ErrUnsupportedOperation) {
			t.Fatalf("expected unsupported operation for %q, got %v", raw, err)
		}
	}
}

func TestWithResponse_NeverMutatesReceiver(t *testing.T) {
	original := paymentState(ScaStatusPSUAuthenticated)
	resp := original.Response()
	resp.ScaStatus = ScaStatusMethodSelected
	resp.ScaMethods[0].DisplayName = "changed"
	resp.BearerToken.AccessToken = "other"

	next := original.WithResponse(resp)
	if original.ScaStatus != ScaStatusPSUAuthenticated {
		t.Fatalf("expected receiver status untouched, got %s", original.ScaStatus)
	}
	if original.ScaMethods[0].DisplayName == "changed" {
		t.Fatalf("expected receiver methods untouched")
	}
	if original.BearerToken.AccessToken != "tok-9" {
		t.Fatalf("expected receiver token untouched")
	}
	payment, ok := next.(PaymentState)
	if !ok {
		t.Fatalf("expected payment variant, got %T", next)
	}
	if payment.PaymentType != PaymentTypeSingle || payment.ScaStatus != ScaStatusMethodSelected {
		t.Fatalf("unexpected next state: %#v", payment)
	}
}

package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-psd2-sca/core"
)

type stubAuthorisationService struct {
	initiateFn  func(context.Context, core.InitiateRequest) (core.StepResult, error)
	authoriseFn func(context.Context, core.AuthorisePsuRequest) (core.StepResult, error)
	selectFn    func(context.Context, core.SelectMethodRequest) (core.StepResult, error)
	confirmFn   func(context.Context, core.ConfirmCodeRequest) (core.StepResult, error)
	revokeFn    func(context.Context, core.RevokeConsentRequest) (core.StepResult, error)
}

func (s stubAuthorisationService) InitiateAuthorization(ctx context.Context, req core.InitiateRequest) (core.StepResult, error) {
	return s.initiateFn(ctx, req)
}

func (s stubAuthorisationService) AuthorisePsu(ctx context.Context, req core.AuthorisePsuRequest) (core.StepResult, error) {
	return s.authoriseFn(ctx, req)
}

func (s stubAuthorisationService) SelectScaMethod(ctx context.Context, req core.SelectMethodRequest) (core.StepResult, error) {
	return s.selectFn(ctx, req)
}

func (s stubAuthorisationService) ConfirmCode(ctx context.Context, req core.ConfirmCodeRequest) (core.StepResult, error) {
	return s.confirmFn(ctx, req)
}

func (s stubAuthorisationService) RevokeConsent(ctx context.Context, req core.RevokeConsentRequest) (core.StepResult, error) {
	return s.revokeFn(ctx, req)
}

var consentOp = core.OperationContext{Kind: core.OperationKindConsent, OperationID: "consent-1"}

func TestInitiateAuthorisationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.StepResult{Status: core.ScaStatusStarted, Blob: []byte("blob-1"), OperationInitiated: true}
	called := false
	svc := stubAuthorisationService{
		initiateFn: func(_ context.Context, req core.InitiateRequest) (core.StepResult, error) {
			called = true
			if req.Operation.OperationID != "consent-1" {
				t.Fatalf("unexpected operation %#v", req.Operation)
			}
			return expected, nil
		},
	}

	cmd := NewInitiateAuthorisationCommand(svc)
	collector := gocmd.NewResult[core.StepResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, InitiateAuthorisationMessage{Request: core.InitiateRequest{Operation: consentOp}}); err != nil {
		t.Fatalf("execute initiate: %v", err)
	}
	if !called {
		t.Fatalf("expected initiate service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Status != core.ScaStatusStarted || string(result.Blob) != "blob-1" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestConfirmCodeCommand_StoresResultOnFailure(t *testing.T) {
	failure := core.NewScaError(core.KindRemoteUnavailable, "down")
	svc := stubAuthorisationService{
		confirmFn: func(_ context.Context, req core.ConfirmCodeRequest) (core.StepResult, error) {
			return core.StepResult{Blob: req.Blob, Err: failure}, failure
		},
	}
	cmd := NewConfirmCodeCommand(svc)
	collector := gocmd.NewResult[core.StepResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, ConfirmCodeMessage{Request: core.ConfirmCodeRequest{
		Operation: consentOp,
		Code:      "123456",
		Blob:      []byte("prior"),
	}})
	if !core.IsKind(err, core.KindRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
	result, ok := collector.Load()
	if !ok || string(result.Blob) != "prior" {
		t.Fatalf("expected prior blob stored on failure, got %#v", result)
	}
}

func TestStepCommands_DelegateToService(t *testing.T) {
	calls := []string{}
	record := func(name string) (core.StepResult, error) {
		calls = append(calls, name)
		return core.StepResult{}, nil
	}
	svc := stubAuthorisationService{
		authoriseFn: func(context.Context, core.AuthorisePsuRequest) (core.StepResult, error) { return record("authorise") },
		selectFn:    func(context.Context, core.SelectMethodRequest) (core.StepResult, error) { return record("select") },
		revokeFn:    func(context.Context, core.RevokeConsentRequest) (core.StepResult, error) { return record("revoke") },
	}
	ctx := context.Background()

	if err := NewAuthorisePsuCommand(svc).Execute(ctx, AuthorisePsuMessage{}); err != nil {
		t.Fatalf("authorise: %v", err)
	}
	if err := NewSelectScaMethodCommand(svc).Execute(ctx, SelectScaMethodMessage{}); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := NewRevokeConsentCommand(svc).Execute(ctx, RevokeConsentMessage{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if len(calls) != 3 || calls[0] != "authorise" || calls[1] != "select" || calls[2] != "revoke" {
		t.Fatalf("unexpected call order %#v", calls)
	}
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	cases := map[string]interface{ Validate() error }{
		"missing blob":     ConfirmCodeMessage{Request: core.ConfirmCodeRequest{Operation: consentOp, Code: "1"}},
		"unknown kind":     InitiateAuthorisationMessage{Request: core.InitiateRequest{Operation: core.OperationContext{Kind: "account"}}},
		"revoke payment":   RevokeConsentMessage{Request: core.RevokeConsentRequest{Operation: core.OperationContext{Kind: core.OperationKindPayment}, Blob: []byte("x")}},
		"bad payment type": InitiateAuthorisationMessage{Request: core.InitiateRequest{Operation: core.OperationContext{Kind: core.OperationKindPayment, PaymentType: "INSTANT"}}},
	}
	for name, msg := range cases {
		err := msg.Validate()
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation {
			t.Fatalf("%s: expected validation category, got %q", name, rich.Category)
		}
		if rich.TextCode != core.ScaErrorBadInput {
			t.Fatalf("%s: expected %q text code, got %q", name, core.ScaErrorBadInput, rich.TextCode)
		}
	}

	inputs := []struct {
		name string
		msg  interface{ Validate() error }
		kind core.ErrorKind
	}{
		{"missing login", AuthorisePsuMessage{Request: core.AuthorisePsuRequest{Operation: consentOp, Blob: []byte("x")}}, core.KindInvalidCredentials},
		{"missing method", SelectScaMethodMessage{Request: core.SelectMethodRequest{Operation: consentOp, Blob: []byte("x")}}, core.KindUnsupportedOperation},
		{"missing code", ConfirmCodeMessage{Request: core.ConfirmCodeRequest{Operation: consentOp, Blob: []byte("x")}}, core.KindInvalidCredentials},
	}
	for _, tc := range inputs {
		err := tc.msg.Validate()
		if !core.IsKind(err, tc.kind) {
			t.Fatalf("%s: expected %s, got %v", tc.name, tc.kind, err)
		}
	}

	valid := SelectScaMethodMessage{Request: core.SelectMethodRequest{Operation: consentOp, MethodID: "sms-1", Blob: []byte("x")}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}

func TestCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *ConfirmCodeCommand
	err := cmd.Execute(context.Background(), ConfirmCodeMessage{})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal || rich.TextCode != core.ScaErrorInternal {
		t.Fatalf("unexpected envelope %+v", rich)
	}
}

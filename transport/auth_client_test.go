package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-psd2-sca/core"
)

type recordedRequest struct {
	method        string
	path          string
	authorization string
	body          []byte
}

func newAuthServer(t *testing.T, status int, body string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	requests := []recordedRequest{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, _ := io.ReadAll(r.Body)
		requests = append(requests, recordedRequest{
			method:        r.Method,
			path:          r.URL.EscapedPath(),
			authorization: r.Header.Get("Authorization"),
			body:          payload,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func newTestAuthClient(server *httptest.Server) *RESTAuthClient {
	client := NewRESTAuthClient(server.URL+"/", NewRESTAdapter(server.Client()))
	client.RequestID = func() string { return "req-fixed" }
	return client
}

func TestRESTAuthClient_LoginParsesRemoteResponse(t *testing.T) {
	server, requests := newAuthServer(t, http.StatusOK, `{
		"authorisationId": "auth-1",
		"scaStatus": "PSUIDENTIFIED",
		"bearerToken": {"access_token": "tok-1", "token_type": "Bearer", "expires_in": 600},
		"scaMethods": [{"authenticationMethodId": "sms-1", "authenticationType": "SMS_OTP", "name": "SMS"}],
		"multilevelScaRequired": true,
		"statusDate": "2026-03-14T10:30:00+01:00",
		"somethingNew": "ignored"
	}`)
	client := newTestAuthClient(server)

	resp, err := client.Login(context.Background(), core.LoginRequest{
		LoginID:     "psu-1",
		Password:    "12345",
		OperationID: "payment-1",
		Kind:        core.OperationKindPayment,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.ScaStatus != core.ScaStatusPSUIdentified || resp.AuthorisationID != "auth-1" {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.BearerToken == nil || resp.BearerToken.AccessToken != "tok-1" || resp.BearerToken.ExpiresIn != 600 {
		t.Fatalf("unexpected token %#v", resp.BearerToken)
	}
	if len(resp.ScaMethods) != 1 || resp.ScaMethods[0].ID != "sms-1" || resp.ScaMethods[0].Type != "SMS_OTP" {
		t.Fatalf("unexpected methods %#v", resp.ScaMethods)
	}
	if !resp.MultilevelScaRequired || resp.StatusDate.Hour() != 9 {
		t.Fatalf("expected multilevel flag and utc status date, got %#v", resp)
	}

	sent := (*requests)[0]
	if sent.method != http.MethodPost || sent.path != "/users/loginForPayment" {
		t.Fatalf("unexpected request %s %s", sent.method, sent.path)
	}
	if sent.authorization != "" {
		t.Fatalf("expected login to be unauthenticated, got %q", sent.authorization)
	}
	var login map[string]string
	if err := json.Unmarshal(sent.body, &login); err != nil {
		t.Fatalf("decode login body: %v", err)
	}
	if login["login"] != "psu-1" || login["pin"] != "12345" || login["operationType"] != "PAYMENT" {
		t.Fatalf("unexpected login body %#v", login)
	}
}

func TestRESTAuthClient_SelectMethodUsesScopedToken(t *testing.T) {
	server, requests := newAuthServer(t, http.StatusOK, `{
		"scaStatus": "SCAMETHODSELECTED",
		"chosenScaMethod": {"authenticationMethodId": "sms 1", "authenticationType": "SMS_OTP"},
		"challengeData": {"data": ["code sent"], "otpMaxLength": 6}
	}`)
	client := newTestAuthClient(server)

	var resp core.ScaResponse
	scope := core.NewTokenContext()
	err := scope.Run(context.Background(), &core.BearerToken{AccessToken: "tok-1"}, func(ctx context.Context) error {
		var callErr error
		resp, callErr = client.SelectMethod(ctx, "consent-1", "auth-1", "sms 1")
		return callErr
	})
	if err != nil {
		t.Fatalf("select method: %v", err)
	}
	if resp.ScaStatus != core.ScaStatusMethodSelected || resp.ChosenScaMethod == nil || resp.Challenge == nil {
		t.Fatalf("unexpected response %#v", resp)
	}
	if resp.ScaMethods != nil {
		t.Fatalf("expected missing methods to stay nil, got %#v", resp.ScaMethods)
	}

	sent := (*requests)[0]
	if sent.method != http.MethodPut || sent.path != "/sca/consent-1/authorisations/auth-1/methods/sms%201" {
		t.Fatalf("unexpected request %s %s", sent.method, sent.path)
	}
	if sent.authorization != "Bearer tok-1" {
		t.Fatalf("expected bearer token, got %q", sent.authorization)
	}
}

func TestRESTAuthClient_ConfirmCodeSendsAuthCode(t *testing.T) {
	server, requests := newAuthServer(t, http.StatusOK, `{"scaStatus":"finalised","partiallyAuthorised":true}`)
	client := newTestAuthClient(server)

	resp, err := client.ConfirmCode(context.Background(), "payment-1", "auth-9", "123456")
	if err != nil {
		t.Fatalf("confirm code: %v", err)
	}
	if resp.ScaStatus != core.ScaStatusFinalised || !resp.PartiallyAuthorised {
		t.Fatalf("unexpected response %#v", resp)
	}
	if !bytes.Equal((*requests)[0].body, []byte(`{"authCode":"123456"}`)) {
		t.Fatalf("unexpected body %s", (*requests)[0].body)
	}
}

func TestRESTAuthClient_StartAuthorizationRoutesByKind(t *testing.T) {
	server, requests := newAuthServer(t, http.StatusCreated, `{"operationId":"payment-1","scaStatus":"STARTED"}`)
	client := newTestAuthClient(server)

	if _, err := client.StartAuthorization(context.Background(), core.StartRequest{
		Kind:        core.OperationKindPayment,
		PaymentType: core.PaymentTypePeriodic,
		Payload:     []byte(`{"amount":"10.00"}`),
	}); err != nil {
		t.Fatalf("start payment: %v", err)
	}
	if _, err := client.StartAuthorization(context.Background(), core.StartRequest{
		Kind:        core.OperationKindConsent,
		OperationID: "consent-1",
	}); err != nil {
		t.Fatalf("start consent: %v", err)
	}

	if (*requests)[0].path != "/payments/PERIODIC" || string((*requests)[0].body) != `{"amount":"10.00"}` {
		t.Fatalf("unexpected payment request %#v", (*requests)[0])
	}
	if (*requests)[1].path != "/consents/consent-1/start" || string((*requests)[1].body) != `{}` {
		t.Fatalf("unexpected consent request %#v", (*requests)[1])
	}

	_, err := client.StartAuthorization(context.Background(), core.StartRequest{Kind: "account"})
	if !errors.Is(err, core.ErrUnsupportedOperation) {
		t.Fatalf("expected unsupported operation, got %v", err)
	}
}

func TestRESTAuthClient_NonSuccessIsRemoteFault(t *testing.T) {
	cases := []struct {
		status int
		body   string
		code   string
		kind   core.ErrorKind
	}{
		{http.StatusInternalServerError, `{"devMessage":"NullPointerException"}`, "", core.KindRemoteUnavailable},
		{http.StatusNotFound, `{"code":"CONSENT_UNKNOWN","message":"no such consent"}`, "CONSENT_UNKNOWN", core.KindRemoteRejected},
		{http.StatusBadRequest, `plain text failure`, "", core.KindRemoteRejected},
	}
	for _, tc := range cases {
		server, _ := newAuthServer(t, tc.status, tc.body)
		client := newTestAuthClient(server)

		_, err := client.ConfirmCode(context.Background(), "consent-1", "auth-1", "000000")
		var fault *core.RemoteFault
		if !errors.As(err, &fault) {
			t.Fatalf("status %d: expected remote fault, got %T", tc.status, err)
		}
		if fault.StatusCode != tc.status || fault.Code != tc.code {
			t.Fatalf("status %d: unexpected fault %#v", tc.status, fault)
		}
		translated := core.TranslateRemoteFault(core.OperationKindConsent, core.ActionConfirmCode, err)
		if !core.IsKind(translated, tc.kind) {
			t.Fatalf("status %d: expected %s, got %v", tc.status, tc.kind, translated)
		}
	}
}

func TestRESTAuthClient_UnreachableServerIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewRESTAuthClient(url, nil)
	_, err := client.ConfirmCode(context.Background(), "consent-1", "auth-1", "000000")
	var fault *core.RemoteFault
	if !errors.As(err, &fault) || fault.StatusCode != 0 {
		t.Fatalf("expected status-less remote fault, got %#v", err)
	}
	if !core.IsKind(core.TranslateRemoteFault(core.OperationKindConsent, core.ActionConfirmCode, err), core.KindRemoteUnavailable) {
		t.Fatalf("expected remote unavailable")
	}
}

func TestRESTAuthClient_UnknownStatusIsRemoteFault(t *testing.T) {
	server, _ := newAuthServer(t, http.StatusOK, `{"scaStatus":"HALFWAY"}`)
	client := newTestAuthClient(server)

	_, err := client.ConfirmCode(context.Background(), "consent-1", "auth-1", "000000")
	if !errors.Is(err, core.ErrInvalidScaStatus) {
		t.Fatalf("expected invalid status to surface, got %v", err)
	}
}

func TestRESTAuthClient_DrivesServiceEndToEnd(t *testing.T) {
	server, _ := newAuthServer(t, http.StatusServiceUnavailable, `{"message":"maintenance"}`)
	svc, err := core.NewService(core.DefaultConfig(), core.WithAuthClient(newTestAuthClient(server)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	blob, err := core.JSONStateCodec{}.Encode(context.Background(), core.ConsentState{ScaResponse: core.ScaResponse{
		OperationID:     "consent-1",
		AuthorisationID: "auth-1",
		ScaStatus:       core.ScaStatusMethodSelected,
		BearerToken:     &core.BearerToken{AccessToken: "tok-1"},
		ScaMethods:      []core.ScaMethod{},
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	result, err := svc.ConfirmCode(context.Background(), core.ConfirmCodeRequest{
		Operation: core.OperationContext{Kind: core.OperationKindConsent},
		Code:      "123456",
		Blob:      blob,
	})
	if !core.IsKind(err, core.KindRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
	if !bytes.Equal(result.Blob, blob) {
		t.Fatalf("expected blob unchanged after remote outage")
	}
}

func TestRESTAuthClient_ClosedServerOutageIsRetryableThroughService(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	baseURL := server.URL
	server.Close()

	svc, err := core.NewService(core.DefaultConfig(), core.WithAuthClient(NewRESTAuthClient(baseURL, nil)))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	blob, err := core.JSONStateCodec{}.Encode(context.Background(), core.ConsentState{ScaResponse: core.ScaResponse{
		OperationID:     "consent-1",
		AuthorisationID: "auth-1",
		ScaStatus:       core.ScaStatusMethodSelected,
		BearerToken:     &core.BearerToken{AccessToken: "tok-1"},
		ScaMethods:      []core.ScaMethod{},
	}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	result, err := svc.ConfirmCode(context.Background(), core.ConfirmCodeRequest{
		Operation: core.OperationContext{Kind: core.OperationKindConsent},
		Code:      "123456",
		Blob:      blob,
	})
	if !core.IsKind(err, core.KindRemoteUnavailable) {
		t.Fatalf("expected remote unavailable, got %v", err)
	}
	if !core.IsRetryable(err) {
		t.Fatalf("expected connection failure to be retryable")
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Source != nil {
		t.Fatalf("expected transport cause to stay internal, got %v", rich.Source)
	}
	if _, leaked := rich.Metadata["url"]; leaked {
		t.Fatalf("expected remote url to stay internal, got %#v", rich.Metadata)
	}
	if rich.TextCode != core.ScaErrorRemoteUnavailable {
		t.Fatalf("expected %q, got %q", core.ScaErrorRemoteUnavailable, rich.TextCode)
	}
	if !bytes.Equal(result.Blob, blob) {
		t.Fatalf("expected blob unchanged after connection failure")
	}
}

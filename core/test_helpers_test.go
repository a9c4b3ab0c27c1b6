package core

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return testNow
}

type stubAuthClient struct {
	mu          sync.Mutex
	loginFn     func(ctx context.Context, req LoginRequest) (ScaResponse, error)
	selectFn    func(ctx context.Context, operationID, authorisationID, methodID string) (ScaResponse, error)
	confirmFn   func(ctx context.Context, operationID, authorisationID, code string) (ScaResponse, error)
	startFn     func(ctx context.Context, req StartRequest) (ScaResponse, error)
	logins      []LoginRequest
	selects     []string
	confirms    []string
	starts      []StartRequest
	startTokens []*BearerToken
	callTokens  []*BearerToken
}

func (c *stubAuthClient) Login(ctx context.Context, req LoginRequest) (ScaResponse, error) {
	c.mu.Lock()
	c.logins = append(c.logins, req)
	c.callTokens = append(c.callTokens, tokenFrom(ctx))
	c.mu.Unlock()
	if c.loginFn == nil {
		return ScaResponse{}, errors.New("login not stubbed")
	}
	return c.loginFn(ctx, req)
}

func (c *stubAuthClient) SelectMethod(ctx context.Context, operationID, authorisationID, methodID string) (ScaResponse, error) {
	c.mu.Lock()
	c.selects = append(c.selects, methodID)
	c.callTokens = append(c.callTokens, tokenFrom(ctx))
	c.mu.Unlock()
	if c.selectFn == nil {
		return ScaResponse{}, errors.New("select not stubbed")
	}
	return c.selectFn(ctx, operationID, authorisationID, methodID)
}

func (c *stubAuthClient) ConfirmCode(ctx context.Context, operationID, authorisationID, code string) (ScaResponse, error) {
	c.mu.Lock()
	c.confirms = append(c.confirms, code)
	c.callTokens = append(c.callTokens, tokenFrom(ctx))
	c.mu.Unlock()
	if c.confirmFn == nil {
		return ScaResponse{}, errors.New("confirm not stubbed")
	}
	return c.confirmFn(ctx, operationID, authorisationID, code)
}

func (c *stubAuthClient) StartAuthorization(ctx context.Context, req StartRequest) (ScaResponse, error) {
	c.mu.Lock()
	c.starts = append(c.starts, req)
	c.startTokens = append(c.startTokens, tokenFrom(ctx))
	c.mu.Unlock()
	if c.startFn == nil {
		return ScaResponse{}, errors.New("start not stubbed")
	}
	return c.startFn(ctx, req)
}

func (c *stubAuthClient) startCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.starts)
}

func tokenFrom(ctx context.Context) *BearerToken {
	token, ok := BearerTokenFromContext(ctx)
	if !ok {
		return nil
	}
	return token
}

type stubSyncHook struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (h *stubSyncHook) SyncStatus(_ context.Context, operationID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, operationID)
	return h.err
}

type stubTokenValidator struct {
	refreshed *BearerToken
	err       error
	seen      []BearerToken
}

func (v *stubTokenValidator) Validate(_ context.Context, token BearerToken) (*BearerToken, error) {
	v.seen = append(v.seen, token)
	return v.refreshed, v.err
}

type captureActivityRecorder struct {
	mu      sync.Mutex
	entries []ActivityEntry
	err     error
}

func (r *captureActivityRecorder) Record(_ context.Context, entry ActivityEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return r.err
}

// reverseSecretProvider is a reversible fake, good enough to prove the blob
// no longer carries clear text.
type reverseSecretProvider struct{}

func (reverseSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	out := make([]byte, 0, len(plaintext)+7)
	out = append(out, []byte("sealed:")...)
	for index := len(plaintext) - 1; index >= 0; index-- {
		out = append(out, plaintext[index])
	}
	return out, nil
}

func (reverseSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if !bytes.HasPrefix(ciphertext, []byte("sealed:")) {
		return nil, errors.New("not sealed")
	}
	body := ciphertext[len("sealed:"):]
	out := make([]byte, 0, len(body))
	for index := len(body) - 1; index >= 0; index-- {
		out = append(out, body[index])
	}
	return out, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func testToken(access string) *BearerToken {
	return &BearerToken{AccessToken: access, TokenType: "Bearer", ExpiresIn: 600, RefreshToken: "refresh-" + access}
}

func testMethods() []ScaMethod {
	return []ScaMethod{
		{ID: "sms-1", Type: "SMS", DisplayName: "SMS to +49***12"},
		{ID: "app-1", Type: "APP", DisplayName: "Banking app"},
	}
}

func consentState(status ScaStatus) ConsentState {
	return ConsentState{ScaResponse: ScaResponse{
		OperationID:     "consent-1",
		AuthorisationID: "auth-1",
		ScaStatus:       status,
		BearerToken:     testToken("tok-1"),
		ScaMethods:      testMethods(),
		StatusDate:      testNow.Add(-time.Minute),
	}}
}

func paymentState(status ScaStatus) PaymentState {
	return PaymentState{
		ScaResponse: ScaResponse{
			OperationID:     "payment-1",
			AuthorisationID: "auth-9",
			ScaStatus:       status,
			BearerToken:     testToken("tok-9"),
			ScaMethods:      testMethods(),
			StatusDate:      testNow.Add(-time.Minute),
		},
		PaymentType:    PaymentTypeSingle,
		PaymentProduct: "sepa-credit-transfers",
	}
}

func mustEncode(t *testing.T, state ScaResponseState) []byte {
	t.Helper()
	blob, err := JSONStateCodec{}.Encode(context.Background(), state)
	if err != nil {
		t.Fatalf("encode state: %v", err)
	}
	return blob
}

func newTestService(t *testing.T, client AuthClient, opts ...Option) *Service {
	t.Helper()
	base := []Option{
		WithAuthClient(client),
		WithClock(fixedClock),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(DefaultConfig(), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

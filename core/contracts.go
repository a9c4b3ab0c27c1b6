package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var ErrTokenInvalid = errors.New("core: bearer token is no longer valid")

type LoginRequest struct {
	LoginID         string
	Password        string
	OperationID     string
	AuthorisationID string
	Kind            OperationKind
}

type StartRequest struct {
	Kind            OperationKind
	OperationID     string
	AuthorisationID string
	PaymentType     PaymentType
	PaymentProduct  string
	Payload         []byte
}

// AuthClient is the RPC boundary to the remote authorisation service. The
// bearer token of the current step is carried by ctx; see TokenContext.
// Non-2xx answers are reported as *RemoteFault.
type AuthClient interface {
	Login(ctx context.Context, req LoginRequest) (ScaResponse, error)
	SelectMethod(ctx context.Context, operationID string, authorisationID string, methodID string) (ScaResponse, error)
	ConfirmCode(ctx context.Context, operationID string, authorisationID string, code string) (ScaResponse, error)
	StartAuthorization(ctx context.Context, req StartRequest) (ScaResponse, error)
}

// StatusSyncHook mirrors the current transaction status into the
// surrounding system. Failures never fail the authorisation step.
type StatusSyncHook interface {
	SyncStatus(ctx context.Context, operationID string) error
}

// TokenValidator checks a stored bearer token before it is reused. It returns
// a replacement token when the remote side refreshed it, nil to keep the
// current one, and ErrTokenInvalid when the PSU must log in again.
type TokenValidator interface {
	Validate(ctx context.Context, token BearerToken) (*BearerToken, error)
}

type ActivityOutcome string

const (
	ActivityOutcomeSuccess ActivityOutcome = "success"
	ActivityOutcomeFailure ActivityOutcome = "failure"
)

type ActivityEntry struct {
	ID              string
	OperationID     string
	AuthorisationID string
	Kind            OperationKind
	Action          ActionKind
	PriorStatus     ScaStatus
	Status          ScaStatus
	Outcome         ActivityOutcome
	ErrorCode       string
	Metadata        map[string]any
	CreatedAt       time.Time
}

type ActivityFilter struct {
	OperationID string
	Kind        OperationKind
	Action      ActionKind
	Outcome     ActivityOutcome
	From        *time.Time
	To          *time.Time
	Page        int
	PerPage     int
}

type ActivityPage struct {
	Items   []ActivityEntry
	Page    int
	PerPage int
	Total   int
	HasNext bool
}

type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

type ActivityReader interface {
	List(ctx context.Context, filter ActivityFilter) (ActivityPage, error)
	Latest(ctx context.Context, operationID string) (ActivityEntry, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// TransportRequest is one outbound call to the remote authorisation service.
type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	RequestID            string
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

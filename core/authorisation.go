package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// OperationContext identifies the consent or payment a step belongs to.
type OperationContext struct {
	Kind            OperationKind
	OperationID     string
	AuthorisationID string
	PaymentType     PaymentType
	PaymentProduct  string
	// PsuCount is the number of PSUs attached to the authorisation so far,
	// including this one.
	PsuCount int
	// Payload is the protocol body forwarded on start-authorization.
	Payload []byte
}

func (o OperationContext) Validate() error {
	if !o.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedOperation, o.Kind)
	}
	if o.Kind == OperationKindPayment && o.PaymentType != "" {
		if _, err := ParsePaymentType(string(o.PaymentType)); err != nil {
			return err
		}
	}
	if o.PsuCount < 0 {
		return NewScaError(KindUnsupportedOperation, "PSU count must not be negative")
	}
	return nil
}

type PsuCredentials struct {
	LoginID  string
	Password string
}

type InitiateRequest struct {
	Operation OperationContext
	Blob      []byte
}

type AuthorisePsuRequest struct {
	Operation   OperationContext
	Credentials PsuCredentials
	Blob        []byte
}

type AvailableMethodsRequest struct {
	Operation OperationContext
	Blob      []byte
}

type SelectMethodRequest struct {
	Operation OperationContext
	MethodID  string
	Blob      []byte
}

type ConfirmCodeRequest struct {
	Operation OperationContext
	Code      string
	Blob      []byte
}

type RevokeConsentRequest struct {
	Operation OperationContext
	Blob      []byte
}

// StepResult is returned by every authorisation step. Blob is always set:
// on failure it is the caller's input, byte for byte.
type StepResult struct {
	Status             ScaStatus
	ScaMethods         []ScaMethod
	ChosenScaMethod    *ScaMethod
	Challenge          *ChallengeData
	Token              *BearerToken
	ConsentStatus      ConsentStatus
	OperationID        string
	AuthorisationID    string
	OperationInitiated bool
	Blob               []byte
	Err                *goerrors.Error
}

func (r StepResult) Failed() bool {
	return r.Err != nil
}

// InitiateAuthorization opens the authorisation. With no prior state it calls
// start-authorization unauthenticated; on an exempted or authenticated state
// it creates the underlying operation with the stored token.
func (s *Service) InitiateAuthorization(ctx context.Context, req InitiateRequest) (result StepResult, err error) {
	startedAt := s.now()
	fields := operationFields(req.Operation, ActionInitiate)
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionInitiate, req.Operation, prior, result, err, fields)
	}()

	if err = req.Operation.Validate(); err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if len(req.Blob) > 0 {
		prior, err = s.restore(ctx, req.Blob, req.Operation.Kind)
		if err != nil {
			return s.failStep(req.Blob, nil, err)
		}
	}
	transition, err := s.machine.Decide(prior, ActionInitiate)
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}

	base := prior
	if base == nil {
		base, err = s.machine.Seed(req.Operation)
		if err != nil {
			return s.failStep(req.Blob, prior, err)
		}
	}
	next, err := s.startAuthorization(ctx, base, transition, req.Operation)
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	result, err = s.succeedStep(ctx, next)
	result.OperationInitiated = err == nil
	return result, err
}

// AuthorisePsu logs the PSU in against a previously initiated authorisation.
func (s *Service) AuthorisePsu(ctx context.Context, req AuthorisePsuRequest) (result StepResult, err error) {
	startedAt := s.now()
	fields := operationFields(req.Operation, ActionLogin)
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionLogin, req.Operation, prior, result, err, fields)
	}()

	if err = req.Operation.Validate(); err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if strings.TrimSpace(req.Credentials.LoginID) == "" {
		return s.failStep(req.Blob, nil, NewScaError(KindInvalidCredentials, messageMissingLoginID))
	}
	prior, err = s.restore(ctx, req.Blob, "")
	if err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if err = ensureLoginVariant(prior, req.Operation.Kind); err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	if _, err = s.machine.Decide(prior, ActionLogin); err != nil {
		return s.failStep(req.Blob, prior, err)
	}

	priorResp := prior.Response()
	operationID := firstNonEmpty(req.Operation.OperationID, priorResp.OperationID)
	authorisationID := firstNonEmpty(req.Operation.AuthorisationID, priorResp.AuthorisationID)
	client, err := s.requireAuthClient()
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	resp, err := s.callRemote(ctx, nil, func(ctx context.Context) (ScaResponse, error) {
		return client.Login(ctx, LoginRequest{
			LoginID:         strings.TrimSpace(req.Credentials.LoginID),
			Password:        req.Credentials.Password,
			OperationID:     operationID,
			AuthorisationID: authorisationID,
			Kind:            req.Operation.Kind,
		})
	})
	if err != nil {
		s.logRemoteFault(ctx, ActionLogin, err, fields)
		return s.failStep(req.Blob, prior, TranslateRemoteFault(req.Operation.Kind, ActionLogin, err))
	}

	login := s.machine.Apply(LoginState{ScaResponse: priorResp}, ActionLogin, resp).(LoginState)
	next, err := s.machine.Promote(prior, login, req.Operation)
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}

	initiated := false
	nextResp := next.Response()
	if ShouldInitiateOnExemption(nextResp.ScaStatus, nextResp.MultilevelScaRequired, req.Operation.PsuCount) {
		exemption := Transition{Action: ActionInitiate, Call: CallStartAuthorization, Authenticated: true}
		next, err = s.startAuthorization(ctx, next, exemption, req.Operation)
		if err != nil {
			return s.failStep(req.Blob, prior, err)
		}
		initiated = true
	}

	result, err = s.succeedStep(ctx, next)
	if err != nil {
		return result, err
	}
	result.OperationInitiated = initiated
	if result.Status != ScaStatusFailed {
		s.syncStatus(ctx, result.OperationID, fields)
	}
	return result, nil
}

// RequestAvailableScaMethods returns the methods offered after login. The
// stored token is validated first when a TokenValidator is configured.
func (s *Service) RequestAvailableScaMethods(ctx context.Context, req AvailableMethodsRequest) (result StepResult, err error) {
	startedAt := s.now()
	fields := operationFields(req.Operation, ActionListMethods)
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionListMethods, req.Operation, prior, result, err, fields)
	}()

	prior, err = s.restoreForStep(ctx, req.Operation, req.Blob)
	if err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if _, err = s.machine.Decide(prior, ActionListMethods); err != nil {
		return s.failStep(req.Blob, prior, err)
	}

	resp := prior.Response()
	if s.tokenValidator == nil || resp.BearerToken.Empty() {
		return s.replayStep(req.Blob, prior), nil
	}
	refreshed, validateErr := s.tokenValidator.Validate(ctx, *resp.BearerToken)
	if validateErr != nil {
		if errors.Is(validateErr, ErrTokenInvalid) {
			return s.failStep(req.Blob, prior, NewScaError(KindInvalidCredentials, "PSU session has expired, log in again"))
		}
		s.logRemoteFault(ctx, ActionListMethods, validateErr, fields)
		return s.failStep(req.Blob, prior, TranslateRemoteFault(req.Operation.Kind, ActionListMethods, validateErr))
	}
	if refreshed.Empty() {
		return s.replayStep(req.Blob, prior), nil
	}
	resp.BearerToken = cloneBearerToken(refreshed)
	return s.succeedStep(ctx, prior.WithResponse(resp))
}

// SelectScaMethod selects the challenge method. Selecting again once a method
// is selected returns the stored payload without calling the remote service.
func (s *Service) SelectScaMethod(ctx context.Context, req SelectMethodRequest) (result StepResult, err error) {
	startedAt := s.now()
	fields := operationFields(req.Operation, ActionSelectMethod)
	fields["method_id"] = req.MethodID
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionSelectMethod, req.Operation, prior, result, err, fields)
	}()

	prior, err = s.restoreForStep(ctx, req.Operation, req.Blob)
	if err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	transition, err := s.machine.Decide(prior, ActionSelectMethod)
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	if transition.Bypass {
		return s.replayStep(req.Blob, prior), nil
	}
	methodID := strings.TrimSpace(req.MethodID)
	if methodID == "" {
		return s.failStep(req.Blob, prior, NewScaError(KindUnsupportedOperation, messageMissingMethod))
	}

	priorResp := prior.Response()
	client, err := s.requireAuthClient()
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	resp, err := s.callRemote(ctx, priorResp.BearerToken, func(ctx context.Context) (ScaResponse, error) {
		return client.SelectMethod(ctx, priorResp.OperationID, priorResp.AuthorisationID, methodID)
	})
	if err != nil {
		s.logRemoteFault(ctx, ActionSelectMethod, err, fields)
		return s.failStep(req.Blob, prior, TranslateRemoteFault(req.Operation.Kind, ActionSelectMethod, err))
	}
	if resp.ChosenScaMethod == nil {
		if method, ok := findScaMethod(priorResp.ScaMethods, methodID); ok {
			resp.ChosenScaMethod = &method
		}
	}
	return s.succeedStep(ctx, s.machine.Apply(prior, ActionSelectMethod, resp))
}

// ConfirmCode submits the TAN for the selected method.
func (s *Service) ConfirmCode(ctx context.Context, req ConfirmCodeRequest) (result StepResult, err error) {
	startedAt := s.now()
	fields := operationFields(req.Operation, ActionConfirmCode)
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionConfirmCode, req.Operation, prior, result, err, fields)
	}()

	prior, err = s.restoreForStep(ctx, req.Operation, req.Blob)
	if err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if _, err = s.machine.Decide(prior, ActionConfirmCode); err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return s.failStep(req.Blob, prior, NewScaError(KindInvalidCredentials, messageMissingCode))
	}

	priorResp := prior.Response()
	client, err := s.requireAuthClient()
	if err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	resp, err := s.callRemote(ctx, priorResp.BearerToken, func(ctx context.Context) (ScaResponse, error) {
		return client.ConfirmCode(ctx, priorResp.OperationID, priorResp.AuthorisationID, code)
	})
	if err != nil {
		s.logRemoteFault(ctx, ActionConfirmCode, err, fields)
		return s.failStep(req.Blob, prior, TranslateRemoteFault(req.Operation.Kind, ActionConfirmCode, err))
	}

	result, err = s.succeedStep(ctx, s.machine.Apply(prior, ActionConfirmCode, resp))
	if err != nil {
		return result, err
	}
	if result.Status == ScaStatusFinalised {
		s.syncStatus(ctx, result.OperationID, fields)
	}
	return result, nil
}

// RevokeConsent terminates a consent locally and drops its bearer token.
func (s *Service) RevokeConsent(ctx context.Context, req RevokeConsentRequest) (result StepResult, err error) {
	startedAt := s.now()
	req.Operation.Kind = OperationKindConsent
	fields := operationFields(req.Operation, ActionRevoke)
	var prior ScaResponseState
	defer func() {
		s.completeStep(ctx, startedAt, ActionRevoke, req.Operation, prior, result, err, fields)
	}()

	prior, err = s.restoreForStep(ctx, req.Operation, req.Blob)
	if err != nil {
		return s.failStep(req.Blob, nil, err)
	}
	if _, err = s.machine.Decide(prior, ActionRevoke); err != nil {
		return s.failStep(req.Blob, prior, err)
	}
	consent, ok := prior.(ConsentState)
	if !ok {
		return s.failStep(req.Blob, prior, NewScaError(KindStateMismatch, "authorisation state does not hold a consent"))
	}
	resp := consent.Response()
	resp.ScaStatus = ScaStatusFinalised
	resp.BearerToken = nil
	resp.Challenge = nil
	resp.StatusDate = s.now()
	return s.succeedStep(ctx, ConsentState{ScaResponse: resp, Revoked: true})
}

// DescribeState decodes blob without touching the remote service.
func (s *Service) DescribeState(ctx context.Context, blob []byte, expected ...StateVariant) (StepResult, error) {
	variant := StateVariant("")
	if len(expected) > 0 {
		variant = expected[0]
	}
	state, err := s.Codec().Decode(ctx, blob, variant)
	if err != nil {
		return s.failStep(blob, nil, err)
	}
	return s.replayStep(blob, state), nil
}

func (s *Service) restore(ctx context.Context, blob []byte, kind OperationKind) (ScaResponseState, error) {
	expected := StateVariant("")
	if kind != "" {
		variant, err := variantForKind(kind)
		if err != nil {
			return nil, err
		}
		expected = variant
	}
	state, err := s.Codec().Decode(ctx, blob, expected)
	if err != nil {
		if errors.Is(err, ErrNoPriorState) {
			return nil, wrapScaError(KindSequence, ErrNoPriorState, "no authorisation state is available for this step")
		}
		return nil, err
	}
	return state, nil
}

func (s *Service) restoreForStep(ctx context.Context, op OperationContext, blob []byte) (ScaResponseState, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return s.restore(ctx, blob, op.Kind)
}

func ensureLoginVariant(prior ScaResponseState, kind OperationKind) error {
	if prior.Variant() == VariantLogin {
		return nil
	}
	expected, err := variantForKind(kind)
	if err != nil {
		return err
	}
	if prior.Variant() != expected {
		return NewScaError(
			KindStateMismatch,
			fmt.Sprintf("expected %s but authorisation state holds %s", expected, prior.Variant()),
		)
	}
	return nil
}

func (s *Service) startAuthorization(ctx context.Context, base ScaResponseState, transition Transition, op OperationContext) (ScaResponseState, error) {
	client, err := s.requireAuthClient()
	if err != nil {
		return nil, err
	}
	baseResp := base.Response()
	var token *BearerToken
	if transition.Authenticated {
		token = baseResp.BearerToken
	}
	paymentType := op.PaymentType
	paymentProduct := op.PaymentProduct
	if payment, ok := base.(PaymentState); ok {
		paymentType = payment.PaymentType
		paymentProduct = firstNonEmpty(paymentProduct, payment.PaymentProduct)
	}

	resp, err := s.callRemote(ctx, token, func(ctx context.Context) (ScaResponse, error) {
		return client.StartAuthorization(ctx, StartRequest{
			Kind:            op.Kind,
			OperationID:     firstNonEmpty(op.OperationID, baseResp.OperationID),
			AuthorisationID: firstNonEmpty(op.AuthorisationID, baseResp.AuthorisationID),
			PaymentType:     paymentType,
			PaymentProduct:  paymentProduct,
			Payload:         append([]byte(nil), op.Payload...),
		})
	})
	if err != nil {
		s.logRemoteFault(ctx, ActionInitiate, err, operationFields(op, ActionInitiate))
		return nil, TranslateRemoteFault(op.Kind, ActionInitiate, err)
	}
	if transition.Authenticated {
		// the exemption path creates the operation but keeps the sca status
		resp.ScaStatus = baseResp.ScaStatus
	}
	return s.machine.Apply(base, ActionInitiate, resp), nil
}

// callRemote runs one AuthClient call inside its own TokenContext scope.
func (s *Service) callRemote(ctx context.Context, token *BearerToken, call func(ctx context.Context) (ScaResponse, error)) (ScaResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := s.config.RemoteTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var resp ScaResponse
	scope := NewTokenContext()
	err := scope.Run(ctx, token, func(scoped context.Context) error {
		var callErr error
		resp, callErr = call(scoped)
		return callErr
	})
	if err != nil {
		return ScaResponse{}, err
	}
	return resp, nil
}

func (s *Service) requireAuthClient() (AuthClient, error) {
	if s == nil || s.authClient == nil {
		return nil, fmt.Errorf("core: auth client is not configured")
	}
	return s.authClient, nil
}

func (s *Service) succeedStep(ctx context.Context, next ScaResponseState) (StepResult, error) {
	blob, err := s.Codec().Encode(ctx, next)
	if err != nil {
		mapped := s.mapError(err)
		return StepResult{Err: mapped}, mapped
	}
	return stateResult(next, blob), nil
}

// replayStep answers from the stored state and hands back the input blob.
func (s *Service) replayStep(blob []byte, state ScaResponseState) StepResult {
	return stateResult(state, append([]byte(nil), blob...))
}

func (s *Service) failStep(blob []byte, prior ScaResponseState, err error) (StepResult, error) {
	mapped := s.mapError(err)
	result := StepResult{
		Blob: append([]byte(nil), blob...),
		Err:  mapped,
	}
	if prior != nil {
		resp := prior.Response()
		result.Status = resp.ScaStatus
		result.OperationID = resp.OperationID
		result.AuthorisationID = resp.AuthorisationID
	}
	return result, mapped
}

func stateResult(state ScaResponseState, blob []byte) StepResult {
	resp := state.Response()
	result := StepResult{
		Status:          resp.ScaStatus,
		ScaMethods:      resp.ScaMethods,
		ChosenScaMethod: resp.ChosenScaMethod,
		Challenge:       resp.Challenge,
		Token:           resp.BearerToken,
		OperationID:     resp.OperationID,
		AuthorisationID: resp.AuthorisationID,
		Blob:            blob,
	}
	if consent, ok := state.(ConsentState); ok {
		result.ConsentStatus = consent.ConsentStatus()
	}
	return result
}

func (s *Service) syncStatus(ctx context.Context, operationID string, fields map[string]any) {
	if s == nil || s.statusSyncHook == nil || operationID == "" {
		return
	}
	if err := s.statusSyncHook.SyncStatus(ctx, operationID); err != nil {
		logFields := cloneFields(fields)
		logFields["error"] = err.Error()
		s.logError(ctx, "status sync failed", logFields)
		s.recordCounter(ctx, "sca.status_sync.failure.total", 1, map[string]string{
			"operation": "status_sync",
			"status":    "failure",
		})
	}
}

func (s *Service) logRemoteFault(ctx context.Context, action ActionKind, err error, fields map[string]any) {
	logFields := cloneFields(fields)
	logFields["action"] = string(action)
	logFields["remote_error"] = err.Error()
	s.logError(ctx, "remote authorisation call failed", logFields)
}

func (s *Service) completeStep(
	ctx context.Context,
	startedAt time.Time,
	action ActionKind,
	op OperationContext,
	prior ScaResponseState,
	result StepResult,
	err error,
	fields map[string]any,
) {
	s.reportStep(ctx, newStepOutcome(action, op, result, err, s.now().Sub(startedAt)), fields)
	s.recordActivity(ctx, action, op, prior, result)
}

func (s *Service) recordActivity(ctx context.Context, action ActionKind, op OperationContext, prior ScaResponseState, result StepResult) {
	if s == nil || s.activityRecorder == nil {
		return
	}
	entry := ActivityEntry{
		OperationID:     firstNonEmpty(result.OperationID, op.OperationID),
		AuthorisationID: firstNonEmpty(result.AuthorisationID, op.AuthorisationID),
		Kind:            op.Kind,
		Action:          action,
		Status:          result.Status,
		Outcome:         ActivityOutcomeSuccess,
		CreatedAt:       s.now(),
	}
	if prior != nil {
		entry.PriorStatus = prior.Response().ScaStatus
	}
	if result.Err != nil {
		entry.Outcome = ActivityOutcomeFailure
		entry.ErrorCode = result.Err.TextCode
	}
	if result.OperationInitiated {
		entry.Metadata = map[string]any{"operation_initiated": true}
	}
	if err := s.activityRecorder.Record(ctx, entry); err != nil {
		s.logError(ctx, "activity record failed", map[string]any{
			"action":       string(action),
			"operation_id": entry.OperationID,
			"error":        err.Error(),
		})
	}
}

func operationFields(op OperationContext, action ActionKind) map[string]any {
	fields := map[string]any{
		"kind":   string(op.Kind),
		"action": string(action),
	}
	if op.OperationID != "" {
		fields["operation_id"] = op.OperationID
	}
	if op.AuthorisationID != "" {
		fields["authorisation_id"] = op.AuthorisationID
	}
	if op.PaymentType != "" {
		fields["payment_type"] = string(op.PaymentType)
	}
	return fields
}

package core

import (
	"fmt"
	"time"
)

type ActionKind string

const (
	ActionInitiate     ActionKind = "initiate"
	ActionLogin        ActionKind = "login"
	ActionListMethods  ActionKind = "list_methods"
	ActionSelectMethod ActionKind = "select_method"
	ActionConfirmCode  ActionKind = "confirm_code"
	ActionRevoke       ActionKind = "revoke"
)

type RemoteCall string

const (
	CallNone               RemoteCall = ""
	CallStartAuthorization RemoteCall = "start_authorization"
	CallLogin              RemoteCall = "login"
	CallSelectMethod       RemoteCall = "select_method"
	CallConfirmCode        RemoteCall = "confirm_code"
)

// Transition is the decision taken for one PSU action.
type Transition struct {
	Action ActionKind
	Call   RemoteCall
	// Bypass means the stored state already answers the action and no
	// remote call is made.
	Bypass bool
	// Authenticated means the stored bearer token is attached to the call.
	Authenticated bool
}

// ScaStateMachine decides the remote call for a PSU action and folds the
// remote answer into a new state value.
type ScaStateMachine struct {
	Now func() time.Time
}

func NewScaStateMachine() ScaStateMachine {
	return ScaStateMachine{Now: func() time.Time { return time.Now().UTC() }}
}

func (m ScaStateMachine) Decide(state ScaResponseState, action ActionKind) (Transition, error) {
	if state == nil {
		if action == ActionInitiate {
			return Transition{Action: action, Call: CallStartAuthorization}, nil
		}
		return Transition{}, sequenceError(action, "", "no authorisation has been initiated")
	}

	resp := state.Response()
	status := resp.ScaStatus
	switch action {
	case ActionInitiate:
		if status.IsExemptionCandidate() {
			return Transition{Action: action, Call: CallStartAuthorization, Authenticated: true}, nil
		}
	case ActionLogin:
		switch {
		case status == ScaStatusStarted, status == ScaStatusPSUIdentified:
			return Transition{Action: action, Call: CallLogin}, nil
		case acceptsNextPsu(resp):
			return Transition{Action: action, Call: CallLogin}, nil
		}
	case ActionListMethods:
		switch status {
		case ScaStatusPSUIdentified, ScaStatusPSUAuthenticated, ScaStatusMethodSelected:
			return Transition{Action: action, Bypass: true, Authenticated: true}, nil
		}
	case ActionSelectMethod:
		switch status {
		case ScaStatusPSUIdentified, ScaStatusPSUAuthenticated:
			return Transition{Action: action, Call: CallSelectMethod, Authenticated: true}, nil
		case ScaStatusMethodSelected:
			return Transition{Action: action, Bypass: true}, nil
		}
	case ActionConfirmCode:
		if status == ScaStatusMethodSelected {
			return Transition{Action: action, Call: CallConfirmCode, Authenticated: true}, nil
		}
	case ActionRevoke:
		if state.Variant() != VariantConsent {
			return Transition{}, NewScaError(
				KindStateMismatch,
				fmt.Sprintf("expected %s but authorisation state holds %s", VariantConsent, state.Variant()),
			)
		}
		return Transition{Action: action, Bypass: true}, nil
	default:
		return Transition{}, NewScaError(KindUnsupportedOperation, fmt.Sprintf("action %q is not supported", action))
	}
	return Transition{}, sequenceError(action, status, "action is not allowed in the current sca status")
}

// Apply folds a remote answer into prev and returns a new state of the same
// variant. The remote status always wins, even when it moves backwards.
func (m ScaStateMachine) Apply(prev ScaResponseState, action ActionKind, resp ScaResponse) ScaResponseState {
	before := prev.Response()
	next := resp.clone()

	if next.BearerToken.Empty() {
		next.BearerToken = cloneBearerToken(before.BearerToken)
	}
	if next.OperationID == "" {
		next.OperationID = before.OperationID
	}
	if next.AuthorisationID == "" {
		next.AuthorisationID = before.AuthorisationID
	}
	if next.ScaStatus == "" {
		next.ScaStatus = before.ScaStatus
	}
	if next.ScaMethods == nil {
		if action == ActionLogin {
			next.ScaMethods = []ScaMethod{}
		} else {
			next.ScaMethods = cloneScaMethods(before.ScaMethods)
		}
	}
	if next.ChosenScaMethod == nil && action == ActionConfirmCode {
		next.ChosenScaMethod = before.ChosenScaMethod
	}
	next.MultilevelScaRequired = next.MultilevelScaRequired || before.MultilevelScaRequired
	if next.StatusDate.IsZero() {
		next.StatusDate = m.now()
	}
	return prev.WithResponse(next)
}

// Promote binds a login result to the consent or payment it was made for.
// The multilevel flag is discovered once at initiation and always survives.
func (m ScaStateMachine) Promote(prior ScaResponseState, login LoginState, op OperationContext) (ScaResponseState, error) {
	variant, err := variantForKind(op.Kind)
	if err != nil {
		return nil, err
	}
	if typed, ok := prior.(PaymentState); ok {
		if op.PaymentType == "" {
			op.PaymentType = typed.PaymentType
		}
		if op.PaymentProduct == "" {
			op.PaymentProduct = typed.PaymentProduct
		}
	}
	seed, err := seedState(variant, op)
	if err != nil {
		return nil, err
	}

	priorResp := prior.Response()
	resp := login.Response()
	if resp.ScaMethods == nil {
		resp.ScaMethods = []ScaMethod{}
	}
	if op.OperationID != "" {
		resp.OperationID = op.OperationID
	} else if resp.OperationID == "" {
		resp.OperationID = priorResp.OperationID
	}
	if resp.AuthorisationID == "" {
		resp.AuthorisationID = firstNonEmpty(op.AuthorisationID, priorResp.AuthorisationID)
	}
	if resp.BearerToken.Empty() {
		resp.BearerToken = cloneBearerToken(priorResp.BearerToken)
	}
	resp.MultilevelScaRequired = priorResp.MultilevelScaRequired
	if resp.StatusDate.IsZero() {
		resp.StatusDate = m.now()
	}
	return seed.WithResponse(resp), nil
}

// Seed builds the empty state a first initiate call starts from.
func (m ScaStateMachine) Seed(op OperationContext) (ScaResponseState, error) {
	variant, err := variantForKind(op.Kind)
	if err != nil {
		return nil, err
	}
	return seedState(variant, op)
}

func (m ScaStateMachine) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now()
}

// ShouldInitiateOnExemption reports whether a login result lets the
// underlying operation be created right away. In a multilevel authorisation
// only the first PSU triggers it.
func ShouldInitiateOnExemption(status ScaStatus, multilevel bool, psuCount int) bool {
	if !status.IsExemptionCandidate() {
		return false
	}
	return !multilevel || psuCount <= 1
}

func seedState(variant StateVariant, op OperationContext) (ScaResponseState, error) {
	resp := ScaResponse{
		OperationID:     op.OperationID,
		AuthorisationID: op.AuthorisationID,
		ScaStatus:       ScaStatusStarted,
		ScaMethods:      []ScaMethod{},
	}
	switch variant {
	case VariantConsent:
		return ConsentState{ScaResponse: resp}, nil
	case VariantPayment:
		paymentType, err := ParsePaymentType(string(op.PaymentType))
		if err != nil {
			return nil, err
		}
		return PaymentState{ScaResponse: resp, PaymentType: paymentType, PaymentProduct: op.PaymentProduct}, nil
	case VariantLogin:
		return LoginState{ScaResponse: resp}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStateVariant, variant)
	}
}

func acceptsNextPsu(resp ScaResponse) bool {
	if !resp.MultilevelScaRequired {
		return false
	}
	switch resp.ScaStatus {
	case ScaStatusPSUAuthenticated, ScaStatusExempted:
		return true
	case ScaStatusFinalised:
		return resp.PartiallyAuthorised
	default:
		return false
	}
}

func sequenceError(action ActionKind, status ScaStatus, message string) error {
	metadata := map[string]any{"action": string(action)}
	if status != "" {
		metadata["sca_status"] = string(status)
	}
	return NewScaError(KindSequence, fmt.Sprintf("%s: %s", action, message)).WithMetadata(metadata)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}

package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
)

const (
	StatePayloadFormatJSONV1 = "sca_state_json"
	StatePayloadVersionV1    = 1
)

// StateCodec turns a ScaResponseState into the opaque blob handed to the
// caller and back. Decode fails closed on anything it cannot attribute to a
// known variant.
type StateCodec interface {
	Format() string
	Version() int
	Encode(ctx context.Context, state ScaResponseState) ([]byte, error)
	Decode(ctx context.Context, blob []byte, expected ...StateVariant) (ScaResponseState, error)
}

type JSONStateCodec struct{}

type stateEnvelope struct {
	ObjectType StateVariant    `json:"objectType"`
	Version    int             `json:"version"`
	State      json.RawMessage `json:"state"`
}

func (JSONStateCodec) Format() string {
	return StatePayloadFormatJSONV1
}

func (JSONStateCodec) Version() int {
	return StatePayloadVersionV1
}

// Encode writes StatusDate in UTC, so Decode(Encode(s)) matches s with the
// date compared by time.Equal rather than ==.
func (JSONStateCodec) Encode(_ context.Context, state ScaResponseState) ([]byte, error) {
	if state == nil {
		return nil, NewScaError(KindDecode, "authorisation state is required")
	}
	var payload any
	switch typed := state.(type) {
	case LoginState:
		typed.StatusDate = typed.StatusDate.UTC()
		payload = typed
	case ConsentState:
		typed.StatusDate = typed.StatusDate.UTC()
		payload = typed
	case PaymentState:
		typed.StatusDate = typed.StatusDate.UTC()
		payload = typed
	default:
		return nil, wrapScaError(KindDecode, ErrUnknownStateVariant, fmt.Sprintf("cannot encode state variant %T", state))
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, wrapScaError(KindDecode, err, "encode authorisation state")
	}
	encoded, err := json.Marshal(stateEnvelope{
		ObjectType: state.Variant(),
		Version:    StatePayloadVersionV1,
		State:      raw,
	})
	if err != nil {
		return nil, wrapScaError(KindDecode, err, "encode authorisation state envelope")
	}
	return encoded, nil
}

func (JSONStateCodec) Decode(_ context.Context, blob []byte, expected ...StateVariant) (ScaResponseState, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, wrapScaError(KindDecode, ErrNoPriorState, "authorisation state is empty")
	}

	envelope := stateEnvelope{}
	if err := strictUnmarshal(blob, &envelope); err != nil {
		return nil, NewScaError(KindDecode, "authorisation state is malformed")
	}
	if envelope.ObjectType == "" {
		return nil, NewScaError(KindDecode, "authorisation state discriminator is missing")
	}
	if envelope.Version != StatePayloadVersionV1 {
		return nil, NewScaError(KindDecode, fmt.Sprintf("authorisation state version %d is not supported", envelope.Version))
	}
	if len(envelope.State) == 0 || bytes.Equal(bytes.TrimSpace(envelope.State), []byte("null")) {
		return nil, NewScaError(KindDecode, "authorisation state payload is missing")
	}

	var state ScaResponseState
	switch envelope.ObjectType {
	case VariantLogin:
		decoded := LoginState{}
		if err := strictUnmarshal(envelope.State, &decoded); err != nil {
			return nil, schemaMismatch(envelope.ObjectType)
		}
		state = decoded
	case VariantConsent:
		decoded := ConsentState{}
		if err := strictUnmarshal(envelope.State, &decoded); err != nil {
			return nil, schemaMismatch(envelope.ObjectType)
		}
		state = decoded
	case VariantPayment:
		decoded := PaymentState{}
		if err := strictUnmarshal(envelope.State, &decoded); err != nil {
			return nil, schemaMismatch(envelope.ObjectType)
		}
		state = decoded
	default:
		return nil, wrapScaError(
			KindDecode,
			ErrUnknownStateVariant,
			fmt.Sprintf("authorisation state discriminator %q is unknown", envelope.ObjectType),
		)
	}

	if status := state.Response().ScaStatus; !status.Valid() {
		return nil, wrapScaError(
			KindDecode,
			ErrInvalidScaStatus,
			fmt.Sprintf("authorisation state carries invalid sca status %q", status),
		)
	}

	if len(expected) > 0 && expected[0] != "" && expected[0] != envelope.ObjectType {
		return nil, NewScaError(
			KindStateMismatch,
			fmt.Sprintf("expected %s but authorisation state holds %s", expected[0], envelope.ObjectType),
		).WithMetadata(map[string]any{
			"expected_variant": string(expected[0]),
			"actual_variant":   string(envelope.ObjectType),
		})
	}
	return state, nil
}

func schemaMismatch(variant StateVariant) error {
	return NewScaError(KindDecode, fmt.Sprintf("authorisation state payload does not match %s", variant))
}

func strictUnmarshal(data []byte, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("core: trailing data after authorisation state")
	}
	return nil
}

// SealedStateCodec encrypts the blob produced by Codec so the bearer token
// never leaves the connector in clear text.
type SealedStateCodec struct {
	Codec   StateCodec
	Secrets SecretProvider
}

func NewSealedStateCodec(codec StateCodec, secrets SecretProvider) *SealedStateCodec {
	if codec == nil {
		codec = JSONStateCodec{}
	}
	return &SealedStateCodec{Codec: codec, Secrets: secrets}
}

func (c *SealedStateCodec) Format() string {
	return c.codec().Format() + "+sealed"
}

func (c *SealedStateCodec) Version() int {
	return c.codec().Version()
}

func (c *SealedStateCodec) Encode(ctx context.Context, state ScaResponseState) ([]byte, error) {
	plain, err := c.codec().Encode(ctx, state)
	if err != nil {
		return nil, err
	}
	if c.Secrets == nil {
		return plain, nil
	}
	sealed, err := c.Secrets.Encrypt(ctx, plain)
	if err != nil {
		return nil, wrapScaError(KindDecode, err, "seal authorisation state")
	}
	return sealed, nil
}

func (c *SealedStateCodec) Decode(ctx context.Context, blob []byte, expected ...StateVariant) (ScaResponseState, error) {
	if len(bytes.TrimSpace(blob)) == 0 || c.Secrets == nil {
		return c.codec().Decode(ctx, blob, expected...)
	}
	plain, err := c.Secrets.Decrypt(ctx, blob)
	if err != nil {
		return nil, NewScaError(KindDecode, "authorisation state cannot be unsealed")
	}
	return c.codec().Decode(ctx, plain, expected...)
}

func (c *SealedStateCodec) codec() StateCodec {
	if c == nil || c.Codec == nil {
		return JSONStateCodec{}
	}
	return c.Codec
}

package transport

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-psd2-sca/core"
)

type wireBearerToken struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type wireScaMethod struct {
	ID          string `json:"authenticationMethodId"`
	Type        string `json:"authenticationType"`
	DisplayName string `json:"name"`
}

type wireChallenge struct {
	Data                  []string `json:"data"`
	ImageLink             string   `json:"imageLink"`
	OtpMaxLength          int      `json:"otpMaxLength"`
	OtpFormat             string   `json:"otpFormat"`
	AdditionalInformation string   `json:"additionalInformation"`
}

type wireScaResponse struct {
	OperationID           string           `json:"operationId"`
	AuthorisationID       string           `json:"authorisationId"`
	ScaStatus             string           `json:"scaStatus"`
	BearerToken           *wireBearerToken `json:"bearerToken"`
	ScaMethods            []wireScaMethod  `json:"scaMethods"`
	ChosenScaMethod       *wireScaMethod   `json:"chosenScaMethod"`
	ChallengeData         *wireChallenge   `json:"challengeData"`
	MultilevelScaRequired bool             `json:"multilevelScaRequired"`
	PartiallyAuthorised   bool             `json:"partiallyAuthorised"`
	StatusDate            string           `json:"statusDate"`
	PsuMessage            string           `json:"psuMessage"`
}

type wireFault struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	DevMessage string `json:"devMessage"`
}

type wireLogin struct {
	Login    string `json:"login"`
	Pin      string `json:"pin"`
	ObjectID string `json:"objectId,omitempty"`
	AuthID   string `json:"authorisationId,omitempty"`
	Kind     string `json:"operationType"`
}

type wireAuthCode struct {
	AuthCode string `json:"authCode"`
}

// decodeScaResponse maps the remote JSON body into the core value. Unknown
// fields are tolerated; an unknown scaStatus is not.
func decodeScaResponse(body []byte) (core.ScaResponse, error) {
	var wire wireScaResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return core.ScaResponse{}, fmt.Errorf("transport: decode sca response: %w", err)
	}

	resp := core.ScaResponse{
		OperationID:           strings.TrimSpace(wire.OperationID),
		AuthorisationID:       strings.TrimSpace(wire.AuthorisationID),
		MultilevelScaRequired: wire.MultilevelScaRequired,
		PartiallyAuthorised:   wire.PartiallyAuthorised,
		PsuMessage:            wire.PsuMessage,
	}
	if strings.TrimSpace(wire.ScaStatus) != "" {
		status, err := core.ParseScaStatus(wire.ScaStatus)
		if err != nil {
			return core.ScaResponse{}, err
		}
		resp.ScaStatus = status
	}
	if wire.BearerToken != nil && strings.TrimSpace(wire.BearerToken.AccessToken) != "" {
		resp.BearerToken = &core.BearerToken{
			AccessToken:  wire.BearerToken.AccessToken,
			TokenType:    wire.BearerToken.TokenType,
			ExpiresIn:    wire.BearerToken.ExpiresIn,
			RefreshToken: wire.BearerToken.RefreshToken,
		}
	}
	if wire.ScaMethods != nil {
		resp.ScaMethods = make([]core.ScaMethod, 0, len(wire.ScaMethods))
		for _, method := range wire.ScaMethods {
			resp.ScaMethods = append(resp.ScaMethods, method.toCore())
		}
	}
	if wire.ChosenScaMethod != nil {
		chosen := wire.ChosenScaMethod.toCore()
		resp.ChosenScaMethod = &chosen
	}
	if wire.ChallengeData != nil {
		resp.Challenge = &core.ChallengeData{
			Data:                  wire.ChallengeData.Data,
			ImageLink:             wire.ChallengeData.ImageLink,
			OtpMaxLength:          wire.ChallengeData.OtpMaxLength,
			OtpFormat:             wire.ChallengeData.OtpFormat,
			AdditionalInformation: wire.ChallengeData.AdditionalInformation,
		}
	}
	if raw := strings.TrimSpace(wire.StatusDate); raw != "" {
		statusDate, err := parseStatusDate(raw)
		if err != nil {
			return core.ScaResponse{}, fmt.Errorf("transport: decode status date: %w", err)
		}
		resp.StatusDate = statusDate
	}
	return resp, nil
}

func (m wireScaMethod) toCore() core.ScaMethod {
	return core.ScaMethod{ID: m.ID, Type: m.Type, DisplayName: m.DisplayName}
}

func parseStatusDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", raw)
}

// decodeFault reads the error body of a non-2xx answer. The body is kept for
// logging only; it never reaches the PSU.
func decodeFault(statusCode int, body []byte) *core.RemoteFault {
	fault := &core.RemoteFault{StatusCode: statusCode}
	var wire wireFault
	if err := json.Unmarshal(body, &wire); err == nil {
		fault.Code = strings.TrimSpace(wire.Code)
		fault.Message = strings.TrimSpace(firstNonEmpty(wire.Message, wire.DevMessage))
		return fault
	}
	fault.Message = strings.TrimSpace(string(body))
	return fault
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

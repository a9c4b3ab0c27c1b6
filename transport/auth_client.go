package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-psd2-sca/core"
	"github.com/google/uuid"
)

// Routes are the path templates of the remote authorisation service.
// Placeholders are {operationId}, {authorisationId}, {methodId} and
// {paymentType}.
type Routes struct {
	LoginConsent string
	LoginPayment string
	SelectMethod string
	ConfirmCode  string
	StartConsent string
	StartPayment string
}

func DefaultRoutes() Routes {
	return Routes{
		LoginConsent: "/users/loginForConsent",
		LoginPayment: "/users/loginForPayment",
		SelectMethod: "/sca/{operationId}/authorisations/{authorisationId}/methods/{methodId}",
		ConfirmCode:  "/sca/{operationId}/authorisations/{authorisationId}/authCode",
		StartConsent: "/consents/{operationId}/start",
		StartPayment: "/payments/{paymentType}",
	}
}

// RESTAuthClient implements core.AuthClient over JSON/HTTP.
type RESTAuthClient struct {
	BaseURL   string
	Routes    Routes
	Transport Doer
	Timeout   time.Duration
	RequestID func() string
}

func NewRESTAuthClient(baseURL string, transport Doer) *RESTAuthClient {
	if transport == nil {
		transport = NewRESTAdapter(nil)
	}
	return &RESTAuthClient{
		BaseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		Routes:    DefaultRoutes(),
		Transport: transport,
		RequestID: uuid.NewString,
	}
}

func (c *RESTAuthClient) Login(ctx context.Context, req core.LoginRequest) (core.ScaResponse, error) {
	route := c.Routes.LoginConsent
	operationType := "CONSENT"
	if req.Kind == core.OperationKindPayment {
		route = c.Routes.LoginPayment
		operationType = "PAYMENT"
	}
	body, err := json.Marshal(wireLogin{
		Login:    req.LoginID,
		Pin:      req.Password,
		ObjectID: req.OperationID,
		AuthID:   req.AuthorisationID,
		Kind:     operationType,
	})
	if err != nil {
		return core.ScaResponse{}, err
	}
	return c.call(ctx, http.MethodPost, expandRoute(route, nil), body)
}

func (c *RESTAuthClient) SelectMethod(ctx context.Context, operationID string, authorisationID string, methodID string) (core.ScaResponse, error) {
	path := expandRoute(c.Routes.SelectMethod, map[string]string{
		"operationId":     operationID,
		"authorisationId": authorisationID,
		"methodId":        methodID,
	})
	return c.call(ctx, http.MethodPut, path, nil)
}

func (c *RESTAuthClient) ConfirmCode(ctx context.Context, operationID string, authorisationID string, code string) (core.ScaResponse, error) {
	body, err := json.Marshal(wireAuthCode{AuthCode: code})
	if err != nil {
		return core.ScaResponse{}, err
	}
	path := expandRoute(c.Routes.ConfirmCode, map[string]string{
		"operationId":     operationID,
		"authorisationId": authorisationID,
	})
	return c.call(ctx, http.MethodPut, path, body)
}

func (c *RESTAuthClient) StartAuthorization(ctx context.Context, req core.StartRequest) (core.ScaResponse, error) {
	var path string
	switch req.Kind {
	case core.OperationKindConsent:
		path = expandRoute(c.Routes.StartConsent, map[string]string{"operationId": req.OperationID})
	case core.OperationKindPayment:
		path = expandRoute(c.Routes.StartPayment, map[string]string{
			"operationId": req.OperationID,
			"paymentType": string(req.PaymentType),
		})
	default:
		return core.ScaResponse{}, fmt.Errorf("%w: %q", core.ErrUnsupportedOperation, req.Kind)
	}
	body := req.Payload
	if len(body) == 0 {
		body = []byte("{}")
	}
	return c.call(ctx, http.MethodPost, path, body)
}

func (c *RESTAuthClient) call(ctx context.Context, method string, path string, body []byte) (core.ScaResponse, error) {
	if c == nil || c.Transport == nil {
		return core.ScaResponse{}, &core.RemoteFault{Err: fmt.Errorf("transport: auth client is not configured")}
	}
	req := core.TransportRequest{
		Method:  method,
		URL:     c.BaseURL + path,
		Body:    body,
		Timeout: c.Timeout,
	}
	if c.RequestID != nil {
		req.RequestID = c.RequestID()
	}

	res, err := c.Transport.Do(ctx, req)
	if err != nil {
		return core.ScaResponse{}, &core.RemoteFault{Err: err}
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return core.ScaResponse{}, decodeFault(res.StatusCode, res.Body)
	}
	if len(strings.TrimSpace(string(res.Body))) == 0 {
		return core.ScaResponse{}, nil
	}
	resp, err := decodeScaResponse(res.Body)
	if err != nil {
		// an unreadable 2xx body is handled like a broken connection
		return core.ScaResponse{}, &core.RemoteFault{Err: err}
	}
	return resp, nil
}

func expandRoute(route string, values map[string]string) string {
	for key, value := range values {
		route = strings.ReplaceAll(route, "{"+key+"}", url.PathEscape(strings.TrimSpace(value)))
	}
	return route
}

var _ core.AuthClient = (*RESTAuthClient)(nil)

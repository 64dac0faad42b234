// Package eeclient implements the HTTP+JWT client used to reach the
// execution engine's Engine-API endpoint.
package eeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/sigp/eleel/internal/enginetypes"
)

// Client talks to a single execution engine's Engine-API HTTP endpoint,
// authenticating every request with a fresh short-lived JWT per the
// execution-apis authentication spec (HS256, "iat" claim, 60s max skew).
type Client struct {
	url        string
	secret     []byte
	httpClient *http.Client

	nextID func() int64
}

// New constructs a Client targeting url, authenticating with secret (the
// raw 32-byte JWT secret shared with the engine).
func New(url string, secret []byte, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	var id int64
	return &Client{
		url:        url,
		secret:     secret,
		httpClient: httpClient,
		nextID:     func() int64 { id++; return id },
	}
}

// token mints a fresh bearer token for a single request.
func (c *Client) token() (string, error) {
	claims := jwt.RegisteredClaims{
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(c.secret)
}

// Call sends a single JSON-RPC request and decodes its result into out (if
// out is non-nil). It is the one transport primitive every typed method
// below and the passthrough proxy methods build on.
func (c *Client) Call(ctx context.Context, method string, params any, out any) error {
	tok, err := c.token()
	if err != nil {
		return fmt.Errorf("eeclient: mint token: %w", err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("eeclient: marshal params: %w", err)
	}
	reqBody, err := json.Marshal(enginetypes.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprintf("%d", c.nextID())),
		Method:  method,
		Params:  paramsJSON,
	})
	if err != nil {
		return fmt.Errorf("eeclient: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("eeclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("eeclient: %s: %w", method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("eeclient: read response: %w", err)
	}

	var rpcResp enginetypes.Response
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("eeclient: decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil {
		return nil
	}
	resultJSON, err := json.Marshal(rpcResp.Result)
	if err != nil {
		return fmt.Errorf("eeclient: re-marshal result: %w", err)
	}
	return json.Unmarshal(resultJSON, out)
}

// ForkchoiceUpdated calls engine_forkchoiceUpdatedV3 (the superset shape;
// earlier-version payload attributes are a subset of the same fields).
func (c *Client) ForkchoiceUpdated(ctx context.Context, state enginetypes.ForkchoiceStateV1, attrs *enginetypes.PayloadAttributes) (enginetypes.ForkchoiceUpdatedResponse, error) {
	var out enginetypes.ForkchoiceUpdatedResponse
	err := c.Call(ctx, "engine_forkchoiceUpdatedV3", []any{state, attrs}, &out)
	return out, err
}

// NewPayload calls engine_newPayloadV3.
func (c *Client) NewPayload(ctx context.Context, payload *enginetypes.ExecutionPayload) (enginetypes.PayloadStatusV1, error) {
	var out enginetypes.PayloadStatusV1
	err := c.Call(ctx, "engine_newPayloadV3", []any{payload}, &out)
	return out, err
}

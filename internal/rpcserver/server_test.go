package rpcserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"

	"github.com/sigp/eleel/internal/elog"
	"github.com/sigp/eleel/internal/enginetypes"
)

func testServer(t *testing.T, proxy *fakeProxy, controllerSecret []byte, clientSecrets map[string][]byte) *Server {
	t.Helper()
	return &Server{
		Dispatcher:     testDispatcher(proxy),
		ControllerAuth: NewControllerAuth(controllerSecret),
		ClientAuth:     NewClientAuth(clientSecrets),
		Logger:         elog.New(slog.LevelError, io.Discard),
	}
}

func TestServerHealthEndpoint(t *testing.T) {
	s := testServer(t, &fakeProxy{}, []byte("ctrl"), map[string][]byte{"teku": []byte("teku")})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestServerControllerEndpointRequiresAuth(t *testing.T) {
	s := testServer(t, &fakeProxy{}, []byte("ctrl"), map[string][]byte{"teku": []byte("teku")})
	req := httptest.NewRequest(http.MethodPost, "/canonical", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func authedRequest(t *testing.T, method, path, body string, secret []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{})
	s, err := tok.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+s)
	return req
}

func TestServerControllerEndpointDispatchesSingleRequest(t *testing.T) {
	proxy := &fakeProxy{result: "ok"}
	ctrlSecret := []byte("ctrl")
	s := testServer(t, proxy, ctrlSecret, map[string][]byte{"teku": []byte("teku")})

	body := `{"jsonrpc":"2.0","id":1,"method":"eth_chainId","params":[]}`
	req := authedRequest(t, http.MethodPost, "/canonical", body, ctrlSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp enginetypes.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error in response: %+v", resp.Error)
	}
	if resp.Result != "ok" {
		t.Fatalf("result = %v, want ok", resp.Result)
	}
}

func TestServerRejectsInvalidJSONRPCVersion(t *testing.T) {
	ctrlSecret := []byte("ctrl")
	s := testServer(t, &fakeProxy{}, ctrlSecret, map[string][]byte{"teku": []byte("teku")})

	body := `{"jsonrpc":"1.0","id":1,"method":"eth_chainId"}`
	req := authedRequest(t, http.MethodPost, "/canonical", body, ctrlSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp enginetypes.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != enginetypes.InvalidRequestCode {
		t.Fatalf("expected an invalid request error, got %+v", resp.Error)
	}
}

func TestServerHandlesBatchRequestsOnClientEndpoint(t *testing.T) {
	proxy := &fakeProxy{result: "ok"}
	clientSecret := []byte("teku")
	s := testServer(t, proxy, []byte("ctrl"), map[string][]byte{"teku": clientSecret})

	body := `[{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},{"jsonrpc":"2.0","id":2,"method":"eth_chainId"}]`
	req := authedRequest(t, http.MethodPost, "/", body, clientSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resps []enginetypes.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resps); err != nil {
		t.Fatalf("decode batch response: %v (body: %s)", err, rec.Body.String())
	}
	if len(resps) != 2 {
		t.Fatalf("got %d responses, want 2", len(resps))
	}
}

func TestServerRejectsBatchRequestsOnControllerEndpoint(t *testing.T) {
	proxy := &fakeProxy{result: "ok"}
	ctrlSecret := []byte("ctrl")
	s := testServer(t, proxy, ctrlSecret, map[string][]byte{"teku": []byte("teku")})

	body := `[{"jsonrpc":"2.0","id":1,"method":"eth_chainId"},{"jsonrpc":"2.0","id":2,"method":"eth_chainId"}]`
	req := authedRequest(t, http.MethodPost, "/canonical", body, ctrlSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp enginetypes.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rec.Body.String())
	}
	if resp.Error == nil || resp.Error.Code != enginetypes.InvalidRequestCode {
		t.Fatalf("expected an invalid request error rejecting the batch, got %+v", resp.Error)
	}
}

func TestServerReturnsParseErrorOnMalformedJSON(t *testing.T) {
	ctrlSecret := []byte("ctrl")
	s := testServer(t, &fakeProxy{}, ctrlSecret, map[string][]byte{"teku": []byte("teku")})

	req := authedRequest(t, http.MethodPost, "/canonical", `not json`, ctrlSecret)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var resp enginetypes.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != enginetypes.ParseErrorCode {
		t.Fatalf("expected a parse error, got %+v", resp.Error)
	}
}

//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/habitquest/platform/internal/auth"
)

// PlayerToken issues a player-realm token for userID.
func (env *TestEnv) PlayerToken(userID uuid.UUID) string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmPlayer, userID, "")
	if err != nil {
		env.t.Fatalf("PlayerToken: %v", err)
	}
	return token
}

// ServiceToken issues a service-realm token for a collaborating backend.
func (env *TestEnv) ServiceToken() string {
	env.t.Helper()
	token, err := env.JWTMgr.GenerateToken(auth.RealmService, uuid.New(), "habit-tracker")
	if err != nil {
		env.t.Fatalf("ServiceToken: %v", err)
	}
	return token
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	resp, err := http.Get(env.Server.URL + path)
	if err != nil {
		env.t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token, nil)
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token, nil)
}

// POSTWithKey performs an authenticated POST carrying an Idempotency-Key.
func (env *TestEnv) POSTWithKey(path string, body interface{}, token, key string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token, map[string]string{"Idempotency-Key": key})
}

// PUT performs an authenticated PUT request.
func (env *TestEnv) PUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPut, path, body, token, nil)
}

func (env *TestEnv) do(method, path string, body interface{}, token string, header map[string]string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

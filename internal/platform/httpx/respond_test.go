package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("mrs: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("username taken: %w", ErrDuplicate), http.StatusConflict},
		{fmt.Errorf("already issued: %w", ErrConflict), http.StatusConflict},
		{fmt.Errorf("quantity: %w", ErrValidation), http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, tc.err)
		require.Equal(t, tc.status, rr.Code, tc.err.Error())

		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
		if tc.status == http.StatusInternalServerError {
			require.Empty(t, body.Detail)
		} else {
			require.Equal(t, tc.err.Error(), body.Detail)
		}
	}
}

func TestDecodeAndValidate(t *testing.T) {
	type payload struct {
		Name     string  `json:"name" validate:"required"`
		Quantity float64 `json:"quantity" validate:"gt=0"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Reactive Red","quantity":5}`))
	var ok payload
	require.NoError(t, DecodeAndValidate(req, &ok))
	require.Equal(t, "Reactive Red", ok.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"","quantity":0}`))
	var bad payload
	err := DecodeAndValidate(req, &bad)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Name is required")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{not json`))
	require.ErrorIs(t, DecodeAndValidate(req, &bad), ErrValidation)
}

func TestDecodeJSONRejectsTrailingAndOversizedBodies(t *testing.T) {
	var v map[string]any

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1}{"b":2}`))
	require.ErrorIs(t, DecodeJSON(req, &v), ErrValidation)

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	require.ErrorIs(t, DecodeJSON(req, &v), ErrValidation)

	big := `{"note":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	err := DecodeJSON(req, &v)
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "exceeds")
}

func TestProblemSetsProblemContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	Problem(rr, http.StatusTooManyRequests, "Too Many Requests", "slow down")
	require.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	var body ProblemDetail
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "about:blank", body.Type)
	require.Equal(t, "slow down", body.Detail)
}

// SPDX-License-Identifier: MPL-2.0

// Package controlplane provides layer.ControlPlane implementations: an HTTP
// client for a function-compute gateway and an in-memory control plane used by
// dry runs and tests.
package controlplane

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/invowk/layerdeploy/internal/layer"
)

const (
	codeLayerNotFound    = "LayerNotFound"
	codeFunctionNotFound = "FunctionNotFound"
)

var (
	// ErrLayerNotFound is layer.ErrLayerNotFound, re-exported for callers that
	// only import this package.
	ErrLayerNotFound = layer.ErrLayerNotFound
	// ErrFunctionNotFound is returned when a service/function pair does not exist.
	ErrFunctionNotFound = errors.New("function not found")
)

// APIError is a non-2xx answer from the gateway.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("gateway returned %d", e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

// Unwrap maps well-known not-found answers to their sentinels.
func (e *APIError) Unwrap() error {
	if e.StatusCode != http.StatusNotFound {
		return nil
	}
	switch e.Code {
	case codeLayerNotFound:
		return ErrLayerNotFound
	case codeFunctionNotFound:
		return ErrFunctionNotFound
	}
	return nil
}

// SPDX-License-Identifier: MPL-2.0

package controlplane

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/invowk/layerdeploy/internal/layer"
)

var fixedNow = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, WithCredentials("AKID", "secret"), WithClock(fixedNow), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestNewClient_InvalidEndpoint(t *testing.T) {
	t.Parallel()

	for _, endpoint := range []string{"", "fc.example.com", "://bad"} {
		if _, err := NewClient(endpoint); err == nil {
			t.Errorf("NewClient(%q) expected error", endpoint)
		}
	}
}

func TestClient_GetFunctionLayers(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/services/svc/functions/fn" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		writeJSON(t, w, http.StatusOK, functionWire{
			ServiceName:  "svc",
			FunctionName: "fn",
			Layers:       []string{"acs:fc:r:1:layers/other/versions/2"},
		})
	})

	got, err := c.GetFunctionLayers(context.Background(), "svc", "fn")
	if err != nil {
		t.Fatalf("GetFunctionLayers() error = %v", err)
	}
	if !slices.Equal(got, []string{"acs:fc:r:1:layers/other/versions/2"}) {
		t.Errorf("GetFunctionLayers() = %v", got)
	}
}

func TestClient_ListLayerVersions(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		writeJSON(t, w, http.StatusOK, listLayerVersionsWire{Layers: []layerVersionWire{
			{LayerName: "deps", Version: 3, Description: "d node_modules@ab.zip", LayerVersionArn: "arn:3"},
			{LayerName: "deps", Version: 2, Description: "old", LayerVersionArn: "arn:2"},
		}})
	})

	got, err := c.ListLayerVersions(context.Background(), "deps", 10)
	if err != nil {
		t.Fatalf("ListLayerVersions() error = %v", err)
	}
	want := []layer.LayerVersion{
		{Name: "deps", Version: 3, Description: "d node_modules@ab.zip", Ref: "arn:3"},
		{Name: "deps", Version: 2, Description: "old", Ref: "arn:2"},
	}
	if !slices.Equal(got, want) {
		t.Errorf("ListLayerVersions() = %+v, want %+v", got, want)
	}
}

func TestClient_ListLayerVersions_NotFound(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		code      string
		wantLayer bool
	}{
		{"layer not found", http.StatusNotFound, "LayerNotFound", true},
		{"other 404", http.StatusNotFound, "ServiceNotFound", false},
		{"server error", http.StatusInternalServerError, "InternalError", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(headerRequestID, "req-1")
				writeJSON(t, w, tt.status, errorWire{Code: tt.code, Message: "nope"})
			})
			_, err := c.ListLayerVersions(context.Background(), "deps", 10)
			if err == nil {
				t.Fatal("ListLayerVersions() expected error")
			}
			if got := errors.Is(err, layer.ErrLayerNotFound); got != tt.wantLayer {
				t.Errorf("errors.Is(ErrLayerNotFound) = %v, want %v (err=%v)", got, tt.wantLayer, err)
			}
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("error %v is not *APIError", err)
			}
			if apiErr.RequestID != "req-1" || apiErr.Code != tt.code {
				t.Errorf("APIError = %+v", apiErr)
			}
		})
	}
}

func TestClient_CreateLayerVersion(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/layers/deps/versions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body createLayerVersionWire
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		if body.Code.OSSBucketName != "bucket" || body.Code.OSSObjectName != "fc-deploy/deps/node_modules@ab.zip" {
			t.Errorf("code = %+v", body.Code)
		}
		if !slices.Equal(body.CompatibleRuntime, []string{"nodejs18"}) {
			t.Errorf("compatibleRuntime = %v", body.CompatibleRuntime)
		}
		writeJSON(t, w, http.StatusOK, layerVersionWire{
			LayerName: "deps", Version: 4, Description: body.Description, LayerVersionArn: "arn:4",
		})
	})

	v, err := c.CreateLayerVersion(context.Background(), layer.CreateLayerVersionRequest{
		LayerName:          "deps",
		Description:        "deps node_modules@ab.zip",
		CompatibleRuntimes: []string{"nodejs18"},
		Code:               layer.CodeRef{Bucket: "bucket", Key: "fc-deploy/deps/node_modules@ab.zip"},
	})
	if err != nil {
		t.Fatalf("CreateLayerVersion() error = %v", err)
	}
	if v.Version != 4 || v.Ref != "arn:4" || v.Description != "deps node_modules@ab.zip" {
		t.Errorf("CreateLayerVersion() = %+v", v)
	}
}

func TestClient_UpdateFunction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		layers     []string
		wantLayers bool
	}{
		{"with layers", []string{"arn:4"}, true},
		{"code only", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				raw, _ := io.ReadAll(r.Body)
				var body map[string]json.RawMessage
				if err := json.Unmarshal(raw, &body); err != nil {
					t.Errorf("decoding body: %v", err)
				}
				if _, ok := body["layers"]; ok != tt.wantLayers {
					t.Errorf("layers present = %v, want %v", ok, tt.wantLayers)
				}
				var code zipCodeWire
				_ = json.Unmarshal(body["code"], &code)
				if code.ZipFile != base64.StdEncoding.EncodeToString([]byte("PK")) {
					t.Errorf("zipFile = %q", code.ZipFile)
				}
				writeJSON(t, w, http.StatusOK, functionWire{CodeSize: 2, CPU: 0.5, MemorySize: 1024})
			})
			res, err := c.UpdateFunction(context.Background(), layer.UpdateFunctionRequest{
				Service: "svc", Function: "fn", Code: []byte("PK"), Layers: tt.layers,
			})
			if err != nil {
				t.Fatalf("UpdateFunction() error = %v", err)
			}
			want := layer.FunctionUpdate{StatusCode: http.StatusOK, CodeSize: 2, CPU: 0.5, MemorySize: 1024}
			if *res != want {
				t.Errorf("UpdateFunction() = %+v, want %+v", *res, want)
			}
		})
	}
}

func TestClient_SignsRequests(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		date := r.Header.Get(headerDate)
		if date != "Wed, 01 May 2024 12:00:00 GMT" {
			t.Errorf("%s = %q", headerDate, date)
		}
		digest := r.Header.Get(headerContentSHA256)
		want := authScheme + " AKID:" + Signature("secret", r.Method, r.URL.RequestURI(), date, digest)
		if got := r.Header.Get("Authorization"); got != want {
			t.Errorf("Authorization = %q, want %q", got, want)
		}
		writeJSON(t, w, http.StatusOK, listLayerVersionsWire{})
	})

	if _, err := c.ListLayerVersions(context.Background(), "deps", 10); err != nil {
		t.Fatalf("ListLayerVersions() error = %v", err)
	}
}

func TestClient_UnsignedWithoutCredentials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"layers":[]}`)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.GetFunctionLayers(context.Background(), "svc", "fn"); err != nil {
		t.Fatalf("GetFunctionLayers() error = %v", err)
	}
}

func TestClient_NonJSONError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	_, err := c.GetFunctionLayers(context.Background(), "svc", "fn")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error %v is not *APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || !strings.Contains(apiErr.Message, "bad gateway") {
		t.Errorf("APIError = %+v", apiErr)
	}
	if errors.Is(err, layer.ErrLayerNotFound) {
		t.Error("502 reported as ErrLayerNotFound")
	}
}

func TestSignature_Deterministic(t *testing.T) {
	t.Parallel()

	a := Signature("k", "GET", "/x?limit=1", "d", "h")
	b := Signature("k", "GET", "/x?limit=1", "d", "h")
	if a != b {
		t.Error("signature not deterministic")
	}
	if a == Signature("other", "GET", "/x?limit=1", "d", "h") {
		t.Error("signature does not depend on secret")
	}
}

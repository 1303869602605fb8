// SPDX-License-Identifier: MPL-2.0

package controlplane

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/invowk/layerdeploy/internal/layer"
)

const (
	// maxJSONResponseBytes is the upper bound on a gateway response body.
	maxJSONResponseBytes = 10 << 20

	headerDate          = "X-Ld-Date"
	headerContentSHA256 = "X-Ld-Content-Sha256"
	headerRequestID     = "X-Ld-Request-Id"
	authScheme          = "LD-HMAC-SHA256"
)

type (
	// Client talks JSON to a function-compute gateway.
	Client struct {
		httpClient *http.Client
		baseURL    string
		keyID      string
		secret     string
		userAgent  string
		now        func() time.Time
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)

	functionWire struct {
		ServiceName  string   `json:"serviceName"`
		FunctionName string   `json:"functionName"`
		Layers       []string `json:"layers"`
		CodeSize     int64    `json:"codeSize"`
		CPU          float64  `json:"cpu"`
		MemorySize   int      `json:"memorySize"`
	}

	layerVersionWire struct {
		LayerName         string   `json:"layerName"`
		Version           int      `json:"version"`
		Description       string   `json:"description"`
		LayerVersionArn   string   `json:"layerVersionArn"`
		CompatibleRuntime []string `json:"compatibleRuntime,omitempty"`
	}

	listLayerVersionsWire struct {
		Layers []layerVersionWire `json:"layers"`
	}

	ossCodeWire struct {
		OSSBucketName string `json:"ossBucketName"`
		OSSObjectName string `json:"ossObjectName"`
	}

	createLayerVersionWire struct {
		Description       string      `json:"description"`
		CompatibleRuntime []string    `json:"compatibleRuntime"`
		Code              ossCodeWire `json:"code"`
	}

	zipCodeWire struct {
		ZipFile string `json:"zipFile"`
	}

	updateFunctionWire struct {
		Code   *zipCodeWire `json:"code,omitempty"`
		Layers []string     `json:"layers,omitempty"`
	}

	errorWire struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	}
)

// WithHTTPClient sets a custom HTTP client, useful for tests or proxy configurations.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithCredentials sets the access key used to sign requests.
func WithCredentials(keyID, secret string) ClientOption {
	return func(cl *Client) {
		cl.keyID = keyID
		cl.secret = secret
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) ClientOption {
	return func(cl *Client) { cl.userAgent = ua }
}

// WithClock overrides the time source used for request dates.
func WithClock(now func() time.Time) ClientOption {
	return func(cl *Client) { cl.now = now }
}

// NewClient creates a Client for the gateway at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid control plane endpoint %q", baseURL)
	}
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  "layerdeploy/dev",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetFunctionLayers implements layer.ControlPlane.
func (c *Client) GetFunctionLayers(ctx context.Context, service, function string) ([]string, error) {
	var fn functionWire
	if err := c.do(ctx, http.MethodGet, functionPath(service, function), nil, &fn); err != nil {
		return nil, fmt.Errorf("getting function %s/%s: %w", service, function, err)
	}
	return fn.Layers, nil
}

// ListLayerVersions implements layer.ControlPlane.
func (c *Client) ListLayerVersions(ctx context.Context, layerName string, maxItems int) ([]layer.LayerVersion, error) {
	p := "/layers/" + url.PathEscape(layerName) + "/versions"
	if maxItems > 0 {
		p += "?limit=" + strconv.Itoa(maxItems)
	}
	var resp listLayerVersionsWire
	if err := c.do(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, fmt.Errorf("listing versions of layer %s: %w", layerName, err)
	}
	out := make([]layer.LayerVersion, 0, len(resp.Layers))
	for _, v := range resp.Layers {
		out = append(out, v.toLayerVersion())
	}
	return out, nil
}

// CreateLayerVersion implements layer.ControlPlane.
func (c *Client) CreateLayerVersion(ctx context.Context, req layer.CreateLayerVersionRequest) (*layer.LayerVersion, error) {
	body := createLayerVersionWire{
		Description:       req.Description,
		CompatibleRuntime: req.CompatibleRuntimes,
		Code:              ossCodeWire{OSSBucketName: req.Code.Bucket, OSSObjectName: req.Code.Key},
	}
	var resp layerVersionWire
	p := "/layers/" + url.PathEscape(req.LayerName) + "/versions"
	if err := c.do(ctx, http.MethodPost, p, body, &resp); err != nil {
		return nil, fmt.Errorf("publishing layer %s: %w", req.LayerName, err)
	}
	v := resp.toLayerVersion()
	return &v, nil
}

// UpdateFunction implements layer.ControlPlane.
func (c *Client) UpdateFunction(ctx context.Context, req layer.UpdateFunctionRequest) (*layer.FunctionUpdate, error) {
	body := updateFunctionWire{Layers: req.Layers}
	if req.Code != nil {
		body.Code = &zipCodeWire{ZipFile: base64.StdEncoding.EncodeToString(req.Code)}
	}
	var fn functionWire
	status, err := c.doStatus(ctx, http.MethodPut, functionPath(req.Service, req.Function), body, &fn)
	if err != nil {
		return nil, fmt.Errorf("updating function %s/%s: %w", req.Service, req.Function, err)
	}
	return &layer.FunctionUpdate{
		StatusCode: status,
		CodeSize:   fn.CodeSize,
		CPU:        fn.CPU,
		MemorySize: fn.MemorySize,
	}, nil
}

func (c *Client) do(ctx context.Context, method, p string, in, out any) error {
	_, err := c.doStatus(ctx, method, p, in, out)
	return err
}

func (c *Client) doStatus(ctx context.Context, method, p string, in, out any) (int, error) {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+p, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.sign(req, payload)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, parseAPIError(resp, body)
	}
	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// sign sets the date, content digest and authorization headers. Requests are
// left unsigned when no access key is configured.
func (c *Client) sign(req *http.Request, payload []byte) {
	date := c.now().UTC().Format(http.TimeFormat)
	sum := sha256.Sum256(payload)
	digest := hex.EncodeToString(sum[:])
	req.Header.Set(headerDate, date)
	req.Header.Set(headerContentSHA256, digest)
	if c.keyID == "" {
		return
	}
	sig := Signature(c.secret, req.Method, req.URL.RequestURI(), date, digest)
	req.Header.Set("Authorization", authScheme+" "+c.keyID+":"+sig)
}

// Signature computes the base64 HMAC-SHA256 of the canonical request
// "<method>\n<request-uri>\n<date>\n<content-sha256>".
func Signature(secret, method, requestURI, date, contentSHA256 string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = io.WriteString(mac, strings.Join([]string{method, requestURI, date, contentSHA256}, "\n"))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseAPIError(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: resp.Header.Get(headerRequestID)}
	var w errorWire
	if err := json.Unmarshal(body, &w); err == nil {
		apiErr.Code = w.Code
		apiErr.Message = w.Message
		if w.RequestID != "" {
			apiErr.RequestID = w.RequestID
		}
	} else if len(body) > 0 {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}

func (w layerVersionWire) toLayerVersion() layer.LayerVersion {
	return layer.LayerVersion{
		Name:        w.LayerName,
		Version:     w.Version,
		Description: w.Description,
		Ref:         w.LayerVersionArn,
	}
}

func functionPath(service, function string) string {
	return "/services/" + url.PathEscape(service) + "/functions/" + url.PathEscape(function)
}

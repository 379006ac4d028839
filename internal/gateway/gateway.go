package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/felnan/snapfeed/internal/domain"
	context_ "github.com/felnan/snapfeed/internal/infra/context"
	"github.com/felnan/snapfeed/internal/infra/logging"
)

const (
	RequestIDHeader     = "X-Request-ID"
	AuthorizationHeader = "Authorization"
)

// Config holds configuration for the API gateway.
type Config struct {
	// BaseURL is the root of the remote service
	BaseURL string `env:"BASE_URL" default:"https://felnan.pythonanywhere.com"`

	// Timeout is the fixed per-request timeout; on expiry the request
	// resolves as a transport failure
	Timeout time.Duration `env:"TIMEOUT" default:"50s"`

	// UserAgent is sent with every request
	UserAgent string `env:"USER_AGENT" default:"snapfeed-client"`
}

// File is one part of a multipart upload.
type File struct {
	// Field is the form field name (e.g. "image", "avatar")
	Field string
	// Name is the filename reported to the server
	Name string
	// Data is the raw file content
	Data []byte
}

// Gateway is the single HTTP entry point to the remote service. It injects
// the stored bearer token into every outgoing request, distinguishes JSON
// bodies from multipart bodies, and normalizes all failures into
// domain.APIError. It never blocks waiting for a session to exist: when no
// credential is stored the request goes out unauthenticated and the server
// decides whether to reject it.
type Gateway struct {
	httpClient *http.Client
	creds      credential
	log        logging.Logger
	cfg        Config

	hookMu      sync.Mutex
	expiryHooks []func()
}

// credential is the subset of the credential store the gateway reads.
type credential interface {
	Get(ctx context.Context) (string, bool, error)
}

// New creates a new Gateway with the given configuration and credential
// reader. If httpClient is nil, a client with the configured timeout is used.
func New(cfg Config, creds credential, httpClient *http.Client) *Gateway {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Gateway{
		httpClient: httpClient,
		creds:      creds,
		log:        logging.GetLogger("gateway"),
		cfg:        cfg,
	}
}

// OnAuthExpired registers a hook invoked whenever the remote service rejects
// the bearer token. The session controller uses this to force its expiry
// transition.
func (gw *Gateway) OnAuthExpired(hook func()) {
	gw.hookMu.Lock()
	defer gw.hookMu.Unlock()

	gw.expiryHooks = append(gw.expiryHooks, hook)
}

// Get performs an authenticated GET request and decodes the JSON response
// into out (which may be nil).
func (gw *Gateway) Get(ctx context.Context, path string, out any) error {
	return gw.doJSON(ctx, http.MethodGet, path, nil, out)
}

// Post performs a POST request with an optional JSON body.
func (gw *Gateway) Post(ctx context.Context, path string, body, out any) error {
	return gw.doJSON(ctx, http.MethodPost, path, body, out)
}

// Put performs a PUT request with an optional JSON body.
func (gw *Gateway) Put(ctx context.Context, path string, body, out any) error {
	return gw.doJSON(ctx, http.MethodPut, path, body, out)
}

// Upload performs a multipart request with the given form fields and files.
// The multipart writer computes the boundary; the content type is never set
// by hand.
func (gw *Gateway) Upload(
	ctx context.Context,
	method, path string,
	fields map[string]string,
	files []File,
	out any,
) error {
	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return fmt.Errorf("write field %s: %w", name, err)
		}
	}

	for _, file := range files {
		part, err := writer.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return fmt.Errorf("create form file %s: %w", file.Field, err)
		}

		if _, err := part.Write(file.Data); err != nil {
			return fmt.Errorf("write form file %s: %w", file.Field, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	return gw.do(ctx, method, path, writer.FormDataContentType(), &buf, out)
}

func (gw *Gateway) doJSON(ctx context.Context, method, path string, body, out any) error {
	var (
		reader      io.Reader
		contentType string
	)

	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}

		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}

	return gw.do(ctx, method, path, contentType, reader, out)
}

//nolint:cyclop
func (gw *Gateway) do(
	ctx context.Context,
	method, path, contentType string,
	body io.Reader,
	out any,
) (err error) {
	requestID := uuid.NewString()
	ctx = context_.WithRequestID(ctx, requestID)

	log := gw.log.With(logging.Group("http",
		"method", method,
		"path", path,
	))

	defer func() {
		if err != nil {
			log.WarnContext(ctx, "request failed", "error", err)
		} else {
			log.DebugContext(ctx, "request done")
		}
	}()

	url := strings.TrimSuffix(gw.cfg.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}

	req.Header.Set(RequestIDHeader, requestID)
	req.Header.Set("User-Agent", gw.cfg.UserAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	// Attach the bearer token when one is stored. A failed read is treated
	// like absence; the server decides whether to reject the request.
	token, ok, err := gw.creds.Get(ctx)
	if err != nil {
		log.WarnContext(ctx, "credential read failed, sending unauthenticated", "error", err)
	} else if ok {
		req.Header.Set(AuthorizationHeader, "Bearer "+token)
	}

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		//nolint:exhaustruct
		return errors.Join(&domain.APIError{
			Kind:    domain.ErrorKindTransport,
			Message: "no response",
		}, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		//nolint:exhaustruct
		return errors.Join(&domain.APIError{
			Kind:    domain.ErrorKindTransport,
			Message: "no response",
		}, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return gw.normalizeFailure(resp.StatusCode, respBody)
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// normalizeFailure maps a non-2xx response onto the error taxonomy and fires
// the expiry hooks for rejected tokens.
func (gw *Gateway) normalizeFailure(statusCode int, body []byte) error {
	apiErr := &domain.APIError{
		Kind:       domain.ErrorKindValidation,
		StatusCode: statusCode,
		Message:    serverMessage(body),
	}

	switch {
	case statusCode == http.StatusUnauthorized:
		apiErr.Kind = domain.ErrorKindAuthExpired
		gw.fireExpiryHooks()
	case statusCode >= 500:
		apiErr.Kind = domain.ErrorKindServer
	}

	return apiErr
}

func (gw *Gateway) fireExpiryHooks() {
	gw.hookMu.Lock()
	hooks := append([]func(){}, gw.expiryHooks...)
	gw.hookMu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

// serverMessage extracts the server's error message from a failure body.
// The backend uses either {"detail": ...} or {"message": ...}; when neither
// is present a generic message is returned.
func serverMessage(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}

		if payload.Message != "" {
			return payload.Message
		}
	}

	return "request failed"
}

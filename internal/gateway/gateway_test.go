package gateway_test

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felnan/snapfeed/internal/domain"
	"github.com/felnan/snapfeed/internal/gateway"
)

// memCreds implements the gateway's credential reader for testing.
type memCreds struct {
	token string
	err   error
}

func (m *memCreds) Get(_ context.Context) (string, bool, error) {
	if m.err != nil {
		return "", false, m.err
	}

	return m.token, m.token != "", nil
}

func newTestGateway(t *testing.T, creds *memCreds, handler http.HandlerFunc) *gateway.Gateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	//nolint:exhaustruct
	return gateway.New(gateway.Config{BaseURL: server.URL}, creds, server.Client())
}

func TestGateway_BearerInjection(t *testing.T) {
	t.Parallel()

	var gotAuth, gotRequestID string

	gw := newTestGateway(t, &memCreds{token: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(gateway.AuthorizationHeader)
		gotRequestID = r.Header.Get(gateway.RequestIDHeader)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, gw.Get(context.Background(), "/api/posts/", nil))
	assert.Equal(t, "Bearer abc", gotAuth)
	assert.NotEmpty(t, gotRequestID)
}

func TestGateway_NoCredentialSendsUnauthenticated(t *testing.T) {
	t.Parallel()

	var gotAuth string

	gw := newTestGateway(t, &memCreds{}, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(gateway.AuthorizationHeader)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, gw.Get(context.Background(), "/api/posts/", nil))
	assert.Empty(t, gotAuth)
}

func TestGateway_CredentialReadFailureSendsUnauthenticated(t *testing.T) {
	t.Parallel()

	var gotAuth string

	creds := &memCreds{err: errors.New("disk gone")}
	gw := newTestGateway(t, creds, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get(gateway.AuthorizationHeader)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, gw.Get(context.Background(), "/api/posts/", nil))
	assert.Empty(t, gotAuth)
}

func TestGateway_JSONBody(t *testing.T) {
	t.Parallel()

	var (
		gotContentType string
		gotBody        string
	)

	gw := newTestGateway(t, &memCreds{}, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"echo": true}`))
	})

	var out struct {
		Echo bool `json:"echo"`
	}

	err := gw.Post(context.Background(), "/auth/login/", map[string]string{"username": "kofi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotContentType)
	assert.JSONEq(t, `{"username":"kofi"}`, gotBody)
	assert.True(t, out.Echo)
}

func TestGateway_MultipartBody(t *testing.T) {
	t.Parallel()

	var (
		gotContentType string
		gotCaption     string
		gotFile        []byte
	)

	gw := newTestGateway(t, &memCreds{token: "abc"}, func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)

			return
		}

		gotCaption = r.FormValue("caption")

		if file, _, err := r.FormFile("image"); err == nil {
			gotFile, _ = io.ReadAll(file)
		}

		w.WriteHeader(http.StatusCreated)
	})

	err := gw.Upload(context.Background(), http.MethodPost, "/api/posts/",
		map[string]string{"caption": "hello"},
		[]gateway.File{{Field: "image", Name: "photo.jpg", Data: []byte{0xFF, 0xD8, 0x01}}},
		nil,
	)
	require.NoError(t, err)

	mediaType, params, err := mime.ParseMediaType(gotContentType)
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.NotEmpty(t, params["boundary"], "boundary must come from the multipart writer")
	assert.Equal(t, "hello", gotCaption)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01}, gotFile)
}

func TestGateway_ErrorNormalization(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		body        string
		wantKind    domain.ErrorKind
		wantMessage string
	}{
		{
			name:        "4xx with detail",
			status:      http.StatusBadRequest,
			body:        `{"detail": "Invalid credentials"}`,
			wantKind:    domain.ErrorKindValidation,
			wantMessage: "Invalid credentials",
		},
		{
			name:        "4xx with message",
			status:      http.StatusConflict,
			body:        `{"message": "username taken"}`,
			wantKind:    domain.ErrorKindValidation,
			wantMessage: "username taken",
		},
		{
			name:        "4xx with neither field",
			status:      http.StatusBadRequest,
			body:        `{"fields": {"email": "required"}}`,
			wantKind:    domain.ErrorKindValidation,
			wantMessage: "request failed",
		},
		{
			name:        "4xx with non-JSON body",
			status:      http.StatusTeapot,
			body:        "<html>nope</html>",
			wantKind:    domain.ErrorKindValidation,
			wantMessage: "request failed",
		},
		{
			name:        "401 is auth expiry",
			status:      http.StatusUnauthorized,
			body:        `{"detail": "token invalid"}`,
			wantKind:    domain.ErrorKindAuthExpired,
			wantMessage: "token invalid",
		},
		{
			name:        "5xx is server error",
			status:      http.StatusBadGateway,
			body:        `{"message": "upstream down"}`,
			wantKind:    domain.ErrorKindServer,
			wantMessage: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := newTestGateway(t, &memCreds{token: "abc"}, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			err := gw.Get(context.Background(), "/api/posts/", nil)
			require.Error(t, err)

			apiErr, ok := domain.AsAPIError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, apiErr.Kind)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
		})
	}
}

func TestGateway_AuthExpiryFiresHooks(t *testing.T) {
	t.Parallel()

	gw := newTestGateway(t, &memCreds{token: "stale"}, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	fired := 0
	gw.OnAuthExpired(func() { fired++ })

	err := gw.Get(context.Background(), "/api/profiles/me/", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrAuthExpired))
	assert.Equal(t, 1, fired)
}

func TestGateway_TransportFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close() // nothing is listening anymore

	//nolint:exhaustruct
	gw := gateway.New(gateway.Config{BaseURL: baseURL}, &memCreds{}, nil)

	err := gw.Get(context.Background(), "/api/posts/", nil)
	require.Error(t, err)

	apiErr, ok := domain.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrorKindTransport, apiErr.Kind)
	assert.Zero(t, apiErr.StatusCode)
	assert.True(t, strings.Contains(apiErr.Message, "no response"))
}

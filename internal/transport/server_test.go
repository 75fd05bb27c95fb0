package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/eis-ingest/internal/eis"
	"github.com/roman-kulish/eis-ingest/internal/ingest"
	"github.com/roman-kulish/eis-ingest/internal/storage"
)

var testMeta = eis.Metadata{BatteryID: "B01", TestID: "Test_1", SoCPercent: 50, FileName: "b01.csv", TotalRows: 3}

func sample(row int, rangeOhm float64) *eis.Sample {
	return &eis.Sample{
		RowIndex:       row,
		FrequencyHz:    1000,
		ROhm:           0.02,
		XOhm:           -0.004,
		TDegC:          24.5,
		RangeOhm:       rangeOhm,
		TimestampLocal: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

type testEnv struct {
	svc    *ingest.Service
	server *httptest.Server
	client *Client
}

func newTestEnv(t *testing.T, options ...func(*ingest.Service)) *testEnv {
	t.Helper()

	svc, err := ingest.New(t.TempDir(), options...)
	require.NoError(t, err)

	server := httptest.NewServer(NewServer(svc))
	t.Cleanup(func() {
		server.Close()
		_ = svc.Close(context.Background())
	})

	return &testEnv{
		svc:    svc,
		server: server,
		client: NewClient(server.URL, WithHTTPClient(server.Client())),
	}
}

func TestClient_Protocol(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	meta := testMeta
	ack, err := env.client.StartSession(ctx, &meta)
	require.NoError(t, err)
	require.True(t, ack.Ok)
	assert.Equal(t, eis.StatusInProgress, ack.Status)
	id := ack.SessionID

	ack, err = env.client.PushSample(ctx, id, sample(0, 1))
	require.NoError(t, err)
	assert.True(t, ack.Ok)

	ack, err = env.client.PushSample(ctx, id, sample(0, 1))
	require.NoError(t, err)
	assert.False(t, ack.Ok)
	assert.Contains(t, ack.Message, "out of order")

	ack, err = env.client.PushSample(ctx, id, sample(3, 1))
	require.NoError(t, err)
	assert.False(t, ack.Ok)
	assert.Equal(t, "over planned rows", ack.Message)

	health, err := env.client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, Health{Status: "ok", ActiveSessions: 1}, health)

	ack, err = env.client.EndSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, ack.Ok)
	assert.Equal(t, eis.StatusCompleted, ack.Status)

	ack, err = env.client.EndSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, ack.Ok)
	assert.Equal(t, "unknown session", ack.Message)
}

func TestClient_Faults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.client.StartSession(ctx, &eis.Metadata{TestID: "Test_1", SoCPercent: 50})
	assert.True(t, ingest.IsFaultKind(err, ingest.FaultValidation), "got %v", err)

	_, err = env.client.PushSample(ctx, "missing", sample(0, 1))
	fault, ok := ingest.AsFault(err)
	require.True(t, ok)
	assert.Equal(t, ingest.FaultValidation, fault.Kind)
	assert.Equal(t, "unknown session", fault.Reason)

	meta := testMeta
	_, err = env.client.StartSession(ctx, &meta)
	require.NoError(t, err)

	// a second session on the same folder cannot take its lock
	_, err = env.client.StartSession(ctx, &meta)
	assert.True(t, ingest.IsFaultKind(err, ingest.FaultDataFormat), "got %v", err)
}

func TestServer_StatusCodes(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   ingest.FaultKind
	}{
		{"malformed body", http.MethodPost, "/v1/sessions", "{", http.StatusBadRequest, ingest.FaultValidation},
		{"invalid metadata", http.MethodPost, "/v1/sessions", `{"batteryId":"B01","testId":"T","socPercent":101}`, http.StatusUnprocessableEntity, ingest.FaultValidation},
		{"unknown session", http.MethodPost, "/v1/sessions/nope/samples", `{"rowIndex":0,"frequencyHz":1,"rangeOhm":1}`, http.StatusUnprocessableEntity, ingest.FaultValidation},
		{"end unknown session", http.MethodDelete, "/v1/sessions/nope", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			NewServer(env.svc).ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.kind == "" {
				return
			}

			var fault ingest.Fault
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fault))
			assert.Equal(t, tt.kind, fault.Kind)
			assert.NotEmpty(t, fault.Reason)
		})
	}
}

func TestServer_NullBody(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/v1/sessions", "/v1/sessions/nope/samples"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("null"))
			rec := httptest.NewRecorder()

			NewServer(env.svc).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			var fault ingest.Fault
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fault))
			assert.Equal(t, ingest.FaultValidation, fault.Kind)
			assert.Contains(t, fault.Reason, eis.ErrNilInput.Error())
		})
	}
}

func TestServer_CatalogRoutes(t *testing.T) {
	ctx := context.Background()
	catalog := storage.NewSqliteCatalog(filepath.Join(t.TempDir(), "catalog.db"))
	t.Cleanup(func() { _ = catalog.Close() })

	env := newTestEnv(t, ingest.WithCatalog(catalog))

	meta := testMeta
	ack, err := env.client.StartSession(ctx, &meta)
	require.NoError(t, err)

	resp, err := env.server.Client().Get(env.server.URL + "/v1/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sessions []*storage.SessionRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sessions))
	require.Len(t, sessions, 1)
	assert.Equal(t, ack.SessionID, sessions[0].ID)
	assert.Equal(t, storage.StatusInProgress, sessions[0].Status)

	resp2, err := env.server.Client().Get(env.server.URL + "/v1/sessions/" + ack.SessionID)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp3, err := env.server.Client().Get(env.server.URL + "/v1/sessions/unknown")
	require.NoError(t, err)
	defer resp3.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
}

func TestServer_CatalogDisabled(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	rec := httptest.NewRecorder()
	NewServer(env.svc).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

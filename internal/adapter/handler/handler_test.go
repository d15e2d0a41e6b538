package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/marketadmin/internal/adapter/handler"
	"github.com/zots0127/marketadmin/internal/domain/entities"
	"github.com/zots0127/marketadmin/internal/domain/repository"
	"github.com/zots0127/marketadmin/internal/infrastructure/history"
	"github.com/zots0127/marketadmin/internal/infrastructure/memory"
	"github.com/zots0127/marketadmin/internal/infrastructure/objectstore"
	infrarepo "github.com/zots0127/marketadmin/internal/infrastructure/repository"
	"github.com/zots0127/marketadmin/internal/infrastructure/sqlite"
	"github.com/zots0127/marketadmin/internal/usecase"
	"github.com/zots0127/marketadmin/pkg/config"
	"github.com/zots0127/marketadmin/pkg/media"
	"github.com/zots0127/marketadmin/pkg/middleware"
)

const testSecret = "0123456789abcdef-test"

var filenamePattern = regexp.MustCompile(`attachment; filename="Backup_Completo_\d{4}-\d{2}-\d{2}_\d{2}-\d{2}-\d{2}\.json"`)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	admin  string
}

func newTestServer(t *testing.T, signer repository.UploadSigner) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Security.JWTSecret = testSecret
	cfg.Backup.MaxImportBytes = 1 << 20
	cfg.RateLimit.Enabled = false

	store := memory.NewStore(entities.DefaultIDField)
	store.Seed(entities.KindProfiles, entities.Record{"id": "u1", "name": "Ana"}, entities.Record{"id": "u2", "name": "Rui"})
	store.Seed(entities.KindMedia, entities.Record{"id": "m1", "profile_id": "u1"})

	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	settings, err := sqlite.NewSettingRepository(context.Background(), db)
	require.NoError(t, err)

	kinds := cfg.Backup.EntityKinds()
	validator := usecase.NewValidator(kinds, cfg.Backup.IDField)
	backupUseCase := usecase.NewBackupUseCase(
		usecase.NewEntityReader(store, kinds, cfg.Backup.ReadConcurrency),
		usecase.NewAssembler(time.Now),
		validator,
		usecase.NewRestorer(store, validator, kinds),
		usecase.NewCodec(int64(cfg.Backup.MaxImportBytes), time.UTC),
		history.NewRing(cfg.Backup.HistorySize),
	)

	router, err := handler.NewRouter(cfg, handler.Handlers{
		Health:  handler.NewHealthHandler(usecase.NewHealthUseCase(infrarepo.NewHealthRepository(store, "memory", settings), "test")),
		Backup:  handler.NewBackupHandler(backupUseCase),
		Setting: handler.NewSettingHandler(usecase.NewSettingUseCase(settings, nil)),
		Upload:  handler.NewUploadHandler(usecase.NewUploadUseCase(signer)),
		Media:   handler.NewMediaHandler(media.ImageOptions{MaxDimension: 100}),
	}, middleware.NewAuthentication(middleware.AuthConfig{Enabled: true, Secret: testSecret}, nil), nil)
	require.NoError(t, err)

	admin, err := middleware.IssueToken(testSecret, "admin-1", "admin", time.Hour)
	require.NoError(t, err)

	return &testServer{router: router, store: store, admin: admin}
}

func (s *testServer) do(method, path, token string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field, filename string, data []byte, fields map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func validBackup() []byte {
	entitiesJSON := map[string][]map[string]interface{}{}
	metadata := map[string]int{}
	for _, kind := range entities.RequiredKinds {
		entitiesJSON[string(kind)] = []map[string]interface{}{}
		metadata[entities.MetadataKey(kind)] = 0
	}
	entitiesJSON["profiles"] = []map[string]interface{}{{"id": "u9", "name": "Bia"}, {"id": "u1", "name": "Ana Maria"}}
	metadata["total_profiles"] = 2

	data, _ := json.Marshal(map[string]interface{}{
		"created_at": "2024-03-05T14:07:09Z",
		"metadata":   metadata,
		"entities":   entitiesJSON,
	})
	return data
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t, nil)
	viewer, err := middleware.IssueToken(testSecret, "v1", "viewer", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr string
	}{
		{name: "no token", wantErr: "unauthenticated"},
		{name: "garbage token", token: "not-a-jwt", wantErr: "unauthenticated"},
		{name: "viewer", token: viewer, wantErr: "insufficient role"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodPost, "/api/admin/backups", tt.token, nil, "")
			assert.Equal(t, http.StatusForbidden, w.Code)
			assert.Equal(t, tt.wantErr, decode(t, w)["error"])
		})
	}
}

func TestCreateBackup(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(http.MethodPost, "/api/admin/backups", srv.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Regexp(t, filenamePattern, w.Header().Get("Content-Disposition"))
	assert.Contains(t, w.Header().Get("X-Backup-Counts"), "media=1")
	assert.Contains(t, w.Header().Get("X-Backup-Counts"), "profiles=2")

	var snapshot entities.BackupSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 2, snapshot.Metadata["total_profiles"])
	assert.Equal(t, 0, snapshot.Metadata["total_reports"])
	assert.Len(t, snapshot.Entities["profiles"], 2)
	_, err := time.Parse(time.RFC3339Nano, snapshot.CreatedAt)
	assert.NoError(t, err)
}

func TestCreateBackupReadFailure(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.store.FailList(entities.KindMessages, errors.New("timeout"))

	w := srv.do(http.MethodPost, "/api/admin/backups", srv.admin, nil, "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "messages", decode(t, w)["kind"])
	assert.Empty(t, w.Header().Get("Content-Disposition"))
}

func TestValidateBackup(t *testing.T) {
	srv := newTestServer(t, nil)
	missingReports := strings.Replace(string(validBackup()), `"reports":[],`, "", 1)

	form, contentType := multipartBody(t, "file", "Backup_Completo_2024-03-05_14-07-09.json", validBackup(), nil)
	emptyForm, emptyFormType := multipartBody(t, "", "", nil, map[string]string{"note": "x"})

	tests := []struct {
		name        string
		body        []byte
		contentType string
		wantCode    int
		wantError   string
	}{
		{name: "valid raw body", body: validBackup(), contentType: "application/json", wantCode: http.StatusOK},
		{name: "valid multipart", body: form, contentType: contentType, wantCode: http.StatusOK},
		{name: "missing kind", body: []byte(missingReports), contentType: "application/json", wantCode: http.StatusUnprocessableEntity, wantError: "reports"},
		{name: "wrongly typed fields", body: []byte(`{"created_at":12345,"metadata":{"total_profiles":"3"},"entities":{}}`), contentType: "application/json", wantCode: http.StatusUnprocessableEntity, wantError: "metadata.total_profiles is not an integer"},
		{name: "malformed", body: []byte(`{"created_at":`), contentType: "application/json", wantCode: http.StatusBadRequest, wantError: "malformed backup file"},
		{name: "empty body", contentType: "application/json", wantCode: http.StatusBadRequest, wantError: "no backup file"},
		{name: "multipart without file", body: emptyForm, contentType: emptyFormType, wantCode: http.StatusBadRequest, wantError: "no backup file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodPost, "/api/admin/backups/validate", srv.admin, tt.body, tt.contentType)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantError != "" {
				assert.Contains(t, w.Body.String(), tt.wantError)
			}
			if tt.wantCode == http.StatusOK {
				body := decode(t, w)
				assert.Equal(t, true, body["valid"])
				assert.Equal(t, "2024-03-05T14:07:09Z", body["created_at"])
			}
		})
	}

	assert.Equal(t, 2, srv.store.Count(entities.KindProfiles))
}

func TestValidateBackupTooLarge(t *testing.T) {
	srv := newTestServer(t, nil)
	huge := append([]byte(`{"created_at":"`), bytes.Repeat([]byte("a"), 3<<20)...)

	w := srv.do(http.MethodPost, "/api/admin/backups/validate", srv.admin, huge, "application/json")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRestoreBackup(t *testing.T) {
	t.Run("all restored", func(t *testing.T) {
		srv := newTestServer(t, nil)

		w := srv.do(http.MethodPost, "/api/admin/backups/restore", srv.admin, validBackup(), "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var result entities.RestoreResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.True(t, result.Success)
		assert.Equal(t, 2, result.Restored["profiles"])

		rec, ok := srv.store.Get(entities.KindProfiles, "u1")
		require.True(t, ok)
		assert.Equal(t, "Ana Maria", rec["name"])
		assert.Equal(t, 3, srv.store.Count(entities.KindProfiles))
	})

	t.Run("partial failure", func(t *testing.T) {
		srv := newTestServer(t, nil)
		srv.store.FailUpsert(entities.KindProfiles, "u9", errors.New("constraint violation"))

		w := srv.do(http.MethodPost, "/api/admin/backups/restore", srv.admin, validBackup(), "application/json")
		require.Equal(t, http.StatusMultiStatus, w.Code, w.Body.String())

		var result entities.RestoreResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.False(t, result.Success)
		assert.Equal(t, []string{"profiles[0] id=u9: constraint violation"}, result.Errors)
		assert.Equal(t, 1, result.Restored["profiles"])
	})

	t.Run("invalid backup writes nothing", func(t *testing.T) {
		srv := newTestServer(t, nil)
		broken := strings.Replace(string(validBackup()), `"total_profiles":2`, `"total_profiles":5`, 1)
		writes := srv.store.Writes()

		w := srv.do(http.MethodPost, "/api/admin/backups/restore", srv.admin, []byte(broken), "application/json")
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.Equal(t, usecase.ErrInvalidSnapshot.Error(), body["error"])
		assert.NotEmpty(t, body["errors"])
		assert.Equal(t, writes, srv.store.Writes())
	})
}

func TestBackupHistory(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(http.MethodPost, "/api/admin/backups", srv.admin, nil, "")
	srv.do(http.MethodPost, "/api/admin/backups/validate", srv.admin, validBackup(), "application/json")

	w := srv.do(http.MethodGet, "/api/admin/backups/history?limit=10", srv.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		History []entities.HistoryEntry `json:"history"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	assert.Equal(t, entities.OperationImport, list.History[0].Operation)
	assert.Equal(t, entities.OperationBackup, list.History[1].Operation)
	assert.Equal(t, "admin-1", list.History[1].Operator)

	w = srv.do(http.MethodGet, "/api/admin/backups/history/"+list.History[1].ID, srv.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodGet, "/api/admin/backups/history/nope", srv.admin, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodGet, "/api/admin/backups/history?limit=zero", srv.admin, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(http.MethodGet, "/api/admin/settings/free_mode", srv.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "false", decode(t, w)["value"])

	tests := []struct {
		name      string
		key       string
		body      string
		wantCode  int
		wantValue string
	}{
		{name: "bool", key: "free_mode", body: `{"value": true}`, wantCode: http.StatusOK, wantValue: "true"},
		{name: "string", key: "banner_text", body: `{"value": "Bem-vindo"}`, wantCode: http.StatusOK, wantValue: "Bem-vindo"},
		{name: "number", key: "max_photos", body: `{"value": 12}`, wantCode: http.StatusOK, wantValue: "12"},
		{name: "object rejected", key: "free_mode", body: `{"value": {"on": true}}`, wantCode: http.StatusBadRequest},
		{name: "missing value", key: "free_mode", body: `{}`, wantCode: http.StatusBadRequest},
		{name: "not json", key: "free_mode", body: `value=true`, wantCode: http.StatusBadRequest},
		{name: "bad key", key: "Free-Mode", body: `{"value": true}`, wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodPut, "/api/admin/settings/"+tt.key, srv.admin, []byte(tt.body), "application/json")
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantValue != "" {
				body := decode(t, w)
				assert.Equal(t, tt.wantValue, body["value"])
				assert.Equal(t, "admin-1", body["updated_by"])
			}
		})
	}

	w = srv.do(http.MethodGet, "/api/admin/settings/free_mode", srv.admin, nil, "")
	assert.Equal(t, "true", decode(t, w)["value"])

	w = srv.do(http.MethodGet, "/api/admin/settings/never_set", srv.admin, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodGet, "/api/admin/settings", srv.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Settings []entities.Setting `json:"settings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	keys := make([]string, 0, len(list.Settings))
	for _, s := range list.Settings {
		keys = append(keys, s.Key)
	}
	assert.Equal(t, []string{"banner_text", "free_mode", "maintenance_mode", "max_photos"}, keys)
}

func TestSignUpload(t *testing.T) {
	signer, err := objectstore.NewSigner(objectstore.Config{
		Region:    "us-east-1",
		Bucket:    "listing-photos",
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
	})
	require.NoError(t, err)

	t.Run("signed", func(t *testing.T) {
		srv := newTestServer(t, signer)
		w := srv.do(http.MethodPost, "/api/uploads/sign", srv.admin, []byte(`{"filename":"foto 1.jpg","contentType":"image/jpeg"}`), "application/json")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var signed entities.SignedUpload
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &signed))
		assert.Equal(t, http.MethodPut, signed.Method)
		assert.Contains(t, signed.URL, "listing-photos")
		assert.True(t, strings.HasPrefix(signed.Key, "uploads/admin-1/"))
		assert.True(t, strings.HasSuffix(signed.Key, "-foto_1.jpg"))
		assert.True(t, signed.ExpiresAt.After(time.Now()))
	})

	tests := []struct {
		name     string
		signer   repository.UploadSigner
		auth     bool
		body     string
		wantCode int
	}{
		{name: "unauthenticated", signer: signer, body: `{"filename":"a.jpg","contentType":"image/jpeg"}`, wantCode: http.StatusForbidden},
		{name: "missing content type", signer: signer, auth: true, body: `{"filename":"a.jpg"}`, wantCode: http.StatusBadRequest},
		{name: "empty body", signer: signer, auth: true, wantCode: http.StatusBadRequest},
		{name: "no signer", auth: true, body: `{"filename":"a.jpg","contentType":"image/jpeg"}`, wantCode: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.signer)
			token := ""
			if tt.auth {
				token = srv.admin
			}
			w := srv.do(http.MethodPost, "/api/uploads/sign", token, []byte(tt.body), "application/json")
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func pngFixture(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 7 % 256), G: uint8(y * 13 % 256), B: uint8((x + y) % 256), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompressImage(t *testing.T) {
	srv := newTestServer(t, nil)
	original := pngFixture(t, 400, 300)

	t.Run("compressed", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "anuncio.png", original, map[string]string{"quality": "70"})
		w := srv.do(http.MethodPost, "/api/media/images/compress", srv.admin, body, contentType)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
		assert.Equal(t, "false", w.Header().Get("X-Compression-Fallback"))
		assert.Contains(t, w.Header().Get("Content-Disposition"), "anuncio.jpg")

		cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", format)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 75, cfg.Height)
	})

	t.Run("not an image falls back", func(t *testing.T) {
		body, contentType := multipartBody(t, "file", "notes.txt", []byte("just text"), nil)
		w := srv.do(http.MethodPost, "/api/media/images/compress", srv.admin, body, contentType)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "true", w.Header().Get("X-Compression-Fallback"))
		assert.Equal(t, "just text", w.Body.String())
	})

	tests := []struct {
		name   string
		field  string
		fields map[string]string
		token  bool
		code   int
	}{
		{name: "missing file", fields: map[string]string{"quality": "70"}, token: true, code: http.StatusBadRequest},
		{name: "bad quality", field: "file", fields: map[string]string{"quality": "0"}, token: true, code: http.StatusBadRequest},
		{name: "bad format", field: "file", fields: map[string]string{"format": "bmp"}, token: true, code: http.StatusBadRequest},
		{name: "anonymous", field: "file", code: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.field, "a.png", original, tt.fields)
			token := ""
			if tt.token {
				token = srv.admin
			}
			w := srv.do(http.MethodPost, "/api/media/images/compress", token, body, contentType)
			assert.Equal(t, tt.code, w.Code)
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	w := srv.do(http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "up", body["status"])
	assert.Equal(t, "memory", body["store"])

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/live", "", nil, "").Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/health/ready", "", nil, "").Code)

	srv.do(http.MethodPost, "/api/admin/backups", srv.admin, nil, "")
	w = srv.do(http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "backup_snapshots_total")
	assert.Contains(t, w.Body.String(), "http_requests_total")

	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

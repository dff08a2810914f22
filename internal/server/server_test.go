package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/portfolio/internal/api/handlers"
	"github.com/bigkaa/portfolio/internal/auth"
	"github.com/bigkaa/portfolio/internal/config"
	"github.com/bigkaa/portfolio/internal/service"
	"github.com/bigkaa/portfolio/internal/storage/content"
	"github.com/bigkaa/portfolio/internal/storage/diskspace"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

const mib = 1 << 20

// testEnv — поднятый сервер и корень загрузок.
type testEnv struct {
	srv       *httptest.Server
	uploadDir string
}

// setupServer собирает все компоненты поверх временных директорий.
func setupServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{
		UploadDir:         filepath.Join(dir, "uploads"),
		UploadURLPrefix:   "/uploads",
		DataPath:          filepath.Join(dir, "data.json"),
		ImageMaxSize:      10 * mib,
		VideoMaxSize:      500 * mib,
		MaxRequestBody:    config.GiB,
		WriteChunkSize:    256 * 1024,
		UploadTimeout:     time.Minute,
		ThumbnailTimeout:  30 * time.Second,
		ChunkMaxSize:      10 * mib,
		ChunkSessionTTL:   time.Hour,
		ChunkSessionLimit: 16,
	}

	guard, err := auth.NewGuard(auth.Config{
		CookieName: "admin_session",
		Sentinel:   "authenticated",
		MaxAge:     time.Hour,
		Username:   "admin",
		Password:   "secret",
	})
	if err != nil {
		t.Fatalf("ошибка создания Guard: %v", err)
	}

	store, err := filestore.New(cfg.UploadDir, cfg.UploadURLPrefix)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	writer := filestore.NewChunkedWriter(cfg.WriteChunkSize)
	est := diskspace.Fixed(100 * config.GiB)
	registry := service.NewSessionRegistry(cfg.ChunkSessionLimit, cfg.ChunkSessionTTL, logger)

	h := Handlers{
		Upload: handlers.NewUploadHandler(
			service.NewUploadService(cfg, store, writer, est, logger),
			service.NewChunkedUploadService(cfg, store, writer, est, registry, logger),
			cfg, logger,
		),
		Limits:  handlers.NewLimitsHandler(cfg, est, store.Root()),
		Auth:    handlers.NewAuthHandler(guard, logger),
		Content: handlers.NewContentHandler(content.New(cfg.DataPath, logger), logger),
		Media:   handlers.NewMediaHandler(service.NewMediaService(store, logger)),
		Health:  handlers.NewHealthHandler(store.Root(), dir),
	}

	srv := httptest.NewServer(NewRouter(cfg, logger, guard, h))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, uploadDir: store.Root()}
}

// client возвращает HTTP-клиент с cookie jar; при login=true выполняет вход.
func (e *testEnv) client(t *testing.T, login bool) *http.Client {
	t.Helper()
	jar, _ := cookiejar.New(nil)
	c := &http.Client{Jar: jar}
	if !login {
		return c
	}
	resp, err := c.Post(e.srv.URL+"/api/auth", "application/json",
		strings.NewReader(`{"username":"admin","password":"secret"}`))
	if err != nil {
		t.Fatalf("ошибка входа: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("вход: статус %d", resp.StatusCode)
	}
	return c
}

func multipartRequest(t *testing.T, url, fileName, contentType string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="` + fileName + `"`}
	h["Content-Type"] = []string{contentType}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("ошибка создания части: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, &buf)
	if err != nil {
		t.Fatalf("ошибка создания запроса: %v", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doJSON(t *testing.T, c *http.Client, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("ошибка запроса: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("ошибка декодирования ответа: %v", err)
	}
	return resp.StatusCode, body
}

func countEntries(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ошибка чтения директории: %v", err)
	}
	return len(entries)
}

func TestUploadEndpoints_RequireSession(t *testing.T) {
	env := setupServer(t)
	c := env.client(t, false)

	for _, path := range []string{"/api/upload", "/api/upload/streaming", "/api/upload/thumbnail"} {
		t.Run(path, func(t *testing.T) {
			req := multipartRequest(t, env.srv.URL+path, "a.png", "image/png", []byte("png"), map[string]string{
				"chunkIndex": "0", "totalChunks": "1", "fileName": "a.png",
			})
			status, body := doJSON(t, c, req)
			if status != http.StatusUnauthorized {
				t.Fatalf("статус = %d, ожидалось 401", status)
			}
			if body["success"] != false || body["message"] != "Unauthorized" {
				t.Errorf("неожиданное тело: %v", body)
			}
		})
	}
	if n := countEntries(t, env.uploadDir); n != 0 {
		t.Errorf("директория загрузок изменилась: %d записей", n)
	}
}

func TestUpload_SingleRequest(t *testing.T) {
	env := setupServer(t)
	c := env.client(t, true)

	data := bytes.Repeat([]byte{0xAB}, 2*mib)
	status, body := doJSON(t, c, multipartRequest(t, env.srv.URL+"/api/upload", "photo.jpg", "image/jpeg", data, nil))
	if status != http.StatusOK {
		t.Fatalf("статус = %d, тело: %v", status, body)
	}
	if body["sizeMB"] != "2.0" || body["type"] != "image/jpeg" {
		t.Errorf("неожиданное тело: %v", body)
	}

	url, _ := body["url"].(string)
	resp, err := c.Get(env.srv.URL + url)
	if err != nil {
		t.Fatalf("ошибка скачивания: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Equal(got, data) {
		t.Errorf("скачанный файл не совпадает: статус %d, %d байт", resp.StatusCode, len(got))
	}
}

func TestUpload_UnsupportedType(t *testing.T) {
	env := setupServer(t)
	c := env.client(t, true)

	status, body := doJSON(t, c, multipartRequest(t, env.srv.URL+"/api/upload", "doc.pdf", "application/pdf", []byte("%PDF-1.4"), nil))
	if status != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидалось 400", status)
	}
	if msg, _ := body["message"].(string); !strings.Contains(msg, "Unsupported file type") {
		t.Errorf("message = %q", msg)
	}
	if n := countEntries(t, env.uploadDir); n != 0 {
		t.Errorf("директория загрузок изменилась: %d записей", n)
	}
}

func TestUpload_ChunkedTenMiB(t *testing.T) {
	env := setupServer(t)
	c := env.client(t, true)

	data := make([]byte, 10*mib)
	rand.New(rand.NewSource(7)).Read(data)

	const total = 3
	size := (len(data) + total - 1) / total
	uploadID := ""
	var last map[string]any

	for i := 0; i < total; i++ {
		end := min((i+1)*size, len(data))
		fields := map[string]string{
			"chunkIndex":  strconv.Itoa(i),
			"totalChunks": strconv.Itoa(total),
			"fileName":    "reel.mp4",
		}
		if uploadID != "" {
			fields["uploadId"] = uploadID
		}
		req := multipartRequest(t, env.srv.URL+"/api/upload/streaming", "blob", "application/octet-stream", data[i*size:end], fields)
		status, body := doJSON(t, c, req)
		if status != http.StatusOK {
			t.Fatalf("чанк %d: статус = %d, тело: %v", i, status, body)
		}
		uploadID, _ = body["uploadId"].(string)
		last = body
	}

	url, _ := last["url"].(string)
	if url != "/uploads/"+uploadID+"/reel.mp4" {
		t.Fatalf("url = %q", url)
	}

	resp, err := c.Get(env.srv.URL + url)
	if err != nil {
		t.Fatalf("ошибка скачивания: %v", err)
	}
	defer resp.Body.Close()
	got, _ := io.ReadAll(resp.Body)
	if len(got) != 10*mib || !bytes.Equal(got, data) {
		t.Errorf("скачано %d байт, ожидалось %d, совпадение: %v", len(got), 10*mib, bytes.Equal(got, data))
	}

	chunkDir := filepath.Join(env.uploadDir, filestore.ChunksDir, uploadID)
	if _, err := os.Stat(chunkDir); !os.IsNotExist(err) {
		t.Error("директория чанков должна быть удалена")
	}
}

func TestContent_SaveRequiresSession(t *testing.T) {
	env := setupServer(t)

	body := `{"section":"languages","data":[{"id":"1","name":"English","level":"Fluent"}]}`
	req, _ := http.NewRequest(http.MethodPost, env.srv.URL+"/api/data", strings.NewReader(body))
	if status, _ := doJSON(t, env.client(t, false), req); status != http.StatusUnauthorized {
		t.Fatalf("без сессии: статус = %d, ожидалось 401", status)
	}

	c := env.client(t, true)
	req, _ = http.NewRequest(http.MethodPost, env.srv.URL+"/api/data", strings.NewReader(body))
	if status, resp := doJSON(t, c, req); status != http.StatusOK {
		t.Fatalf("с сессией: статус = %d, тело %v", status, resp)
	}

	req, _ = http.NewRequest(http.MethodGet, env.srv.URL+"/api/data", nil)
	_, doc := doJSON(t, env.client(t, false), req)
	langs, _ := doc["languages"].([]any)
	if len(langs) != 1 {
		t.Errorf("languages = %v", doc["languages"])
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	env := setupServer(t)
	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/nope", nil)
	status, body := doJSON(t, env.client(t, false), req)
	if status != http.StatusNotFound || body["message"] != "Resource not found" {
		t.Errorf("статус = %d, тело = %v", status, body)
	}
}

func TestMedia_HiddenPathsNotServed(t *testing.T) {
	env := setupServer(t)
	hidden := filepath.Join(env.uploadDir, filestore.ChunksDir, "x", "chunk_0")
	if err := os.MkdirAll(filepath.Dir(hidden), 0o755); err != nil {
		t.Fatalf("ошибка создания директории: %v", err)
	}
	if err := os.WriteFile(hidden, []byte("secret"), 0o644); err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}

	resp, err := http.Get(env.srv.URL + "/uploads/.chunks/x/chunk_0")
	if err != nil {
		t.Fatalf("ошибка запроса: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("статус = %d, ожидалось 404", resp.StatusCode)
	}
}

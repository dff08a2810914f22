package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"
)

// writeTestFile создаёт файл с n байтами во временной директории.
func writeTestFile(t *testing.T, name string, n int) (string, []byte) {
	t.Helper()
	data := bytes.Repeat([]byte("0123456789"), n/10+1)[:n]
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("ошибка записи файла: %v", err)
	}
	return path, data
}

func newTestClient(t *testing.T, url string) (*Client, *[]time.Duration) {
	t.Helper()
	c, err := New(url)
	if err != nil {
		t.Fatalf("ошибка создания клиента: %v", err)
	}
	var sleeps []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return c, &sleeps
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "secret" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "code": "INVALID_CREDENTIALS", "message": "Invalid credentials"})
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "admin_session", Value: "authenticated", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	if err := c.Login(context.Background(), "admin", "secret"); err != nil {
		t.Fatalf("неожиданная ошибка входа: %v", err)
	}

	err := c.Login(context.Background(), "admin", "wrong")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("ожидалась *APIError, получено %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized || apiErr.Message != "Invalid credentials" {
		t.Errorf("неожиданная ошибка: %+v", apiErr)
	}
}

func TestUpload_InvalidResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, "<html>413 Request Entity Too Large</html>")
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	path, _ := writeTestFile(t, "a.png", 10)

	if _, err := c.Upload(context.Background(), path); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("ожидалась ErrInvalidResponse, получено %v", err)
	}
}

func TestUpload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "No file"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  true,
			"url":      "/uploads/" + header.Filename,
			"filename": header.Filename,
			"size":     len(data),
			"type":     header.Header.Get("Content-Type"),
		})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	path, data := writeTestFile(t, "clip.mp4", 1234)

	res, err := c.Upload(context.Background(), path)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if res.Size != int64(len(data)) || res.Type != "video/mp4" || res.URL != "/uploads/clip.mp4" {
		t.Errorf("неожиданный результат: %+v", res)
	}
}

// chunkServer — имитация /api/upload/streaming, собирающая чанки в памяти.
type chunkServer struct {
	mu        sync.Mutex
	assembled bytes.Buffer
	// failures — сколько раз подряд вернуть 500 для чанка с индексом
	failures map[int]int
	attempts map[int]int
}

func (s *chunkServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, _ := strconv.Atoi(r.FormValue("chunkIndex"))
	total, _ := strconv.Atoi(r.FormValue("totalChunks"))
	s.attempts[index]++
	if s.failures[index] > 0 {
		s.failures[index]--
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "Upload failed: boom"})
		return
	}
	if index > 0 && r.FormValue("uploadId") != "id-1" {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "Upload session not found or expired"})
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Missing required fields"})
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)
	s.assembled.Write(data)

	if index < total-1 {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "uploadId": "id-1", "received": index + 1, "total": total})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"uploadId": "id-1",
		"url":      "/uploads/id-1/" + r.FormValue("fileName"),
		"fileName": r.FormValue("fileName"),
		"size":     s.assembled.Len(),
	})
}

func TestUploadChunked_RetriesAndProgress(t *testing.T) {
	cs := &chunkServer{failures: map[int]int{1: 2}, attempts: map[int]int{}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	c, sleeps := newTestClient(t, srv.URL)
	path, data := writeTestFile(t, "reel.webm", 2500)

	var progress []Progress
	res, err := c.UploadChunked(context.Background(), path, ChunkedOptions{
		ChunkSize:  1000,
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if res.URL != "/uploads/id-1/reel.webm" || res.Size != 2500 {
		t.Errorf("неожиданный результат: %+v", res)
	}
	if !bytes.Equal(cs.assembled.Bytes(), data) {
		t.Error("собранные данные не совпадают с файлом")
	}
	if cs.attempts[1] != 3 {
		t.Errorf("попыток чанка 1: %d, ожидалось 3", cs.attempts[1])
	}
	wantSleeps := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(wantSleeps) || (*sleeps)[0] != wantSleeps[0] || (*sleeps)[1] != wantSleeps[1] {
		t.Errorf("задержки = %v, ожидалось %v", *sleeps, wantSleeps)
	}

	if len(progress) != 3 {
		t.Fatalf("вызовов прогресса: %d, ожидалось 3", len(progress))
	}
	lastP := progress[len(progress)-1]
	if lastP.Sent != 2500 || lastP.Percent != 100 || lastP.Chunk != 3 || lastP.TotalChunks != 3 {
		t.Errorf("неожиданный прогресс: %+v", lastP)
	}
}

func TestUploadChunked_GivesUpAfterMaxAttempts(t *testing.T) {
	cs := &chunkServer{failures: map[int]int{0: 10}, attempts: map[int]int{}}
	srv := httptest.NewServer(cs)
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	path, _ := writeTestFile(t, "reel.webm", 100)

	_, err := c.UploadChunked(context.Background(), path, ChunkedOptions{ChunkSize: 1000})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("ожидалась APIError 500, получено %v", err)
	}
	if cs.attempts[0] != DefaultMaxAttempts {
		t.Errorf("попыток: %d, ожидалось %d", cs.attempts[0], DefaultMaxAttempts)
	}
}

func TestUploadChunked_ClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "code": "UNSUPPORTED_TYPE", "message": "Unsupported file type"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	path, _ := writeTestFile(t, "doc.pdf", 10)

	if _, err := c.UploadChunked(context.Background(), path, ChunkedOptions{}); err == nil {
		t.Fatal("ожидалась ошибка")
	}
	if attempts != 1 {
		t.Errorf("попыток: %d, ожидалась 1", attempts)
	}
}

func TestUploadChunked_FinalChunkResponseLost(t *testing.T) {
	tests := []struct {
		name        string
		lostReplies int
		wantUnknown bool
	}{
		{"ответ потерян, повтор получил 404", 1, true},
		{"404 с первой попытки", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finalAttempts := 0
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				index, _ := strconv.Atoi(r.FormValue("chunkIndex"))
				total, _ := strconv.Atoi(r.FormValue("totalChunks"))
				if index < total-1 {
					writeJSON(w, http.StatusOK, map[string]any{"success": true, "uploadId": "id-1", "received": index + 1, "total": total})
					return
				}
				finalAttempts++
				if finalAttempts <= tt.lostReplies {
					// Сервер собрал файл, но ответ до клиента не дошёл
					writeJSON(w, http.StatusBadGateway, map[string]any{"success": false, "message": "Bad gateway"})
					return
				}
				writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "code": "NOT_FOUND", "message": "Upload session not found or expired"})
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL)
			path, _ := writeTestFile(t, "reel.webm", 2500)

			_, err := c.UploadChunked(context.Background(), path, ChunkedOptions{ChunkSize: 1000})
			var apiErr *APIError
			if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
				t.Fatalf("ожидалась APIError 404, получено %v", err)
			}
			if got := errors.Is(err, ErrOutcomeUnknown); got != tt.wantUnknown {
				t.Errorf("errors.Is(err, ErrOutcomeUnknown) = %v, ожидалось %v", got, tt.wantUnknown)
			}
		})
	}
}

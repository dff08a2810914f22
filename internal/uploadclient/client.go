// Пакет uploadclient — HTTP-клиент загрузки файлов в portfolio-server.
// Поддерживает загрузку одним запросом и chunked-загрузку с повторами
// чанков и экспоненциальной задержкой.
package uploadclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bigkaa/portfolio/internal/domain/media"
)

// Значения по умолчанию chunked-загрузки.
const (
	DefaultChunkSize   = 5 << 20
	DefaultMaxAttempts = 3
	DefaultBackoff     = time.Second
)

// ErrInvalidResponse — ответ сервера не является JSON (например,
// HTML-страница прокси с ошибкой).
var ErrInvalidResponse = errors.New("invalid response from server")

// ErrOutcomeUnknown — ответ на последний чанк потерян, а повтор получил
// 404: сервер мог уже собрать файл и закрыть сессию. Результат загрузки
// неизвестен, файл может существовать на сервере.
var ErrOutcomeUnknown = errors.New("upload outcome unknown: final chunk response was lost")

// APIError — ответ сервера с кодом не 2xx.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("server error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Message)
}

// Result — результат завершённой загрузки.
type Result struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
	Filename string `json:"filename"`
	UploadID string `json:"uploadId"`
	Size     int64  `json:"size"`
	SizeMB   string `json:"sizeMB"`
	Type     string `json:"type"`
}

// Progress — состояние chunked-загрузки после очередного чанка.
type Progress struct {
	Chunk       int
	TotalChunks int
	Sent        int64
	Total       int64
	Percent     float64
	// Speed — средняя скорость в байтах в секунду
	Speed float64
	// ETA — оценка оставшегося времени
	ETA time.Duration
}

// ChunkedOptions — параметры chunked-загрузки.
type ChunkedOptions struct {
	// ChunkSize — размер чанка (по умолчанию 5 MiB)
	ChunkSize int64
	// MaxAttempts — попыток на чанк (по умолчанию 3)
	MaxAttempts int
	// Backoff — базовая задержка: перед попыткой n ждём Backoff·2^(n-1)
	Backoff time.Duration
	// OnProgress вызывается после каждого принятого чанка
	OnProgress func(Progress)
}

// Client — клиент portfolio-server.
type Client struct {
	baseURL string
	http    *http.Client
	sleep   func(context.Context, time.Duration) error
}

// New создаёт клиента для сервера baseURL. Cookie сессии хранится
// в собственном cookie jar клиента.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания cookie jar: %w", err)
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar},
		sleep:   sleepCtx,
	}, nil
}

// Login выполняет вход администратора.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil)
}

// Upload загружает файл одним запросом в /api/upload.
func (c *Client) Upload(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	req, err := c.multipartRequest(ctx, "/api/upload", filepath.Base(path), contentTypeOf(path), f, nil)
	if err != nil {
		return nil, err
	}
	var res Result
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UploadChunked загружает файл чанками в /api/upload/streaming.
// Каждый чанк повторяется до MaxAttempts раз; отказы валидации (4xx)
// не повторяются.
func (c *Client) UploadChunked(ctx context.Context, path string, opts ChunkedOptions) (*Result, error) {
	opts = withDefaults(opts)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ошибка stat файла: %w", err)
	}
	size := info.Size()
	total := int(max((size+opts.ChunkSize-1)/opts.ChunkSize, 1))
	name := filepath.Base(path)

	var (
		uploadID string
		sent     int64
		start    = time.Now()
		buf      = make([]byte, opts.ChunkSize)
	)
	for i := 0; i < total; i++ {
		n, err := io.ReadFull(f, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("ошибка чтения чанка %d: %w", i, err)
		}
		chunk := buf[:n]

		fields := map[string]string{
			"chunkIndex":  strconv.Itoa(i),
			"totalChunks": strconv.Itoa(total),
			"fileName":    name,
		}
		if uploadID != "" {
			fields["uploadId"] = uploadID
		}

		var (
			res      Result
			attempts int
		)
		if err := c.withRetry(ctx, opts, func() error {
			attempts++
			req, err := c.multipartRequest(ctx, "/api/upload/streaming", "blob", "application/octet-stream", bytes.NewReader(chunk), fields)
			if err != nil {
				return err
			}
			return c.do(req, &res)
		}); err != nil {
			if i == total-1 && attempts > 1 && isNotFound(err) {
				err = fmt.Errorf("%w: %w", ErrOutcomeUnknown, err)
			}
			return nil, fmt.Errorf("чанк %d/%d: %w", i+1, total, err)
		}
		uploadID = res.UploadID
		sent += int64(n)

		if opts.OnProgress != nil {
			opts.OnProgress(progress(i, total, sent, size, time.Since(start)))
		}
		if i == total-1 {
			return &res, nil
		}
	}
	return nil, ErrInvalidResponse
}

func withDefaults(opts ChunkedOptions) ChunkedOptions {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	return opts
}

// withRetry выполняет fn с повторами и экспоненциальной задержкой.
func (c *Client) withRetry(ctx context.Context, opts ChunkedOptions, fn func() error) error {
	var err error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			if serr := c.sleep(ctx, opts.Backoff<<(attempt-1)); serr != nil {
				return serr
			}
		}
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
	}
	return err
}

// retryable — сетевые ошибки, невалидные ответы и 5xx (кроме 507).
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500 && apiErr.StatusCode != http.StatusInsufficientStorage
	}
	return true
}

func isNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func progress(chunk, total int, sent, size int64, elapsed time.Duration) Progress {
	p := Progress{
		Chunk:       chunk + 1,
		TotalChunks: total,
		Sent:        sent,
		Total:       size,
		Percent:     100,
	}
	if size > 0 {
		p.Percent = float64(sent) * 100 / float64(size)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.Speed = float64(sent) / secs
		if p.Speed > 0 {
			p.ETA = time.Duration(float64(size-sent) / p.Speed * float64(time.Second))
		}
	}
	return p
}

func (c *Client) multipartRequest(ctx context.Context, path, fileName, contentType string, r io.Reader, fields map[string]string) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, fileName))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("ошибка чтения файла: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// envelope — общие поля ответов сервера.
type envelope struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do выполняет запрос и декодирует JSON-ответ в out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}
	return nil
}

// contentTypeOf определяет MIME-тип файла по расширению.
func contentTypeOf(path string) string {
	if ct := media.DetectType(path, ""); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package filestore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"syscall"
)

// DefaultChunkSize — размер чанка записи по умолчанию (1 MiB).
const DefaultChunkSize = 1 << 20

// State — состояние одной операции записи.
//
// Idle → Writing(i) → [Draining →] Writing(i+1) → Finalizing → Done;
// из Writing, Draining и Finalizing возможен переход в Failed.
type State int

const (
	StateIdle State = iota
	StateWriting
	StateDraining
	StateFinalizing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWriting:
		return "writing"
	case StateDraining:
		return "draining"
	case StateFinalizing:
		return "finalizing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Причины ошибки записи.
const (
	ReasonPermission = "permission"
	ReasonDiskFull   = "disk_full"
	ReasonOther      = "other"
)

// WriteError — ошибка chunked-записи. PartialPath указывает на
// незавершённый файл, который мог остаться на диске: writer его
// не удаляет, решение принимает вызывающий код.
type WriteError struct {
	Reason      string
	PartialPath string
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ошибка записи (%s): %v", e.Reason, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// WriteResult — результат успешной записи.
type WriteResult struct {
	// Path — финальный путь файла
	Path string
	// Bytes — число записанных байт
	Bytes int64
	// Chunks — число записанных чанков
	Chunks int
}

// Observer получает переходы состояний: состояние и индекс чанка.
// Вызывается синхронно из горутины, выполняющей запись.
type Observer func(state State, chunk int)

// ChunkedWriter пишет данные в файл чанками фиксированного размера.
// В полёте одновременно находятся не более одного буфера чанка
// и одного буфера записи. Безопасен для конкурентного использования.
type ChunkedWriter struct {
	chunkSize int
	observer  Observer
	pool      sync.Pool
}

// NewChunkedWriter создаёт writer с указанным размером чанка.
// chunkSize <= 0 означает DefaultChunkSize.
func NewChunkedWriter(chunkSize int) *ChunkedWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	w := &ChunkedWriter{chunkSize: chunkSize}
	w.pool.New = func() any {
		buf := make([]byte, chunkSize)
		return &buf
	}
	return w
}

// WithObserver устанавливает наблюдателя переходов состояний.
func (w *ChunkedWriter) WithObserver(o Observer) *ChunkedWriter {
	w.observer = o
	return w
}

// ChunkSize возвращает размер чанка.
func (w *ChunkedWriter) ChunkSize() int {
	return w.chunkSize
}

// Write записывает буфер целиком в path.
func (w *ChunkedWriter) Write(ctx context.Context, path string, buf []byte) (*WriteResult, error) {
	return w.WriteFrom(ctx, path, bytes.NewReader(buf), int64(len(buf)))
}

// WriteFrom читает r до EOF и записывает данные в path чанками.
// Запись идёт в path+".part"; финальное имя появляется после
// flush, fsync, close и rename. Если expected >= 0, число прочитанных
// байт должно совпасть с expected.
func (w *ChunkedWriter) WriteFrom(ctx context.Context, path string, r io.Reader, expected int64) (*WriteResult, error) {
	op := w.begin(path)
	defer op.release()

	if err := op.open(); err != nil {
		return nil, err
	}

	if err := op.copy(ctx, r); err != nil {
		return nil, err
	}
	if expected >= 0 && op.written != expected {
		return nil, op.fail(fmt.Errorf("размер не совпадает: ожидалось %d байт, записано %d", expected, op.written))
	}

	return op.finalize()
}

// Concat последовательно склеивает parts в path через тот же цикл чанков.
// Каждый part удаляется сразу после того, как он полностью прочитан.
func (w *ChunkedWriter) Concat(ctx context.Context, path string, parts []string) (*WriteResult, error) {
	op := w.begin(path)
	defer op.release()

	if err := op.open(); err != nil {
		return nil, err
	}

	for _, part := range parts {
		pf, err := os.Open(part)
		if err != nil {
			return nil, op.fail(fmt.Errorf("ошибка открытия части %s: %w", part, err))
		}
		err = op.copy(ctx, pf)
		pf.Close()
		if err != nil {
			return nil, err
		}
		if err := os.Remove(part); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, op.fail(fmt.Errorf("ошибка удаления части %s: %w", part, err))
		}
	}

	return op.finalize()
}

// writeOp — состояние одной операции записи.
type writeOp struct {
	w       *ChunkedWriter
	path    string
	partial string
	f       *os.File
	bw      *bufio.Writer
	buf     *[]byte
	state   State
	chunk   int
	written int64
}

func (w *ChunkedWriter) begin(path string) *writeOp {
	op := &writeOp{
		w:       w,
		path:    path,
		partial: path + PartSuffix,
		buf:     w.pool.Get().(*[]byte),
	}
	op.set(StateIdle)
	return op
}

func (op *writeOp) release() {
	if op.f != nil {
		op.f.Close()
	}
	op.w.pool.Put(op.buf)
}

func (op *writeOp) set(s State) {
	op.state = s
	if op.w.observer != nil {
		op.w.observer(s, op.chunk)
	}
}

func (op *writeOp) open() error {
	f, err := os.OpenFile(op.partial, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return op.fail(fmt.Errorf("ошибка создания файла: %w", err))
	}
	op.f = f
	op.bw = bufio.NewWriterSize(f, op.w.chunkSize)
	return nil
}

// copy переносит данные из r в буферизованный writer чанками.
// Если буфер записи не вмещает очередной чанк, он сбрасывается
// на диск (Draining) до приёма следующего чанка.
func (op *writeOp) copy(ctx context.Context, r io.Reader) error {
	buf := *op.buf
	for {
		if err := ctx.Err(); err != nil {
			return op.fail(fmt.Errorf("запись прервана: %w", err))
		}

		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			if op.bw.Available() < n {
				op.set(StateDraining)
				if err := op.bw.Flush(); err != nil {
					return op.fail(err)
				}
			}
			op.set(StateWriting)
			if _, err := op.bw.Write(buf[:n]); err != nil {
				return op.fail(err)
			}
			op.written += int64(n)
			op.chunk++
		}

		switch {
		case rerr == nil:
		case errors.Is(rerr, io.EOF), errors.Is(rerr, io.ErrUnexpectedEOF):
			return nil
		default:
			return op.fail(fmt.Errorf("ошибка чтения данных: %w", rerr))
		}
	}
}

func (op *writeOp) finalize() (*WriteResult, error) {
	op.set(StateFinalizing)

	if err := op.bw.Flush(); err != nil {
		return nil, op.fail(err)
	}
	// fsync для гарантии записи на диск
	if err := op.f.Sync(); err != nil {
		return nil, op.fail(fmt.Errorf("ошибка fsync: %w", err))
	}
	f := op.f
	op.f = nil
	if err := f.Close(); err != nil {
		return nil, op.fail(fmt.Errorf("ошибка закрытия файла: %w", err))
	}
	if err := os.Rename(op.partial, op.path); err != nil {
		return nil, op.fail(fmt.Errorf("ошибка переименования: %w", err))
	}

	op.set(StateDone)
	return &WriteResult{Path: op.path, Bytes: op.written, Chunks: op.chunk}, nil
}

func (op *writeOp) fail(err error) error {
	op.set(StateFailed)
	return &WriteError{
		Reason:      classify(err),
		PartialPath: op.partial,
		Err:         err,
	}
}

// classify сопоставляет низкоуровневую ошибку с причиной.
func classify(err error) string {
	switch {
	case errors.Is(err, syscall.ENOSPC):
		return ReasonDiskFull
	case errors.Is(err, fs.ErrPermission):
		return ReasonPermission
	default:
		return ReasonOther
	}
}

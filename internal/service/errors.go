// errors.go — классы ошибок загрузки и их отображение в HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"

	apierrors "github.com/bigkaa/portfolio/internal/api/errors"
	"github.com/bigkaa/portfolio/internal/domain/media"
	"github.com/bigkaa/portfolio/internal/storage/filestore"
)

// ErrorKind — класс ошибки загрузки.
type ErrorKind string

const (
	KindUnauthorized        ErrorKind = "unauthorized"
	KindMissingFile         ErrorKind = "missing_file"
	KindUnsupportedType     ErrorKind = "unsupported_type"
	KindTooLarge            ErrorKind = "too_large"
	KindInsufficientStorage ErrorKind = "insufficient_storage"
	KindWriteFailure        ErrorKind = "write_failure"
	KindTimeout             ErrorKind = "timeout"
	KindValidation          ErrorKind = "validation"
	KindNotFound            ErrorKind = "not_found"
)

// Сообщения для пользователя (показываются в админке как есть).
const (
	MsgUnauthorized      = "Unauthorized"
	MsgNoFile            = "No file uploaded. Please select a file."
	MsgMissingFields     = "Missing required fields"
	MsgSessionNotFound   = "Upload session not found or expired"
	MsgNoMatchingSession = "No upload in progress for this file. Start again from the first chunk."
	MsgAmbiguousSession  = "Several uploads of this file are in progress. Send uploadId with each chunk."
	MsgTimeout           = "Upload timed out. Try a smaller file."
	MsgBodyTooLarge      = "File is too large for the server to process. Try a smaller file or compress the video first."
	MsgDiskFull          = "Server ran out of disk space. Please contact the administrator."
	MsgPermission        = "Server does not have permission to save files. Please contact the administrator."
)

// UploadError — ошибка загрузки с HTTP-кодом.
// Reason уточняет KindWriteFailure: permission, disk_full, other.
type UploadError struct {
	Kind       ErrorKind
	Reason     string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// Write записывает ошибку в HTTP-ответ.
func (e *UploadError) Write(w http.ResponseWriter) {
	apierrors.WriteError(w, e.StatusCode, e.Code, e.Message)
}

// MissingFileError — в запросе нет поля file.
func MissingFileError(message string) *UploadError {
	return &UploadError{
		Kind:       KindMissingFile,
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeMissingFile,
		Message:    message,
	}
}

// ValidationError — некорректные поля запроса.
func ValidationError(message string) *UploadError {
	return &UploadError{
		Kind:       KindValidation,
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    message,
	}
}

func notFoundError(message string) *UploadError {
	return &UploadError{
		Kind:       KindNotFound,
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    message,
	}
}

// rejectionError преобразует отказ классификатора.
func rejectionError(rej *media.Rejection) *UploadError {
	if rej.Reason == media.ReasonTooLarge {
		return &UploadError{
			Kind:       KindTooLarge,
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeFileTooLarge,
			Message:    rej.Message,
			Err:        rej,
		}
	}
	return &UploadError{
		Kind:       KindUnsupportedType,
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeUnsupportedType,
		Message:    rej.Message,
		Err:        rej,
	}
}

func tooLargeError(message string) *UploadError {
	return &UploadError{
		Kind:       KindTooLarge,
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeFileTooLarge,
		Message:    message,
	}
}

func insufficientStorageError(free, required int64) *UploadError {
	return &UploadError{
		Kind:       KindInsufficientStorage,
		StatusCode: http.StatusInsufficientStorage,
		Code:       apierrors.CodeStorageFull,
		Message: fmt.Sprintf("Not enough disk space. Only %sGB free. Need at least %sGB.",
			formatGB(free), formatGB(required)),
	}
}

// MapFailure сопоставляет ошибку чтения тела или записи на диск
// с классом ошибки. Таймаут определяется по ошибке и по ctx.
func MapFailure(ctx context.Context, err error) *UploadError {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue
	}

	if isTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &UploadError{
			Kind:       KindTimeout,
			StatusCode: http.StatusRequestTimeout,
			Code:       apierrors.CodeUploadTimeout,
			Message:    MsgTimeout,
			Err:        err,
		}
	}

	failure := &UploadError{
		Kind:       KindWriteFailure,
		Reason:     filestore.ReasonOther,
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeWriteFailed,
		Err:        err,
	}

	var maxBytes *http.MaxBytesError
	var we *filestore.WriteError
	switch {
	case errors.As(err, &maxBytes):
		failure.Message = MsgBodyTooLarge
	case errors.Is(err, syscall.ENOSPC):
		failure.Reason = filestore.ReasonDiskFull
		failure.Message = MsgDiskFull
	case errors.Is(err, os.ErrPermission):
		failure.Reason = filestore.ReasonPermission
		failure.Message = MsgPermission
	default:
		if errors.As(err, &we) {
			failure.Reason = we.Reason
		}
		failure.Message = "Upload failed: " + rootCause(err).Error()
	}
	return failure
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// rootCause возвращает самую внутреннюю ошибку цепочки.
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func formatGB(n int64) string {
	return fmt.Sprintf("%.1f", float64(n)/(1<<30))
}

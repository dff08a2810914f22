// Пакет media — классификация загружаемых файлов по объявленному MIME-типу
// и проверка потолков размера. Чистые функции без I/O.
package media

import (
	"fmt"
	"slices"
	"strings"
)

// Class — класс загружаемого файла.
type Class string

const (
	ClassImage    Class = "image"
	ClassVideo    Class = "video"
	ClassRejected Class = "rejected"
)

const mib = 1 << 20

// AllowedImageTypes — явный allow-list изображений.
var AllowedImageTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"image/svg+xml",
	"image/avif",
}

// AllowedVideoTypes — явный allow-list видео.
var AllowedVideoTypes = []string{
	"video/mp4",
	"video/webm",
	"video/ogg",
	"video/quicktime",
	"video/x-msvideo",
}

// Limits — потолки размера по классам, в байтах.
type Limits struct {
	Image int64
	Video int64
}

// DefaultLimits — 10 MiB для изображений, 500 MiB для видео.
var DefaultLimits = Limits{Image: 10 * mib, Video: 500 * mib}

// For возвращает потолок для класса. Для ClassRejected — 0.
func (l Limits) For(c Class) int64 {
	switch c {
	case ClassImage:
		return l.Image
	case ClassVideo:
		return l.Video
	default:
		return 0
	}
}

// Причины отказа.
const (
	ReasonUnsupportedType = "unsupported_type"
	ReasonTooLarge        = "too_large"
)

// Rejection — отказ классификатора. Message пригоден для показа пользователю.
type Rejection struct {
	Reason  string
	Class   Class
	Size    int64
	Limit   int64
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// Normalize приводит MIME-тип к каноническому виду: без параметров,
// в нижнем регистре, без пробелов.
func Normalize(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

// Classify определяет класс файла по объявленному MIME-типу.
func Classify(mimeType string) Class {
	mt := Normalize(mimeType)
	switch {
	case slices.Contains(AllowedImageTypes, mt), strings.HasPrefix(mt, "image/") && len(mt) > len("image/"):
		return ClassImage
	case slices.Contains(AllowedVideoTypes, mt), strings.HasPrefix(mt, "video/") && len(mt) > len("video/"):
		return ClassVideo
	default:
		return ClassRejected
	}
}

// Check классифицирует файл и проверяет его размер против потолка класса.
// allowVideo=false используется для загрузки миниатюр: видео отклоняется.
func Check(mimeType string, size int64, limits Limits, allowVideo bool) (Class, error) {
	class := Classify(mimeType)

	if class == ClassRejected {
		return class, &Rejection{
			Reason: ReasonUnsupportedType,
			Class:  class,
			Size:   size,
			Message: fmt.Sprintf(
				"Unsupported file type: %q. Allowed: images (jpg, png, gif, webp) and videos (mp4, webm, mov).",
				mimeType),
		}
	}
	if class == ClassVideo && !allowVideo {
		return class, &Rejection{
			Reason:  ReasonUnsupportedType,
			Class:   class,
			Size:    size,
			Message: "File must be an image",
		}
	}

	limit := limits.For(class)
	if size > limit {
		msg := fmt.Sprintf("File too large (%sMB). Maximum for %ss is %s.",
			FormatMB(size), class, LimitLabel(limit))
		if class == ClassVideo {
			msg += fmt.Sprintf(" For files larger than %s, consider compressing the video first or using a cloud storage service.",
				LimitLabel(limit))
		}
		return class, &Rejection{
			Reason:  ReasonTooLarge,
			Class:   class,
			Size:    size,
			Limit:   limit,
			Message: msg,
		}
	}

	return class, nil
}

// FormatMB форматирует размер в мебибайтах с одним знаком после запятой.
func FormatMB(size int64) string {
	return fmt.Sprintf("%.1f", float64(size)/mib)
}

// LimitLabel — подпись лимита: "500MB" для кратных MiB, иначе "0.5MB".
func LimitLabel(limit int64) string {
	if limit%mib == 0 {
		return fmt.Sprintf("%dMB", limit/mib)
	}
	return FormatMB(limit) + "MB"
}

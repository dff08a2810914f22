package media

import (
	"mime"
	"path/filepath"
	"strings"
)

// extensionTypes — расширения allow-list. Встроенная таблица пакета mime
// зависит от /etc/mime.types и, например, не знает .mp4 и .mov.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
	".avif": "image/avif",
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".ogv":  "video/ogg",
	".ogg":  "video/ogg",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
}

// DetectType возвращает MIME-тип файла: объявленный, если он информативен,
// иначе определённый по расширению имени. Пустая строка — тип неизвестен.
func DetectType(fileName, declared string) string {
	if mt := Normalize(declared); mt != "" && mt != "application/octet-stream" {
		return declared
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if mt, ok := extensionTypes[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return Normalize(declared)
}

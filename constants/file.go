package constants

import "strings"

const (
	PDF = "PDF"
	TXT = "TXT"
)

// MaxUploadBytes caps a single uploaded invoice file.
const MaxUploadBytes = 20 << 20

// AllowedExtensions holds the file extensions accepted for supplier-invoice uploads.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
	"txt": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns PDF or TXT for a supported extension, "" otherwise.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "txt":
		return TXT
	}
	return ""
}

package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// ContentTypeXLSX is the MIME type of Office Open XML spreadsheets.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var knownExtensions = map[string]string{
	".xlsx": ContentTypeXLSX,
	".csv":  "text/csv",
	".json": "application/json",
}

// DetectContentType returns providedType when set, otherwise a type derived
// from the key extension, falling back to application/octet-stream.
func DetectContentType(providedType, key string) string {
	if providedType != "" {
		return providedType
	}
	ext := strings.ToLower(filepath.Ext(key))
	if ct, ok := knownExtensions[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// IsSpreadsheet reports whether an uploaded file looks like an xlsx
// workbook. Browsers send either the xlsx type or a generic binary type.
func IsSpreadsheet(contentType, filename string) bool {
	base := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if base == ContentTypeXLSX {
		return true
	}
	return strings.EqualFold(filepath.Ext(filename), ".xlsx") &&
		(base == "" || base == "application/octet-stream" || base == "application/zip")
}

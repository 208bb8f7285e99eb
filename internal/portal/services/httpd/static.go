package httpd

import (
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var contentTypes = map[string]string{
	".html":  contentTypeHTML,
	".htm":   contentTypeHTML,
	".css":   "text/css; charset=utf-8",
	".js":    "application/javascript",
	".json":  contentTypeJSON,
	".txt":   contentTypeText,
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".ico":   "image/x-icon",
	".woff2": "font/woff2",
}

// ContentType picks the Content-Type for a file by extension, falling
// back to sniffing its contents.
func ContentType(name string, data []byte) string {
	if ct, ok := contentTypes[strings.ToLower(path.Ext(name))]; ok {
		return ct
	}
	return mimetype.Detect(data).String()
}

package attach

import (
	"mime"
	"path"
	"strings"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

// Kind returns the transcript content kind for an attachment named name.
func Kind(name string) string {
	if IsImage(name) {
		return protocol.ContentImage
	}
	return protocol.ContentFile
}

// ContentType guesses a MIME type from the extension of name.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ResolveURL joins a server path onto publicURL. Absolute http(s) paths and
// an empty publicURL return filePath unchanged.
func ResolveURL(publicURL, filePath string) string {
	if isAbsURL(filePath) || publicURL == "" {
		return filePath
	}
	return strings.TrimRight(publicURL, "/") + "/" + strings.TrimLeft(filePath, "/")
}

// RelativePath strips publicURL and leading slashes from a stored path,
// giving a slash-separated path relative to the public root.
func RelativePath(publicURL, filePath string) string {
	p := filePath
	if publicURL != "" {
		p = strings.TrimPrefix(p, strings.TrimRight(publicURL, "/"))
	}
	return strings.TrimLeft(path.Clean("/"+p), "/")
}

func isAbsURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

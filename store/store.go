package store

import (
	"crypto/sha256"
	"encoding/hex"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	ierrors "github.com/cnosuke/pagemirror/internal/errors"
	"github.com/cnosuke/pagemirror/types"
)

const (
	// DefaultFilename names assets whose URL path has no usable last segment.
	DefaultFilename = "index.html"

	// CategoryOther holds assets whose type could not be determined.
	CategoryOther = "other"

	fingerprintPrefixLen = 8
	maxBaseNameLen       = 100
)

// canonicalCategories maps common web content types to the category (and
// extension without the dot) used on disk.
var canonicalCategories = map[string]string{
	"text/html":                     "html",
	"application/xhtml+xml":         "xhtml",
	"text/css":                      "css",
	"text/javascript":               "js",
	"application/javascript":        "js",
	"application/x-javascript":      "js",
	"application/ecmascript":        "js",
	"application/json":              "json",
	"application/ld+json":           "jsonld",
	"application/manifest+json":     "webmanifest",
	"text/plain":                    "txt",
	"text/xml":                      "xml",
	"application/xml":               "xml",
	"text/vtt":                      "vtt",
	"image/png":                     "png",
	"image/jpeg":                    "jpg",
	"image/pjpeg":                   "jpg",
	"image/gif":                     "gif",
	"image/webp":                    "webp",
	"image/avif":                    "avif",
	"image/svg+xml":                 "svg",
	"image/x-icon":                  "ico",
	"image/vnd.microsoft.icon":      "ico",
	"image/bmp":                     "bmp",
	"font/woff":                     "woff",
	"font/woff2":                    "woff2",
	"font/ttf":                      "ttf",
	"font/otf":                      "otf",
	"application/font-woff":         "woff",
	"application/font-woff2":        "woff2",
	"application/x-font-ttf":        "ttf",
	"application/vnd.ms-fontobject": "eot",
	"audio/mpeg":                    "mp3",
	"audio/ogg":                     "ogg",
	"audio/wav":                     "wav",
	"audio/webm":                    "weba",
	"video/mp4":                     "mp4",
	"video/webm":                    "webm",
	"video/ogg":                     "ogv",
	"application/pdf":               "pdf",
	"application/octet-stream":      "bin",
	"application/wasm":              "wasm",
}

// Store persists fetched payloads under a mirror root using
// fingerprint-bearing filenames. It is safe for concurrent use.
type Store struct {
	root string
}

// New creates the mirror root if needed and returns a Store writing into it.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ierrors.Mark(errors.Wrapf(err, "failed to create mirror root %s", root), ierrors.ErrStorage)
	}
	return &Store{root: root}, nil
}

// Root returns the mirror root directory.
func (s *Store) Root() string {
	return s.root
}

// Store writes data under {root}/{category}/{base}_{fp8}{ext} and returns
// the stored asset with its slash-separated path relative to the root.
func (s *Store) Store(data []byte, contentType, sourceURL string) (*types.StoredAsset, error) {
	filename := FilenameFromURL(sourceURL)
	category := Category(contentType, filename)
	fingerprint := Fingerprint(data)
	name := StoredName(filename, category, fingerprint)

	dir := filepath.Join(s.root, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ierrors.Mark(errors.Wrapf(err, "failed to create category directory %s", dir), ierrors.ErrStorage)
	}

	dest := filepath.Join(dir, name)
	if fi, err := os.Stat(dest); err == nil && fi.Mode().IsRegular() && fi.Size() == int64(len(data)) {
		zap.S().Debugw("asset already stored", "path", dest, "url", sourceURL)
	} else if err := writeAtomic(dest, data); err != nil {
		return nil, err
	}

	relPath := path.Join(category, name)
	zap.S().Debugw("asset stored",
		"url", sourceURL,
		"category", category,
		"rel_path", relPath,
		"bytes", len(data))

	return &types.StoredAsset{
		Category:    category,
		Fingerprint: fingerprint,
		RelPath:     relPath,
		Size:        len(data),
		SourceURL:   sourceURL,
	}, nil
}

// WriteEntry atomically writes the entry document directly under the root.
func (s *Store) WriteEntry(name string, data []byte) (string, error) {
	dest := filepath.Join(s.root, filepath.Base(name))
	if err := writeAtomic(dest, data); err != nil {
		return "", err
	}
	return dest, nil
}

// writeAtomic writes to a temp file next to dest and renames it into place,
// so concurrent writers of identical content never expose a partial file.
func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return ierrors.Mark(errors.Wrapf(err, "failed to create temp file for %s", dest), ierrors.ErrStorage)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ierrors.Mark(errors.Wrapf(err, "failed to write %s", dest), ierrors.ErrStorage)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ierrors.Mark(errors.Wrapf(err, "failed to close %s", dest), ierrors.ErrStorage)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return ierrors.Mark(errors.Wrapf(err, "failed to chmod %s", dest), ierrors.ErrStorage)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return ierrors.Mark(errors.Wrapf(err, "failed to rename into %s", dest), ierrors.ErrStorage)
	}
	return nil
}

// FilenameFromURL returns the decoded last path segment of rawURL, or
// DefaultFilename when there is none. Characters that would change the
// meaning of the name inside a URL, an unquoted url(...) or a srcset
// candidate are replaced with '_'.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return DefaultFilename
	}
	p := u.Path
	if p == "" || strings.HasSuffix(p, "/") {
		return DefaultFilename
	}
	name := path.Base(p)
	if name == "." || name == ".." || name == "/" || name == "" {
		return DefaultFilename
	}
	return strings.Map(portableRune, name)
}

func portableRune(r rune) rune {
	switch r {
	case '/', '\\', 0, '#', '?', '%', '\'', '"', '(', ')', ',':
		return '_'
	}
	if unicode.IsSpace(r) || unicode.IsControl(r) {
		return '_'
	}
	return r
}

// splitExt splits a filename into base and extension (with the dot). A
// leading dot alone does not start an extension.
func splitExt(filename string) (string, string) {
	ext := path.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	if base == "" {
		return filename, ""
	}
	return base, ext
}

// Category derives the on-disk category for a payload: declared content
// type first, then the filename extension, then CategoryOther.
func Category(contentType, filename string) string {
	if c := categoryFromContentType(contentType); c != "" {
		return c
	}
	if _, ext := splitExt(filename); ext != "" {
		if c := sanitizeCategory(ext); c != "" {
			return c
		}
	}
	return CategoryOther
}

func categoryFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	mediaType = strings.ToLower(mediaType)
	if mediaType == "" {
		return ""
	}
	if c, ok := canonicalCategories[mediaType]; ok {
		return c
	}
	if m := mimetype.Lookup(mediaType); m != nil && m.Extension() != "" {
		return sanitizeCategory(m.Extension())
	}
	return ""
}

// sanitizeCategory turns an extension into a safe directory token.
func sanitizeCategory(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Fingerprint returns the hex SHA-256 digest of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StoredName builds {base}_{fp8}{ext}. Names without an extension borrow
// one from the category.
func StoredName(filename, category, fingerprint string) string {
	base, ext := splitExt(filename)
	if len(base) > maxBaseNameLen {
		base = strings.ToValidUTF8(base[:maxBaseNameLen], "")
	}
	if ext == "" && category != CategoryOther {
		ext = "." + category
	}
	fp := fingerprint
	if len(fp) > fingerprintPrefixLen {
		fp = fp[:fingerprintPrefixLen]
	}
	return base + "_" + fp + ext
}

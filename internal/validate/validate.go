// Package validate decides whether a downloaded media file may be sent for
// transcription.
package validate

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrInvalidFile is matched by every ValidationError.
var ErrInvalidFile = errors.New("invalid file")

// ValidationError reports the first check a file failed.
type ValidationError struct {
	Filename string
	Reason   string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidFile }

// Options configures a Validator.
type Options struct {
	MaxSize    int64    // inclusive
	Extensions []string // lower-case, with leading dot
	MIMETypes  []string
}

// Validator checks filename, extension, sniffed content type and size.
type Validator struct {
	maxSize    int64
	extensions map[string]bool
	mimeTypes  []string
}

func New(o Options) *Validator {
	exts := make(map[string]bool, len(o.Extensions))
	for _, e := range o.Extensions {
		exts[strings.ToLower(e)] = true
	}
	return &Validator{
		maxSize:    o.MaxSize,
		extensions: exts,
		mimeTypes:  o.MIMETypes,
	}
}

// Validate returns nil when the file passes every check, otherwise a
// *ValidationError for the first failing one. Checks run in order: filename
// present, extension allowed, sniffed type allowed, size within limit.
func (v *Validator) Validate(filename string, contents []byte) error {
	if filename == "" {
		return &ValidationError{Reason: "no filename provided"}
	}

	ext := strings.ToLower(path.Ext(filename))
	if !v.extensions[ext] {
		return &ValidationError{Filename: filename, Reason: fmt.Sprintf("file type %s not supported", ext)}
	}

	detected := mimetype.Detect(contents)
	if !v.mimeAllowed(detected) {
		return &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file type is not accepted (detected %s)", detected.String()),
		}
	}

	if int64(len(contents)) > v.maxSize {
		return &ValidationError{
			Filename: filename,
			Reason:   fmt.Sprintf("file size exceeds the limit of %d bytes", v.maxSize),
		}
	}
	return nil
}

// MaxSize returns the configured byte limit.
func (v *Validator) MaxSize() int64 { return v.maxSize }

// AllowsExtension reports whether name's extension is on the allow-list.
func (v *Validator) AllowsExtension(name string) bool {
	return v.extensions[strings.ToLower(path.Ext(name))]
}

func (v *Validator) mimeAllowed(m *mimetype.MIME) bool {
	for _, allowed := range v.mimeTypes {
		if m.Is(allowed) {
			return true
		}
	}
	return false
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeFilename strips any directory part of name and replaces every
// character outside [A-Za-z0-9_.-] with an underscore. It is idempotent.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

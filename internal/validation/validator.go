// Package validation decides which files the intake accepts and guards
// names received from remote peers.
package validation

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

var (
	ErrTooLarge  = errors.New("file exceeds maximum size")
	ErrExtension = errors.New("file extension not allowed")
)

// Validator decides whether a file may be taken in. Rejected files are
// dropped without notifying anyone.
type Validator interface {
	Valid(size int64, ext string) bool
}

// Rules is a Validator with a size cap and an extension allow-list.
type Rules struct {
	MaxSize    int64               // Zero or negative means unlimited
	Extensions map[string]struct{} // Lowercase, without dot; empty allows all
}

// NewRules builds rules from a size cap and a list of extensions.
func NewRules(maxSize int64, extensions []string) *Rules {
	r := &Rules{MaxSize: maxSize, Extensions: make(map[string]struct{})}
	for _, ext := range extensions {
		ext = normalizeExt(ext)
		if ext != "" {
			r.Extensions[ext] = struct{}{}
		}
	}
	return r
}

// ParseExtensions splits a list like "jpg;png, .PDF" into extensions.
func ParseExtensions(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if ext := normalizeExt(f); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// Check returns a wrapped ErrTooLarge or ErrExtension describing why a file
// is rejected, or nil.
func (r *Rules) Check(size int64, ext string) error {
	if r.MaxSize > 0 && size > r.MaxSize {
		return fmt.Errorf("%w: %s > %s", ErrTooLarge,
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(r.MaxSize)))
	}
	if len(r.Extensions) > 0 {
		if _, ok := r.Extensions[normalizeExt(ext)]; !ok {
			return fmt.Errorf("%w: %q", ErrExtension, ext)
		}
	}
	return nil
}

// Valid implements Validator.
func (r *Rules) Valid(size int64, ext string) bool {
	return r.Check(size, ext) == nil
}

// AllowedList returns the allowed extensions, sorted.
func (r *Rules) AllowedList() []string {
	out := make([]string, 0, len(r.Extensions))
	for ext := range r.Extensions {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// AllowAll accepts every file.
type AllowAll struct{}

func (AllowAll) Valid(size int64, ext string) bool { return true }

// Package jsonfile reads and rewrites whole JSON documents on disk.
//
// Documents are handled as raw bytes so that object key order survives a
// round trip. Format produces the canonical on-disk layout: two-space
// indentation, keys in document order, non-ASCII text written as literal
// UTF-8 even when the input escaped it.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	"unicode/utf16"
	"unicode/utf8"
)

// ErrInvalidJSON is returned when a document does not parse.
var ErrInvalidJSON = errors.New("invalid JSON")

// BackupTimeFormat is the timestamp layout appended to backup file names.
const BackupTimeFormat = "20060102-150405"

// Read loads a whole file.
func Read(path string) ([]byte, error) {
	// #nosec G304 - controlled path from CLI
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Format re-indents doc with two spaces and a trailing newline.
// \uXXXX escapes of non-ASCII characters are replaced by the characters
// themselves; ASCII escapes such as \" or \u001f are kept.
func Format(doc []byte) ([]byte, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	literal := unescapeNonASCII(compact.Bytes())

	var out bytes.Buffer
	out.Grow(len(literal) * 2)
	if err := json.Indent(&out, literal, "", "  "); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// unescapeNonASCII rewrites the \uXXXX escapes of non-ASCII code points in
// valid JSON as UTF-8, joining surrogate pairs. Lone surrogates stay escaped.
func unescapeNonASCII(src []byte) []byte {
	if !bytes.Contains(src, []byte(`\u`)) {
		return src
	}

	out := make([]byte, 0, len(src))
	for i := 0; i < len(src); i++ {
		if src[i] != '\\' {
			out = append(out, src[i])
			continue
		}
		if r, n := decodeEscape(src[i:]); n > 0 {
			out = utf8.AppendRune(out, r)
			i += n - 1
			continue
		}
		// Keep the escape pair so an escaped backslash is never read as the
		// start of a new escape.
		out = append(out, src[i])
		if i+1 < len(src) {
			i++
			out = append(out, src[i])
		}
	}
	return out
}

// decodeEscape decodes the escape at the start of s. n is 0 when the escape
// must be kept as written.
func decodeEscape(s []byte) (r rune, n int) {
	r1, ok := hexEscape(s)
	if !ok || r1 < utf8.RuneSelf {
		return 0, 0
	}
	if !utf16.IsSurrogate(r1) {
		return r1, 6
	}
	r2, ok := hexEscape(s[6:])
	if !ok {
		return 0, 0
	}
	if r = utf16.DecodeRune(r1, r2); r == utf8.RuneError {
		return 0, 0
	}
	return r, 12
}

func hexEscape(s []byte) (rune, bool) {
	if len(s) < 6 || s[0] != '\\' || s[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(s[2:6]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}

// WriteAtomic replaces path with data via a temp file and rename.
// The original file mode is kept when path already exists.
func WriteAtomic(path string, data []byte) error {
	perm := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Backup copies path to path.backup.<timestamp> and returns the backup path.
func Backup(path string, now time.Time) (string, error) {
	input, err := Read(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input for backup: %w", err)
	}

	backupPath := path + ".backup." + now.Format(BackupTimeFormat)
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return "", fmt.Errorf("failed to create backup: %w", err)
	}
	return backupPath, nil
}

// Package validation checks user-supplied paths, filenames and uploads
// before ScoreShift reads or writes them.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxScoreSize is the largest score accepted for transposition (64 MiB).
	MaxScoreSize = 64 << 20
	// MaxFilenameLength is the maximum allowed filename length.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// SanitizePath validates and sanitizes a user-supplied path to prevent path traversal attacks.
// It ensures the path does not escape the provided base directory.
// Returns the cleaned path relative to the base directory, or an error if invalid.
func SanitizePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}

	// Check path length
	if len(userPath) > MaxPathLength {
		return "", ErrPathTooLong
	}

	// Clean the path to remove redundant separators and resolve . and ..
	cleanPath := filepath.Clean(userPath)

	// Reject paths that try to escape the base directory
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	// Reject absolute paths (should be relative to baseDir)
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	// Build full path and verify it's within baseDir
	fullPath := filepath.Join(baseDir, cleanPath)
	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	// Ensure the resolved path is within the base directory
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || strings.HasPrefix(relPath, "..") {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// ValidateFilename checks if a filename is safe and does not contain malicious characters.
// It rejects filenames with path separators, control characters, and dangerous patterns.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}

	// Check length
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}

	// Reject dangerous filenames
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}

	// Check for path separators
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}

	// Check for null bytes (common injection attack)
	if strings.Contains(filename, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidFilename)
	}

	// Check for control characters
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}

	// Reject filenames starting with hyphen (can be confused with command flags)
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}

	return nil
}

// ValidatePath performs comprehensive path validation without requiring a base directory.
// It checks for dangerous patterns, length limits, and invalid characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}

	// Check length
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}

	// Check for null bytes
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	// Check for control characters
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// FileType represents a validated file type.
type FileType string

const (
	FileTypeTarXZ    FileType = "tar.xz"
	FileTypeTarGZ    FileType = "tar.gz"
	FileTypeGzip     FileType = "gzip"
	FileTypeXZ       FileType = "xz"
	FileTypeZip      FileType = "zip"
	FileTypeSQLite   FileType = "sqlite"
	FileTypeMusicXML FileType = "musicxml"
	FileTypeUnknown  FileType = "unknown"
)

// magicBytes defines magic byte signatures for file type detection.
var magicBytes = []struct {
	fileType FileType
	magic    []byte
}{
	{FileTypeGzip, []byte{0x1f, 0x8b}},
	{FileTypeXZ, []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}},
	{FileTypeZip, []byte{0x50, 0x4b, 0x03, 0x04}}, // also compressed .mxl
	{FileTypeSQLite, []byte("SQLite format 3")},
}

var (
	// ErrScoreTooLarge is returned for uploads above MaxScoreSize.
	ErrScoreTooLarge = fmt.Errorf("score exceeds %d bytes", MaxScoreSize)
	// ErrUnsupportedType is returned when content is not of an accepted type.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// ValidateScore checks that data looks like an uncompressed MusicXML score
// and is not too large. It does not parse the XML.
func ValidateScore(data []byte) error {
	if len(data) > MaxScoreSize {
		return ErrScoreTooLarge
	}
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	switch t := detectFileTypeFromMagic(head); t {
	case FileTypeUnknown:
	case FileTypeZip:
		return fmt.Errorf("%w: compressed MusicXML (.mxl) is not supported", ErrUnsupportedType)
	default:
		return fmt.Errorf("%w: got %s data, want MusicXML", ErrUnsupportedType, t)
	}
	if !isLikelyText(head) || !bytes.Contains(data, []byte("<score-")) {
		return fmt.Errorf("%w: not a MusicXML score", ErrUnsupportedType)
	}
	return nil
}

// ValidateFileType validates that a file's content matches its claimed type based on filename extension.
// It reads the file's magic bytes to verify the actual file type.
// Returns the detected file type or an error if the file type doesn't match expectations.
func ValidateFileType(reader io.Reader, filename string) (FileType, error) {
	// The first 512 bytes are enough for every signature and the text check.
	buf := make([]byte, 512)
	n, err := io.ReadFull(reader, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FileTypeUnknown, fmt.Errorf("failed to read file header: %w", err)
	}
	buf = buf[:n]

	// Detect actual file type from magic bytes
	detectedType := detectFileTypeFromMagic(buf)

	// Determine expected type from extension
	expectedType := detectFileTypeFromExtension(filename)

	// Compressed bundles and scores are only recognisable by their wrapper.
	switch {
	case expectedType == FileTypeTarXZ && detectedType == FileTypeXZ:
		return FileTypeTarXZ, nil
	case expectedType == FileTypeTarGZ && detectedType == FileTypeGzip:
		return FileTypeTarGZ, nil
	case detectedType == expectedType && detectedType != FileTypeUnknown:
		return detectedType, nil
	case expectedType == FileTypeMusicXML && detectedType == FileTypeUnknown:
		if isLikelyText(buf) {
			return FileTypeMusicXML, nil
		}
		return FileTypeUnknown, fmt.Errorf("%w: %s is not text", ErrUnsupportedType, filename)
	case expectedType == FileTypeUnknown:
		return FileTypeUnknown, fmt.Errorf("%w: %s", ErrUnsupportedType, filename)
	}
	return FileTypeUnknown, fmt.Errorf("file type mismatch: extension suggests %s but content is %s", expectedType, detectedType)
}

// detectFileTypeFromMagic detects file type from magic bytes.
func detectFileTypeFromMagic(buf []byte) FileType {
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.fileType
		}
	}
	return FileTypeUnknown
}

// detectFileTypeFromExtension determines expected file type from filename extension.
func detectFileTypeFromExtension(filename string) FileType {
	lower := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return FileTypeTarXZ
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FileTypeTarGZ
	}

	switch filepath.Ext(lower) {
	case ".xz":
		return FileTypeXZ
	case ".gz":
		return FileTypeGzip
	case ".mxl", ".zip":
		return FileTypeZip
	case ".db", ".sqlite", ".sqlite3":
		return FileTypeSQLite
	case ".musicxml", ".xml":
		return FileTypeMusicXML
	}
	return FileTypeUnknown
}

// isLikelyText checks if the buffer contains likely text content.
// Returns true if the buffer appears to be text (UTF-8, ASCII).
func isLikelyText(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}

	// Check for null bytes (strong indicator of binary content)
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}

	// Count printable characters vs control characters
	printable := 0
	control := 0
	for _, b := range buf {
		if b >= 0x20 && b <= 0x7e || b == '\t' || b == '\n' || b == '\r' {
			printable++
		} else if b < 0x20 && b != '\t' && b != '\n' && b != '\r' {
			control++
		}
		// UTF-8 continuation bytes (0x80-0xBF) and start bytes (0xC0-0xFD) are neutral
	}

	// If more than 95% is printable, consider it text
	if printable > 0 && float64(printable)/float64(printable+control) > 0.95 {
		return true
	}

	return false
}

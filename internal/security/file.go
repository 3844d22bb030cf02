package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// File permission constants
const (
	// PermSecretFile is the permission for files containing secrets (owner read/write only)
	PermSecretFile os.FileMode = 0600

	// PermSecretDir is the permission for directories containing secrets
	PermSecretDir os.FileMode = 0700
)

// File operation errors
var (
	ErrInsecurePermissions = errors.New("security: insecure file permissions")
	ErrAtomicWriteFailed   = errors.New("security: atomic write failed")
	ErrTempFileFailed      = errors.New("security: temporary file creation failed")
	ErrFileTooLarge        = errors.New("security: file exceeds maximum size")
	ErrMalformedSecret     = errors.New("security: malformed secret file")
)

// SecureFileWriter handles atomic file writes with secure permissions.
type SecureFileWriter struct {
	path     string
	perm     os.FileMode
	tempFile *os.File
	tempPath string
}

// NewSecureFileWriter creates a writer for secure atomic file writes.
// The file is written to a temporary file first, then renamed atomically.
func NewSecureFileWriter(path string, perm os.FileMode) (*SecureFileWriter, error) {
	cleanPath, err := DefaultPathValidator().ValidatePath(path)
	if err != nil {
		return nil, err
	}

	if err := EnsureSecureDir(filepath.Dir(cleanPath)); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	// Same directory so the rename stays on one filesystem.
	tempPath := cleanPath + ".tmp." + RandomHex(8)
	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTempFileFailed, err)
	}

	return &SecureFileWriter{
		path:     cleanPath,
		perm:     perm,
		tempFile: tempFile,
		tempPath: tempPath,
	}, nil
}

// Write writes data to the temporary file.
func (w *SecureFileWriter) Write(p []byte) (n int, err error) {
	return w.tempFile.Write(p)
}

// Commit atomically moves the temporary file to the final path.
func (w *SecureFileWriter) Commit() error {
	if err := w.tempFile.Sync(); err != nil {
		w.Abort()
		return fmt.Errorf("sync: %w", err)
	}

	if err := w.tempFile.Close(); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("close: %w", err)
	}

	if err := os.Rename(w.tempPath, w.path); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("%w: %v", ErrAtomicWriteFailed, err)
	}

	return nil
}

// Abort cancels the write and removes the temporary file.
func (w *SecureFileWriter) Abort() {
	w.tempFile.Close()
	os.Remove(w.tempPath)
}

// WriteSecretFile writes data atomically with secret permissions (0600).
func WriteSecretFile(path string, data []byte) error {
	writer, err := NewSecureFileWriter(path, PermSecretFile)
	if err != nil {
		return err
	}

	if _, err := writer.Write(data); err != nil {
		writer.Abort()
		return err
	}

	return writer.Commit()
}

// ReadSecureFile reads a file and verifies its permissions are secure.
// It returns an error if the file is readable by group or others.
func ReadSecureFile(path string, maxSize int64) ([]byte, error) {
	cleanPath, err := DefaultPathValidator().ValidatePath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, err
	}

	if runtime.GOOS != "windows" {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			return nil, fmt.Errorf("%w: file %s has mode %04o, expected %04o",
				ErrInsecurePermissions, cleanPath, mode, PermSecretFile)
		}
	}

	if maxSize > 0 && info.Size() > maxSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, info.Size(), maxSize)
	}

	return os.ReadFile(cleanPath)
}

// EnsureSecureDir ensures a directory exists with secure permissions.
func EnsureSecureDir(path string) error {
	cleanPath, err := DefaultPathValidator().ValidatePath(path)
	if err != nil {
		return err
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(cleanPath, PermSecretDir)
		}
		return err
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidPath, cleanPath)
	}

	return nil
}

// LoadOrCreateHexSecret returns the hex secret stored at path, creating it
// with size random bytes on first use. Creation is serialized across
// processes with an exclusive lock on a sibling ".lock" file, and the secret
// itself is published with an atomic rename, so concurrent first runs agree
// on a single value. An existing file is never rewritten.
func LoadOrCreateHexSecret(path string, size int) (string, error) {
	if err := EnsureSecureDir(filepath.Dir(path)); err != nil {
		return "", fmt.Errorf("secret directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, PermSecretFile)
	if err != nil {
		return "", fmt.Errorf("open lock file: %w", err)
	}
	defer lock.Close()

	if err := LockFile(lock); err != nil {
		return "", fmt.Errorf("lock secret: %w", err)
	}
	defer UnlockFile(lock)

	data, err := ReadSecureFile(path, int64(4*size))
	switch {
	case err == nil:
		secret := strings.TrimSpace(string(data))
		if err := ValidateHexString(secret, 2*size); err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrMalformedSecret, path, err)
		}
		return strings.ToLower(secret), nil
	case !errors.Is(err, os.ErrNotExist):
		return "", err
	}

	raw, err := GenerateKey(size)
	if err != nil {
		return "", err
	}
	defer Wipe(raw)

	secret := fmt.Sprintf("%x", raw)
	if err := WriteSecretFile(path, []byte(secret)); err != nil {
		return "", fmt.Errorf("write secret: %w", err)
	}
	return secret, nil
}

// LockFile attempts to acquire an exclusive lock on a file.
// This is platform-specific and uses flock on Unix.
func LockFile(f *os.File) error {
	return lockFile(f)
}

// UnlockFile releases the exclusive lock on a file.
func UnlockFile(f *os.File) error {
	return unlockFile(f)
}

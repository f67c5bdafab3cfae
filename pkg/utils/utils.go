// Package utils holds small helpers shared by the ingestion and viewer packages.
package utils

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
)

type progressWriter struct {
	io.Writer
	total uint64
	last  uint64
	label string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.Writer.Write(p)
	pw.total += uint64(n)
	if pw.total-pw.last > 5*1024*1024 { // Log every 5MB
		log.Printf("%s: Read %d MB", pw.label, pw.total/1024/1024)
		pw.last = pw.total
	}
	return n, err
}

// ReadAllWithProgress reads r to the end, logging progress every 5MB under label.
func ReadAllWithProgress(r io.Reader, label string) ([]byte, error) {
	var buf bytes.Buffer
	pw := &progressWriter{Writer: &buf, label: label}
	if _, err := io.Copy(pw, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		if err := os.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			log.Printf("Error removing temp file %s: %v", tmpName, err)
		}
	}() // Clean up if we fail

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CloseQuietly closes c and logs, rather than returns, any error.
func CloseQuietly(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		log.Printf("Error closing %s: %v", what, err)
	}
}

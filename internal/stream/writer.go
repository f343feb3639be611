package stream

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mmeshcher/load-velocity/internal/model"
)

// Writer записывает решения по одному JSON-объекту в строке.
type Writer struct {
	file *os.File
	gz   *gzip.Writer
	buf  *bufio.Writer
	enc  *json.Encoder
}

// Create создаёт выходной файл, перезаписывая существующий.
// Для файлов с расширением .gz вывод сжимается.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}

	w := &Writer{file: f}
	var dst io.Writer = f
	if strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		dst = w.gz
	}

	w.buf = bufio.NewWriter(dst)
	w.enc = newEncoder(w.buf)
	return w, nil
}

// NewWriter создаёт Writer поверх произвольного приёмника.
func NewWriter(dst io.Writer) *Writer {
	buf := bufio.NewWriter(dst)
	return &Writer{buf: buf, enc: newEncoder(buf)}
}

// Идентификаторы выводятся байт в байт, без экранирования &, < и >.
func newEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// Write записывает одно решение.
func (w *Writer) Write(d model.Decision) error {
	if err := w.enc.Encode(d); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	return nil
}

// Close сбрасывает буферы и закрывает выходной файл.
func (w *Writer) Close() error {
	if err := w.buf.Flush(); err != nil {
		if w.file != nil {
			w.file.Close()
		}
		return fmt.Errorf("flush output: %w", err)
	}

	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return fmt.Errorf("close gzip output: %w", err)
		}
	}

	if w.file != nil {
		if err := w.file.Close(); err != nil {
			return fmt.Errorf("close output: %w", err)
		}
	}
	return nil
}

// Package stream читает входные записи и записывает решения в формате JSON Lines.
package stream

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 1 << 20

// ErrRecordTooLong означает, что строка длиннее maxLineSize и была пропущена.
var ErrRecordTooLong = errors.New("record too long")

// Record содержит одну непустую строку входного файла.
// Для слишком длинной строки Data пуст, а Err равен ErrRecordTooLong.
type Record struct {
	Line int
	Data []byte
	Err  error
}

// Reader последовательно отдаёт строки входного файла.
type Reader struct {
	closers []io.Closer
	br      *bufio.Reader
	line    int
}

// Open открывает входной файл. Файлы с расширением .gz распаковываются на лету.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}

	r := &Reader{closers: []io.Closer{f}}
	var src io.Reader = f

	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip input: %w", err)
		}
		r.closers = append([]io.Closer{gz}, r.closers...)
		src = gz
	}

	r.br = bufio.NewReaderSize(src, 64*1024)
	return r, nil
}

// NewReader создаёт Reader поверх произвольного источника.
func NewReader(src io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(src, 64*1024)}
}

// Next возвращает следующую непустую строку или io.EOF по окончании данных.
// Слишком длинная строка дочитывается до конца и отдаётся как Record с Err,
// чтобы обработка продолжилась со следующей строки.
func (r *Reader) Next() (Record, error) {
	for {
		data, tooLong, err := r.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("read input line %d: %w", r.line+1, err)
		}
		r.line++

		if tooLong {
			return Record{Line: r.line, Err: fmt.Errorf("%w: more than %d bytes", ErrRecordTooLong, maxLineSize)}, nil
		}

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			continue
		}
		return Record{Line: r.line, Data: data}, nil
	}
}

// readLine читает строку целиком. Содержимое строки длиннее maxLineSize
// не накапливается, возвращается только признак tooLong.
func (r *Reader) readLine() (line []byte, tooLong bool, err error) {
	read := false
	for {
		var chunk []byte
		chunk, err = r.br.ReadSlice('\n')
		if len(chunk) > 0 {
			read = true
		}

		if !tooLong {
			if len(line)+len(bytes.TrimRight(chunk, "\r\n")) > maxLineSize {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case err == nil:
			return line, tooLong, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if !read {
				return nil, false, io.EOF
			}
			return line, tooLong, nil
		default:
			return nil, false, err
		}
	}
}

// Close закрывает входной файл.
func (r *Reader) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

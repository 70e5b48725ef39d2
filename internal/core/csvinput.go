package core

// csvinput.go turns a CSV stream into an ImportRequest for the CLI and the
// multipart upload endpoint. Spreadsheet exports are cleaned on the way in:
//
//   - a leading UTF-8 BOM is dropped
//   - invalid UTF-8 bytes in a cell become '?'
//   - rows may have a varying number of cells

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after a leading UTF-8 BOM, if any.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// CSVOptions controls ReadCSV.
type CSVOptions struct {
	HasHeaders bool
	Comma      rune // defaults to ','
	MaxRows    int  // data rows; 0 means no limit
}

// ReadCSV reads r into an ImportRequest. With HasHeaders the first record
// becomes Headers. Reading stops with an error once more than MaxRows data
// rows are seen.
func ReadCSV(r io.Reader, opts CSVOptions) (ImportRequest, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	req := ImportRequest{HasHeaders: opts.HasHeaders, Data: [][]any{}}
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ImportRequest{}, fmt.Errorf("read csv line %d: %w", line, err)
		}

		if opts.HasHeaders && req.Headers == nil {
			req.Headers = make([]string, len(rec))
			for i, h := range rec {
				req.Headers[i] = strings.ToValidUTF8(h, "?")
			}
			continue
		}

		if opts.MaxRows > 0 && len(req.Data) >= opts.MaxRows {
			return ImportRequest{}, ValidationError("csv has more than %d data rows", opts.MaxRows)
		}
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = strings.ToValidUTF8(cell, "?")
		}
		req.Data = append(req.Data, row)
	}

	if opts.HasHeaders && req.Headers == nil {
		return ImportRequest{}, ValidationError("csv is empty: header row expected")
	}
	return req, nil
}

package core

import (
	"bytes"
	"strings"
	"testing"
)

// ============================================================================
// ReadCSV Tests
// ============================================================================

func TestReadCSV(t *testing.T) {
	tests := []struct {
		name        string
		input       []byte
		opts        CSVOptions
		wantHeaders []string
		wantRows    [][]any
		wantErr     string
	}{
		{
			name:        "headers and rows",
			input:       []byte("name,price\nWidget,9.99\nGadget,1\n"),
			opts:        CSVOptions{HasHeaders: true},
			wantHeaders: []string{"name", "price"},
			wantRows:    [][]any{{"Widget", "9.99"}, {"Gadget", "1"}},
		},
		{
			name:     "no headers",
			input:    []byte("a,b\n"),
			wantRows: [][]any{{"a", "b"}},
		},
		{
			name:        "BOM dropped",
			input:       append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\nx\n")...),
			opts:        CSVOptions{HasHeaders: true},
			wantHeaders: []string{"name"},
			wantRows:    [][]any{{"x"}},
		},
		{
			name:     "partial BOM kept",
			input:    []byte{0xEF, 0xBB, 'a', '\n'},
			wantRows: [][]any{{"?a"}},
		},
		{
			name:     "invalid UTF-8 replaced",
			input:    []byte("caf\xe9\n"),
			wantRows: [][]any{{"caf?"}},
		},
		{
			name:     "ragged rows",
			input:    []byte("a,b,c\nd\n"),
			wantRows: [][]any{{"a", "b", "c"}, {"d"}},
		},
		{
			name:     "semicolon separated",
			input:    []byte("a;b\n"),
			opts:     CSVOptions{Comma: ';'},
			wantRows: [][]any{{"a", "b"}},
		},
		{
			name:    "row limit",
			input:   []byte("h\n1\n2\n3\n"),
			opts:    CSVOptions{HasHeaders: true, MaxRows: 2},
			wantErr: "more than 2 data rows",
		},
		{
			name:    "empty with headers expected",
			input:   []byte{},
			opts:    CSVOptions{HasHeaders: true},
			wantErr: "header row expected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadCSV(bytes.NewReader(tt.input), tt.opts)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ReadCSV() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadCSV() unexpected error: %v", err)
			}
			if strings.Join(req.Headers, "|") != strings.Join(tt.wantHeaders, "|") {
				t.Errorf("Headers = %v, want %v", req.Headers, tt.wantHeaders)
			}
			if len(req.Data) != len(tt.wantRows) {
				t.Fatalf("len(Data) = %d, want %d", len(req.Data), len(tt.wantRows))
			}
			for i, row := range tt.wantRows {
				if len(req.Data[i]) != len(row) {
					t.Fatalf("row %d has %d cells, want %d", i, len(req.Data[i]), len(row))
				}
				for j, cell := range row {
					if req.Data[i][j] != cell {
						t.Errorf("Data[%d][%d] = %q, want %q", i, j, req.Data[i][j], cell)
					}
				}
			}
		})
	}
}

func TestReadCSV_RecordsAreNotShared(t *testing.T) {
	req, err := ReadCSV(strings.NewReader("a\nb\n"), CSVOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Data[0][0] != "a" || req.Data[1][0] != "b" {
		t.Errorf("Data = %v, want [[a] [b]]", req.Data)
	}
}

package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrEmptyFile is returned when an upload has no header row.
	ErrEmptyFile = errors.New("file is empty")
	// ErrUnsupportedFormat is returned for file extensions that cannot be parsed.
	ErrUnsupportedFormat = errors.New("unsupported file format")
)

// SupportedExtensions lists the upload formats accepted by Parse.
var SupportedExtensions = []string{".csv", ".tsv", ".txt", ".xlsx", ".xlsm", ".html", ".htm"}

// Parse reads a table from r, choosing the decoder from the file name extension.
func Parse(name string, r io.Reader) (*Table, error) {
	var (
		t   *Table
		err error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		t, err = ParseCSV(r)
	case ".tsv":
		t, err = ParseDelimited(r, '\t')
	case ".xlsx", ".xlsm":
		t, err = ParseXLSX(r)
	case ".html", ".htm":
		t, err = ParseHTML(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err != nil {
		return nil, err
	}
	t.FileName = filepath.Base(name)
	return t, nil
}

// ParseCSV reads comma separated data, falling back to semicolons when the
// header does not split on commas.
func ParseCSV(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	comma := ','
	if line := firstLine(data); !bytes.ContainsRune(line, ',') && bytes.ContainsRune(line, ';') {
		comma = ';'
	}
	return parseDelimitedBytes(data, comma)
}

// ParseDelimited reads data separated by the given rune.
func ParseDelimited(r io.Reader, comma rune) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return parseDelimitedBytes(bytes.TrimPrefix(data, []byte("\ufeff")), comma)
}

func parseDelimitedBytes(data []byte, comma rune) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.LazyQuotes = true    // Allow bare quotes in non-quoted fields

	headers, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}

	rows := [][]string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed row: %w", err)
		}
		if isBlankRow(record) {
			continue
		}
		rows = append(rows, record)
	}
	return build(headers, rows), nil
}

// ParseXLSX reads the first worksheet of an Excel workbook.
func ParseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	all, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	// Leading blank rows are skipped, the first non-blank row is the header.
	for len(all) > 0 && isBlankRow(all[0]) {
		all = all[1:]
	}
	if len(all) == 0 {
		return nil, ErrEmptyFile
	}
	rows := make([][]string, 0, len(all)-1)
	for _, row := range all[1:] {
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return build(all[0], rows), nil
}

// ParseHTML reads the first <table> of an HTML document. Several catalogue
// systems export "spreadsheets" this way.
func ParseHTML(r io.Reader) (*Table, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	tbl := findElement(doc, atom.Table)
	if tbl == nil {
		return nil, ErrEmptyFile
	}
	var all [][]string
	walkRows(tbl, func(tr *html.Node) {
		var row []string
		for c := tr.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
				row = append(row, strings.TrimSpace(textContent(c)))
			}
		}
		if len(row) > 0 {
			all = append(all, row)
		}
	})
	if len(all) == 0 {
		return nil, ErrEmptyFile
	}
	rows := make([][]string, 0, len(all)-1)
	for _, row := range all[1:] {
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	return build(all[0], rows), nil
}

// build widens the header to the widest row and names blank headers the
// way spreadsheet tools do.
func build(headers []string, rows [][]string) *Table {
	width := len(headers)
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	named := make([]string, width)
	for i := range named {
		if i < len(headers) {
			named[i] = strings.TrimSpace(headers[i])
		}
		if named[i] == "" {
			named[i] = fmt.Sprintf("Unnamed: %d", i)
		}
	}
	return New(named, rows)
}

func firstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return data[:i]
	}
	return data
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// walkRows visits <tr> elements of tbl without descending into nested tables.
func walkRows(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Tr:
			fn(c)
		case atom.Table:
		default:
			walkRows(c, fn)
		}
	}
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

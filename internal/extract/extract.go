// Package extract turns uploaded files into text: whole documents for
// indexing, short snippets for summarization and upload previews.
package extract

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/docqa/backend/pkg/apperr"
)

// Extensions the extractor understands, lowercased with leading dot.
var supported = map[string]bool{
	".csv":  true,
	".xls":  true,
	".xlsx": true,
	".pdf":  true,
	".txt":  true,
	".md":   true,
	".docx": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

func Supported(ext string) bool {
	return supported[strings.ToLower(ext)]
}

func SupportedList() []string {
	exts := make([]string, 0, len(supported))
	for ext := range supported {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func unsupportedErr(ext string) error {
	return apperr.Validation("unsupported file type %q; supported extensions: %s",
		ext, strings.Join(SupportedList(), ", "))
}

// Text loads the file into one or more text units for indexing.
// Tabular files become a single markdown-rendered unit. Images carry no
// extractable text and return a validation error here; the vision agent
// reads them directly.
func Text(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".csv":
		md, err := csvToMarkdown(path, 0)
		if err != nil {
			return nil, err
		}
		return []string{md}, nil
	case ".xls", ".xlsx":
		return excelText(path)
	case ".pdf":
		return pdfPages(path, 0)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindNotFound, err, "file %q could not be read", path)
		}
		return []string{string(data)}, nil
	case ".docx":
		text, err := docxText(path)
		if err != nil {
			return nil, err
		}
		return []string{text}, nil
	case ".png", ".jpg", ".jpeg":
		return nil, apperr.Validation("image file %q has no extractable text", filepath.Base(path))
	default:
		return nil, unsupportedErr(ext)
	}
}

// Snippet loads a short excerpt for summarization: first pages of a
// PDF, first rows of a table, leading characters of text formats.
func Snippet(path string, maxPages, maxRows int) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".pdf":
		pages, err := pdfPages(path, maxPages)
		if err != nil {
			return "", err
		}
		return strings.Join(pages, "\n\n"), nil
	case ".csv":
		return csvToMarkdown(path, maxRows)
	case ".xls", ".xlsx":
		units, err := excelText(path)
		if err != nil {
			return "", err
		}
		if len(units) == 0 {
			return "", nil
		}
		return units[0], nil
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", apperr.Wrap(apperr.KindNotFound, err, "file %q could not be read", path)
		}
		return truncate(string(data), 4000), nil
	case ".docx":
		text, err := docxText(path)
		if err != nil {
			return "", err
		}
		return truncate(text, 4000), nil
	case ".png", ".jpg", ".jpeg":
		return "", apperr.Validation("image file %q has no text snippet", filepath.Base(path))
	default:
		return "", unsupportedErr(ext)
	}
}

// Preview returns the excerpt shown after upload.
func Preview(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", apperr.Wrap(apperr.KindNotFound, err, "file %q could not be read", path)
		}
		return truncate(string(data), 1000), nil
	case ".pdf":
		pages, err := pdfPages(path, 2)
		if err != nil {
			return "", err
		}
		return truncate(strings.Join(pages, "\n"), 2000), nil
	case ".csv":
		return csvToMarkdown(path, 5)
	case ".xls", ".xlsx":
		units, err := excelText(path)
		if err != nil {
			return "", err
		}
		if len(units) == 0 {
			return "", nil
		}
		return truncate(units[0], 2000), nil
	case ".docx":
		text, err := docxText(path)
		if err != nil {
			return "", err
		}
		return truncate(text, 2000), nil
	case ".png", ".jpg", ".jpeg":
		return fmt.Sprintf("image file %s (no text preview)", filepath.Base(path)), nil
	default:
		return "", unsupportedErr(ext)
	}
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	// back up to a rune boundary so the cut never splits a multi-byte
	// character
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// csvToMarkdown renders the file as a markdown table. maxRows 0 means
// all rows. Blank cells stay blank; no header heuristics here, the
// tabular agent applies those when it re-reads the raw file.
func csvToMarkdown(path string, maxRows int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindNotFound, err, "file %q could not be read", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", apperr.Wrap(apperr.KindValidation, err, "failed to parse CSV %q", filepath.Base(path))
		}
		records = append(records, record)
		if maxRows > 0 && len(records) > maxRows {
			break
		}
	}

	return RowsToMarkdown(records), nil
}

// RowsToMarkdown renders rows as a markdown table, first row as header.
func RowsToMarkdown(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}

	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}

	pad := func(row []string) []string {
		out := make([]string, width)
		copy(out, row)
		return out
	}

	var b strings.Builder
	b.WriteString("| " + strings.Join(pad(rows[0]), " | ") + " |\n")

	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| " + strings.Join(sep, " | ") + " |\n")

	for _, row := range rows[1:] {
		b.WriteString("| " + strings.Join(pad(row), " | ") + " |\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func pdfPages(path string, maxPages int) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "failed to open PDF %q", filepath.Base(path))
	}
	defer f.Close()

	total := r.NumPage()
	if maxPages > 0 && total > maxPages {
		total = maxPages
	}

	var pages []string
	for i := 1; i <= total; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	return pages, nil
}

func excelText(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "failed to open workbook %q", filepath.Base(path))
	}
	defer f.Close()

	var units []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindValidation, err, "failed to read sheet %q", sheet)
		}
		if len(rows) == 0 {
			continue
		}
		units = append(units, RowsToMarkdown(rows))
	}

	return units, nil
}

// docxText unzips word/document.xml and pulls the text nodes. The html
// parser tolerates the WordprocessingML tags, so goquery can walk them.
func docxText(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "failed to open DOCX %q", filepath.Base(path))
	}
	defer zr.Close()

	var docXML io.ReadCloser
	for _, zf := range zr.File {
		if zf.Name == "word/document.xml" {
			docXML, err = zf.Open()
			if err != nil {
				return "", apperr.Wrap(apperr.KindValidation, err, "failed to read DOCX body")
			}
			break
		}
	}
	if docXML == nil {
		return "", apperr.Validation("DOCX %q has no document body", filepath.Base(path))
	}
	defer docXML.Close()

	doc, err := goquery.NewDocumentFromReader(docXML)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, err, "failed to parse DOCX body")
	}

	var paragraphs []string
	doc.Find("w\\:p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})

	if len(paragraphs) == 0 {
		return strings.TrimSpace(doc.Text()), nil
	}
	return strings.Join(paragraphs, "\n"), nil
}

package services

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const photosynthesis = "Photosynthesis converts light into chemical energy."

// buildPDF writes a one-page PDF that shows text with a standard font. Object
// offsets are computed so the xref table is exact.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:rPr><w:b/></w:rPr><w:t xml:space="preserve">`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	doc := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	ct, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`))
	require.NoError(t, err)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		ext  string
		want Format
		ok   bool
	}{
		{".pdf", FormatPDF, true},
		{"PDF", FormatPDF, true},
		{".docx", FormatDOCX, true},
		{"txt", FormatTXT, true},
		{".exe", "", false},
		{".doc", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.ext, func(t *testing.T) {
			got, err := ParseFormat(tc.ext)
			if !tc.ok {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestExtractTextFromPath_AllFormats(t *testing.T) {
	s := NewFileExtractService()

	tests := []struct {
		name   string
		file   string
		data   []byte
		format Format
	}{
		{"txt", "notes.txt", []byte("\n  " + photosynthesis + "  \n\n"), FormatTXT},
		{"pdf", "notes.pdf", buildPDF(photosynthesis), FormatPDF},
		{"docx", "notes.docx", buildDOCX(t, photosynthesis), FormatDOCX},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, err := s.ExtractTextFromPath(writeTemp(t, tc.file, tc.data), tc.format)
			require.NoError(t, err)
			assert.NotEmpty(t, text)
			assert.Equal(t, strings.TrimSpace(text), text)
			assert.Contains(t, text, "Photosynthesis")
		})
	}
}

func TestExtractTXT_Verbatim(t *testing.T) {
	s := NewFileExtractService()
	body := "\xef\xbb\xbfLine one\n\n\n   indented line\r\n"

	text, err := s.ExtractTextFromPath(writeTemp(t, "a.txt", []byte(body)), FormatTXT)
	require.NoError(t, err)
	assert.Equal(t, "Line one\n\n\n   indented line", text)
}

func TestExtractTXT_InvalidUTF8(t *testing.T) {
	s := NewFileExtractService()

	_, err := s.ExtractTextFromPath(writeTemp(t, "bad.txt", []byte{0xff, 0xfe, 0x41}), FormatTXT)
	var extractErr *ExtractionError
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, FormatTXT, extractErr.Format)
}

func TestExtractDOCX_Paragraphs(t *testing.T) {
	s := NewFileExtractService()
	data := buildDOCX(t, "Mitochondria &amp; ATP", "", "", "Ribosomes build proteins")

	text, err := s.ExtractTextFromPath(writeTemp(t, "bio.docx", data), FormatDOCX)
	require.NoError(t, err)
	assert.Equal(t, "Mitochondria & ATP\n\nRibosomes build proteins", text)
}

func TestExtract_CorruptFiles(t *testing.T) {
	s := NewFileExtractService()

	tests := []struct {
		name   string
		file   string
		data   []byte
		format Format
	}{
		{"pdf garbage", "x.pdf", []byte("this is not a pdf at all"), FormatPDF},
		{"docx not a zip", "x.docx", []byte("PK but not really"), FormatDOCX},
		{"docx without document", "x.docx", func() []byte {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			w, _ := zw.Create("word/styles.xml")
			w.Write([]byte("<styles/>"))
			zw.Close()
			return buf.Bytes()
		}(), FormatDOCX},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			text, err := s.ExtractTextFromPath(writeTemp(t, tc.file, tc.data), tc.format)
			assert.Empty(t, text)
			var extractErr *ExtractionError
			require.ErrorAs(t, err, &extractErr)
			assert.Equal(t, tc.format, extractErr.Format)
		})
	}
}

func TestExtract_EmptyIsNotAnError(t *testing.T) {
	s := NewFileExtractService()

	text, err := s.ExtractTextFromPath(writeTemp(t, "blank.txt", []byte("  \n\t ")), FormatTXT)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractRawText(t *testing.T) {
	s := NewFileExtractService()
	assert.Equal(t, photosynthesis, s.ExtractRawText("\ufeff  "+photosynthesis+"\n"))
	assert.Empty(t, s.ExtractRawText(" \n "))
}

func TestNormalizeExtractedText(t *testing.T) {
	in := "  first  \r\n\r\n\r\n\r\n second\rthird  "
	assert.Equal(t, "first\n\nsecond\nthird", normalizeExtractedText(in))
}

// Package document turns an uploaded CV into plain text.
package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MimeText = "text/plain"
	MimePDF  = "application/pdf"
	MimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var extMimes = map[string]string{
	".txt":  MimeText,
	".md":   MimeText,
	".pdf":  MimePDF,
	".docx": MimeDocx,
}

// MimeFromName guesses the mime type of a CV file from its extension.
func MimeFromName(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	mime, ok := extMimes[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type: %q", ext)
	}
	return mime, nil
}

// ExtractText returns the text content of data interpreted as mime.
func ExtractText(mime string, data []byte) (string, error) {
	switch mime {
	case MimeText:
		return string(data), nil

	case MimePDF:
		return extractPDFText(bytes.NewReader(data), int64(len(data)))

	case MimeDocx:
		return extractDocxText(bytes.NewReader(data), int64(len(data)))

	default:
		return "", fmt.Errorf("unsupported file type: %s", mime)
	}
}

// LoadFile reads a local CV and extracts its text.
func LoadFile(path string) (string, error) {
	mime, err := MimeFromName(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text, err := ExtractText(mime, data)
	if err != nil {
		return "", fmt.Errorf("failed to extract %s: %w", path, err)
	}
	return text, nil
}

func extractPDFText(reader io.ReaderAt, size int64) (string, error) {
	pdfReader, err := pdf.NewReader(reader, size)
	if err != nil {
		return "", fmt.Errorf("failed to read pdf: %w", err)
	}
	var textBuilder strings.Builder
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		textBuilder.WriteString(text)
	}
	return textBuilder.String(), nil
}

func extractDocxText(reader io.ReaderAt, size int64) (string, error) {
	doc, err := docx.ReadDocxFromMemory(reader, size)
	if err != nil {
		return "", fmt.Errorf("failed to parse docx: %w", err)
	}
	defer doc.Close()

	return stripTags(doc.Editable().GetContent()), nil
}

// stripTags drops the WordprocessingML markup docx returns, keeping text
// runs and turning paragraph ends into newlines.
func stripTags(xml string) string {
	var b strings.Builder
	inTag := false
	var tag strings.Builder
	for _, r := range xml {
		switch {
		case r == '<':
			inTag = true
			tag.Reset()
		case r == '>' && inTag:
			inTag = false
			if name := tag.String(); name == "/w:p" || strings.HasPrefix(name, "w:br") {
				b.WriteByte('\n')
			}
		case inTag:
			tag.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

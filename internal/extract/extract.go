// Package extract turns uploaded bytes into plain text.
//
// Extraction never fails the pipeline: unreadable input yields an empty
// string and a log line.
package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Extractor returns the plain text of an upload. It always returns a string.
type Extractor interface {
	Extract(ctx context.Context, data []byte, contentType, filename string) string
}

type extractor struct {
	log *zap.Logger
}

// New returns the default Extractor: PDF and DOCX are parsed, images yield no
// text (no OCR backend is wired), everything else is read as UTF-8.
func New(log *zap.Logger) Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &extractor{log: log.With(zap.String("component", "extract"))}
}

func (e *extractor) Extract(ctx context.Context, data []byte, contentType, filename string) string {
	if ctx.Err() != nil || len(data) == 0 {
		return ""
	}

	kind := normalizeMimeType(contentType, filename)
	var (
		text string
		err  error
	)
	switch {
	case kind == mimePDF:
		text, err = extractPDF(data)
	case kind == mimeDOCX:
		text, err = extractDOCX(data)
	case strings.HasPrefix(kind, "image/"):
		e.log.Debug("no ocr backend, image yields empty text", zap.String("filename", filename))
		return ""
	default:
		return strings.ToValidUTF8(string(data), "�")
	}

	if err != nil {
		e.log.Warn("text extraction failed, continuing with empty text",
			zap.String("filename", filename),
			zap.String("content_type", kind),
			zap.Error(err),
		)
		return ""
	}
	return text
}

func normalizeMimeType(contentType, filename string) string {
	clean := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch clean {
	case "", "application/octet-stream", "application/zip":
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".pdf":
			return mimePDF
		case ".docx":
			return mimeDOCX
		}
	}
	return clean
}

func extractPDF(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	plain, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func extractDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var docFile *zip.File
	for _, f := range zr.File {
		if strings.ReplaceAll(f.Name, "\\", "/") == "word/document.xml" {
			docFile = f
			break
		}
	}
	if docFile == nil {
		return "", errors.New("word/document.xml not found")
	}

	rc, err := docFile.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	return paragraphs(rc)
}

func paragraphs(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var buf strings.Builder
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			buf.Write(t)
		case xml.EndElement:
			if (t.Name.Local == "p" || t.Name.Local == "br") && buf.Len() > 0 {
				buf.WriteByte('\n')
			}
		}
	}
	return strings.TrimSpace(buf.String()), nil
}

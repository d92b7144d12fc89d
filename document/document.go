// Package document loads raw documents from a Source and parses them into
// text with metadata, ready to be split and embedded.
package document

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// Metadata keys set by parsers and the Loader.
const (
	MetaDocumentType  = "document_type"
	MetaContentLength = "content_length"
	MetaSource        = "source"
)

// Errors returned by sources, parsers and the Loader.
var (
	// ErrNotFound indicates the location does not exist in the source.
	ErrNotFound = errors.New("document: not found")

	// ErrInvalidLocation indicates a blank location or one naming a directory.
	ErrInvalidLocation = errors.New("document: invalid location")

	// ErrUnsupportedType indicates no parser is registered for the document type.
	ErrUnsupportedType = errors.New("document: unsupported document type")

	// ErrNotListable indicates the source cannot enumerate locations.
	ErrNotListable = errors.New("document: source cannot list locations")

	// ErrParse indicates the content could not be parsed.
	ErrParse = errors.New("document: parse failed")
)

// Document is parsed text with string metadata.
type Document struct {
	Text     string
	Metadata map[string]string
}

// Type identifies the format of a document.
type Type string

// Known document types.
const (
	TypeText     Type = "TXT"
	TypeMarkdown Type = "MARKDOWN"
	TypeHTML     Type = "HTML"
	TypePDF      Type = "PDF"
	TypeDOC      Type = "DOC"
	TypeUnknown  Type = "UNKNOWN"
)

var extensions = map[string]Type{
	".txt":      TypeText,
	".text":     TypeText,
	".md":       TypeMarkdown,
	".markdown": TypeMarkdown,
	".html":     TypeHTML,
	".htm":      TypeHTML,
	".pdf":      TypePDF,
	".doc":      TypeDOC,
	".docx":     TypeDOC,
}

// TypeOf detects the document type from the extension of location.
func TypeOf(location string) Type {
	if t, ok := extensions[strings.ToLower(path.Ext(location))]; ok {
		return t
	}
	return TypeUnknown
}

// Source loads the raw bytes stored at a location.
type Source interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

// Lister is implemented by sources that can enumerate the locations under a prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// Parser turns raw bytes into a Document.
type Parser interface {
	Parse(data []byte) (Document, error)
}

// CheckLocation rejects blank locations and locations naming a directory.
func CheckLocation(location string) error {
	if strings.TrimSpace(location) == "" {
		return ErrInvalidLocation
	}
	if strings.HasSuffix(location, "/") {
		return fmt.Errorf("%w: %s is not a file", ErrInvalidLocation, location)
	}
	return nil
}

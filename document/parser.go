package document

import (
	"fmt"
	"unicode/utf8"
)

// TextParser treats the input as UTF-8 plain text.
type TextParser struct{}

// Parse returns data as the document text.
func (TextParser) Parse(data []byte) (Document, error) {
	if !utf8.Valid(data) {
		return Document{}, fmt.Errorf("%w: text is not valid UTF-8", ErrParse)
	}
	return Document{
		Text:     string(data),
		Metadata: map[string]string{MetaDocumentType: string(TypeText)},
	}, nil
}

var _ Parser = TextParser{}

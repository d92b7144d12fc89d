package document

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/zoobzio/capitan"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the parallel loads of LoadAll.
const DefaultConcurrency = 8

// Loader reads documents from a Source and parses them with the parser
// registered for their type.
type Loader struct {
	source      Source
	parsers     map[Type]Parser
	fallback    Parser
	concurrency int
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithParser registers p for documents of type t.
func WithParser(t Type, p Parser) LoaderOption {
	return func(l *Loader) {
		l.parsers[t] = p
	}
}

// WithFallbackParser sets the parser used for types without a registered parser.
func WithFallbackParser(p Parser) LoaderOption {
	return func(l *Loader) {
		l.fallback = p
	}
}

// WithConcurrency bounds the parallel loads of LoadAll.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

// NewLoader creates a Loader over source. Plain text is parsed by TextParser
// unless another parser is registered for it.
func NewLoader(source Source, opts ...LoaderOption) *Loader {
	l := &Loader{
		source:      source,
		parsers:     map[Type]Parser{TypeText: TextParser{}},
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads and parses the document at location, detecting its type from the extension.
func (l *Loader) Load(ctx context.Context, location string) (Document, error) {
	return l.LoadAs(ctx, location, TypeOf(location))
}

// LoadAs reads the document at location and parses it as type t.
// The returned metadata carries the source location and the content length in characters.
func (l *Loader) LoadAs(ctx context.Context, location string, t Type) (Document, error) {
	start := time.Now()
	doc, err := l.load(ctx, location, t)
	if err != nil {
		capitan.Emit(ctx, LoadFailed,
			FieldLocation.Field(location),
			FieldType.Field(string(t)),
			FieldError.Field(err),
		)
		return Document{}, err
	}
	capitan.Emit(ctx, LoadCompleted,
		FieldLocation.Field(location),
		FieldType.Field(string(t)),
		FieldSize.Field(len(doc.Text)),
		FieldDuration.Field(time.Since(start)),
	)
	return doc, nil
}

func (l *Loader) load(ctx context.Context, location string, t Type) (Document, error) {
	if err := CheckLocation(location); err != nil {
		return Document{}, err
	}
	parser := l.parserFor(t)
	if parser == nil {
		return Document{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedType, t, location)
	}

	data, err := l.source.Load(ctx, location)
	if err != nil {
		return Document{}, err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", location, err)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]string, 2)
	}
	doc.Metadata[MetaSource] = location
	doc.Metadata[MetaContentLength] = strconv.Itoa(utf8.RuneCount(data))
	return doc, nil
}

// LoadAll loads every location concurrently. Documents are returned in the
// order of locations; the first failure cancels the remaining loads.
func (l *Loader) LoadAll(ctx context.Context, locations []string) ([]Document, error) {
	docs := make([]Document, len(locations))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, location := range locations {
		g.Go(func() error {
			doc, err := l.Load(ctx, location)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadPrefix loads every document the source lists under prefix, skipping
// locations of a type no parser handles. The source must implement Lister.
func (l *Loader) LoadPrefix(ctx context.Context, prefix string) ([]Document, error) {
	lister, ok := l.source.(Lister)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotListable, prefix)
	}
	listed, err := lister.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	locations := listed[:0]
	for _, location := range listed {
		if l.parserFor(TypeOf(location)) != nil {
			locations = append(locations, location)
		}
	}
	return l.LoadAll(ctx, locations)
}

func (l *Loader) parserFor(t Type) Parser {
	if p, ok := l.parsers[t]; ok {
		return p
	}
	return l.fallback
}

package extract

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

const (
	rootElement    = "informationTable"
	infoTableLocal = "infoTable"
	structuralName = "structural"
	permissiveName = "permissive"
)

// Structural decodes the document with a strict, namespace-aware XML
// decoder. Rows are infoTable elements in the document namespace: the
// namespace of the root element, or when the root is unqualified, the
// namespace of the first infoTable found. An infoTable in any other
// namespace fails the parse rather than being skipped.
type Structural struct{}

func (Structural) Name() string { return structuralName }

func (Structural) Parse(doc []byte) ([]RawRow, error) {
	dec := xml.NewDecoder(bytes.NewReader(doc))
	dec.Strict = true

	var (
		rows      []RawRow
		namespace string
		resolved  bool
		sawRoot   bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}

		if !sawRoot {
			if start.Name.Local != rootElement {
				return nil, fmt.Errorf("unexpected root element %q", start.Name.Local)
			}
			sawRoot = true
			namespace, resolved = start.Name.Space, start.Name.Space != ""
			continue
		}

		if start.Name.Local != infoTableLocal {
			continue
		}
		if !resolved {
			namespace, resolved = start.Name.Space, true
		}
		if start.Name.Space != namespace {
			return nil, fmt.Errorf("infoTable in namespace %q, document namespace is %q", start.Name.Space, namespace)
		}
		var row RawRow
		if err := dec.DecodeElement(&row, &start); err != nil {
			return nil, fmt.Errorf("decode infoTable %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}

	if !sawRoot {
		return nil, errors.New("empty document")
	}
	return rows, nil
}

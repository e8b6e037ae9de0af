package extract

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Permissive walks the element tree with a forgiving HTML-style parser and
// matches elements by lower-cased local name, ignoring prefixes, namespaces
// and nesting. It recovers documents the structural decoder rejects, such as
// unbalanced tags, undeclared prefixes or flattened shrsOrPrnAmt groups.
type Permissive struct{}

func (Permissive) Name() string { return permissiveName }

func (Permissive) Parse(doc []byte) ([]RawRow, error) {
	d, err := goquery.NewDocumentFromReader(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	var (
		rows     []RawRow
		sawTable bool
	)
	d.Find("*").Each(func(_ int, s *goquery.Selection) {
		switch localName(s) {
		case "informationtable":
			sawTable = true
		case "infotable":
			rows = append(rows, permissiveRow(s))
		}
	})

	if !sawTable && len(rows) == 0 {
		return nil, errors.New("no information table found")
	}
	return rows, nil
}

func permissiveRow(s *goquery.Selection) RawRow {
	row := RawRow{
		NameOfIssuer:         childText(s, "nameofissuer"),
		CUSIP:                childText(s, "cusip"),
		TitleOfClass:         childText(s, "titleofclass"),
		Value:                childText(s, "value"),
		SharesOrPrincipal:    childText(s, "sshprnamt"),
		ShareType:            childText(s, "sshprnamttype"),
		InvestmentDiscretion: childText(s, "investmentdiscretion"),
		PutCall:              childText(s, "putcall"),
	}
	if v := child(s, "votingauthority"); v != nil {
		row.Voting = &RawVoting{
			Sole:   deref(childText(v, "sole")),
			Shared: deref(childText(v, "shared")),
			None:   deref(childText(v, "none")),
		}
	}
	return row
}

func child(s *goquery.Selection, name string) *goquery.Selection {
	var found *goquery.Selection
	s.Find("*").EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if localName(c) == name {
			found = c
			return false
		}
		return true
	})
	return found
}

func childText(s *goquery.Selection, name string) *string {
	c := child(s, name)
	if c == nil {
		return nil
	}
	text := strings.TrimSpace(ownText(c))
	return &text
}

// ownText joins the element's direct text nodes only. The HTML parser does
// not close self-closing XML tags, so an empty <Sole/> ends up wrapping its
// later siblings and Text() would pick up their values.
func ownText(s *goquery.Selection) string {
	return s.Contents().FilterFunction(func(_ int, n *goquery.Selection) bool {
		return goquery.NodeName(n) == "#text"
	}).Text()
}

// localName strips any namespace prefix from the parsed tag name.
func localName(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

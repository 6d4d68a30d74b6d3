package harvest

import (
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/scrypster/lineage/pkg/types"
)

var ownerIDPattern = regexp.MustCompile(`Owner=([0-9.]+)&`)

// defaultOwnerID is used when a detail page carries no owner link.
const defaultOwnerID = "single owner"

// Detail page labels, in the order their values appear in a raw record.
const (
	labelAccessDetails  = "Access Details:"
	labelContactName    = "Contact Name:"
	labelContactAddress = "Contact Address:"
	labelContactRef     = "Contact Reference:"
	labelTelephoneNo    = "Telephone No:"
	labelFaxNumber      = "Fax Number:"
	labelEmail          = "Email:"
	labelWebsites       = "Web Site(s):"
)

// ParseSummaries extracts listing rows from the registry's summary page.
// Rows are <tr align="left" valign="top"> with at least four cells; the
// first cell links to the detail page and carries the entity id in its ID=
// query parameter. Rows without a usable id are skipped and logged.
func ParseSummaries(r io.Reader) ([]types.EntitySummary, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("harvest: failed to parse listing page: %w", err)
	}

	var summaries []types.EntitySummary
	for _, row := range findAll(doc, isListingRow) {
		cells := findAll(row, isElement("td"))
		if len(cells) < 4 {
			continue
		}

		link := findFirst(cells[0], isElement("a"))
		if link == nil {
			continue
		}
		id := idFromHref(attr(link, "href"))
		if id == "" {
			log.Printf("harvest: skipping listing row without entity id (%q)", textOf(cells[0]))
			continue
		}

		summaries = append(summaries, types.EntitySummary{
			UniqueID:    id,
			Description: textOf(cells[1]),
			Location:    textOf(cells[2]),
			Category:    textOf(cells[3]),
		})
	}

	return summaries, nil
}

// ParseDetails extracts the labelled fields from one detail page. Absent
// labels produce empty strings, never errors.
func ParseDetails(r io.Reader, uniqueID string) (types.EntityDetails, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return types.EntityDetails{}, fmt.Errorf("harvest: failed to parse detail page for %s: %w", uniqueID, err)
	}

	// Flatten to document order once; label extraction is "first td after
	// the text node matching the label".
	nodes := flatten(doc)

	details := types.EntityDetails{
		UniqueID:       uniqueID,
		OwnerID:        ownerID(nodes),
		AccessDetails:  labelledValue(nodes, labelAccessDetails),
		ContactName:    labelledValue(nodes, labelContactName),
		ContactAddress: labelledValue(nodes, labelContactAddress),
		ContactRef:     labelledValue(nodes, labelContactRef),
		TelephoneNo:    labelledValue(nodes, labelTelephoneNo),
		FaxNo:          labelledValue(nodes, labelFaxNumber),
		Email:          labelledValue(nodes, labelEmail),
		Website:        websiteValue(nodes),
	}

	return details, nil
}

// RawFields merges a listing summary and its detail page into the flat field
// map stored as a raw record.
func RawFields(summary types.EntitySummary, details types.EntityDetails) map[string]string {
	return map[string]string{
		types.FieldUniqueID:       summary.UniqueID,
		types.FieldDescription:    summary.Description,
		types.FieldLocation:       summary.Location,
		types.FieldCategory:       summary.Category,
		types.FieldOwnerID:        details.OwnerID,
		types.FieldAccessDetails:  details.AccessDetails,
		types.FieldContactName:    details.ContactName,
		types.FieldContactAddress: details.ContactAddress,
		types.FieldContactRef:     details.ContactRef,
		types.FieldTelephoneNo:    details.TelephoneNo,
		types.FieldFaxNo:          details.FaxNo,
		types.FieldEmail:          details.Email,
		types.FieldWebsite:        details.Website,
	}
}

// ownerID pulls the owner id out of the first href containing an Owner=
// parameter.
func ownerID(nodes []*html.Node) string {
	for _, n := range nodes {
		if n.Type != html.ElementNode || n.Data != "a" {
			continue
		}
		if m := ownerIDPattern.FindStringSubmatch(attr(n, "href")); m != nil {
			return m[1]
		}
	}
	return defaultOwnerID
}

// labelledValue finds the text node matching label and returns the text of
// the next td in document order.
func labelledValue(nodes []*html.Node, label string) string {
	for i, n := range nodes {
		if n.Type != html.TextNode || strings.TrimSpace(n.Data) != label {
			continue
		}
		for _, next := range nodes[i+1:] {
			if next.Type == html.ElementNode && next.Data == "td" {
				return textOf(next)
			}
		}
		return ""
	}
	return ""
}

// websiteValue returns the href of the first link after the websites label.
func websiteValue(nodes []*html.Node) string {
	for i, n := range nodes {
		if n.Type != html.TextNode || strings.TrimSpace(n.Data) != labelWebsites {
			continue
		}
		for _, next := range nodes[i+1:] {
			if next.Type == html.ElementNode && next.Data == "a" {
				return strings.TrimSpace(attr(next, "href"))
			}
		}
		return ""
	}
	return ""
}

// idFromHref extracts the entity id from an ID= query parameter.
func idFromHref(href string) string {
	idx := strings.LastIndex(href, "ID=")
	if idx < 0 {
		return ""
	}
	id, _, _ := strings.Cut(href[idx+len("ID="):], "&")
	return id
}

func isListingRow(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "tr" &&
		strings.EqualFold(attr(n, "align"), "left") &&
		strings.EqualFold(attr(n, "valign"), "top")
}

func isElement(name string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == name
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// textOf returns the trimmed concatenated text content of a node.
func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

// findAll returns every node under root (inclusive) matching the predicate,
// in document order.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	for _, n := range flatten(root) {
		if match(n) {
			out = append(out, n)
		}
	}
	return out
}

func findFirst(root *html.Node, match func(*html.Node) bool) *html.Node {
	for _, n := range flatten(root) {
		if match(n) {
			return n
		}
	}
	return nil
}

// flatten returns root and all its descendants in document order.
func flatten(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		out = append(out, n)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

package toolcatalog

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"browsercore/internal/domain/entity"
)

const maxFormattedLines = 150

var blankRunPattern = regexp.MustCompile(`\s+`)
var currencyPattern = regexp.MustCompile(`[$€£¥]\s?\d`)

// elementType computes the TYPE label by the priority ladder
// SELECT → CHECKBOX → RADIO → INPUT → VIDEO → PRODUCT → BUTTON → LINK.
// The first predicate that matches wins; everything else falls through to
// LINK, the most generic interactive category.
func elementType(e entity.SnapshotElement) string {
	switch {
	case e.IsSelect:
		return "SELECT"
	case e.Type == "checkbox" || e.Role == "checkbox":
		return "CHECKBOX"
	case e.Type == "radio" || e.Role == "radio":
		return "RADIO"
	case e.IsInput:
		return "INPUT"
	case e.IsVideo:
		return "VIDEO"
	case looksLikeProduct(e):
		return "PRODUCT"
	case e.Tag == "button" || e.Role == "button":
		return "BUTTON"
	default:
		return "LINK"
	}
}

// looksLikeProduct flags an element whose visible label or context carries
// a price — the one signal available at this layer that a link or card is
// a product listing rather than generic navigation.
func looksLikeProduct(e entity.SnapshotElement) bool {
	return currencyPattern.MatchString(e.Name) || currencyPattern.MatchString(e.Context)
}

// elementTier groups the TYPE ladder into the coarser ordering buckets
// the formatter sorts by: form fields first, then the things you press,
// then products/media, then generic navigation.
func elementTier(elementTypeLabel string) int {
	switch elementTypeLabel {
	case "SELECT", "INPUT":
		return 0
	case "BUTTON", "CHECKBOX", "RADIO":
		return 1
	case "PRODUCT", "VIDEO":
		return 2
	default: // LINK
		return 3
	}
}

type formattedElement struct {
	uid   int
	label string
	tier  int
}

// FormatSnapshot renders a Snapshot into the compact text block the LLM
// consumes in place of the raw DOM: a page header, a text preview, and
// the interactive elements ordered by tier and capped at 150 lines so a
// dense page never blows out the prompt budget.
func FormatSnapshot(snap *entity.Snapshot) string {
	if snap == nil {
		return "PAGE: (none)\nTITLE: (none)\n\nPAGE TEXT (first 800 chars):\n\nELEMENTS (0 total):\n"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "PAGE: %s\n", snap.URL)
	fmt.Fprintf(&sb, "TITLE: %s\n\n", snap.Title)
	sb.WriteString("PAGE TEXT (first 800 chars):\n")
	sb.WriteString(previewText(snap.RawText))
	sb.WriteString("\n\n")

	fmt.Fprintf(&sb, "ELEMENTS (%d total):\n", len(snap.Elements))

	hint := detectHint(snap.Elements)
	if hint != "" {
		sb.WriteString("  💡 " + hint + "\n")
	}
	if len(snap.Elements) == 0 {
		sb.WriteString("  (none — page may still be loading)\n")
	}

	lines := formatElements(snap.Elements)
	shown := lines
	if len(shown) > maxFormattedLines {
		shown = shown[:maxFormattedLines]
	}
	for _, l := range shown {
		sb.WriteString(l)
		sb.WriteString("\n")
	}
	if remaining := len(lines) - len(shown); remaining > 0 {
		fmt.Fprintf(&sb, "  ... and %d more (scroll down to see them)\n", remaining)
	}

	return sb.String()
}

func previewText(raw string) string {
	collapsed := blankRunPattern.ReplaceAllString(strings.TrimSpace(raw), " ")
	if len(collapsed) > 800 {
		collapsed = collapsed[:800]
	}
	return collapsed
}

func detectHint(elements []entity.SnapshotElement) string {
	products, filters := 0, 0
	for _, e := range elements {
		if looksLikeProduct(e) {
			products++
		}
		if e.IsSelect || e.Role == "checkbox" || e.Role == "radio" {
			filters++
		}
	}
	switch {
	case products >= 3 && filters >= 1:
		return fmt.Sprintf("FILTERS DETECTED / PRODUCTS found (%d products, %d filters)", products, filters)
	case products >= 3:
		return fmt.Sprintf("PRODUCTS found (%d)", products)
	case filters >= 2:
		return "FILTERS DETECTED"
	default:
		return ""
	}
}

func formatElements(elements []entity.SnapshotElement) []string {
	items := make([]formattedElement, 0, len(elements))
	for _, e := range elements {
		typeLabel := elementType(e)
		items = append(items, formattedElement{
			uid:   e.UID,
			tier:  elementTier(typeLabel),
			label: formatOne(e, typeLabel),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].tier != items[j].tier {
			return items[i].tier < items[j].tier
		}
		return items[i].uid < items[j].uid
	})

	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.label)
	}
	return out
}

func formatOne(e entity.SnapshotElement, typeLabel string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  %d | %s | %q", e.UID, typeLabel, e.Name)

	if e.Value != "" && e.Type != "password" && e.Type != "hidden" {
		fmt.Fprintf(&b, " (current: %q)", e.Value)
	}

	var flags []string
	if e.Checked != nil {
		if *e.Checked {
			flags = append(flags, "checked")
		} else {
			flags = append(flags, "unchecked")
		}
	}
	if e.AriaExpanded != nil {
		if *e.AriaExpanded {
			flags = append(flags, "expanded")
		} else {
			flags = append(flags, "collapsed")
		}
	}
	if e.Disabled {
		flags = append(flags, "disabled")
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(flags, ", "))
	}

	if e.Context != "" {
		fmt.Fprintf(&b, " [in: %s]", e.Context)
	}

	if e.IsSelect && len(e.Options) > 0 {
		texts := make([]string, 0, len(e.Options))
		for _, o := range e.Options {
			texts = append(texts, fmt.Sprintf("%q", o.Text))
		}
		b.WriteString("\n        options: [→ " + strings.Join(texts, ", ") + "]")
	}

	return b.String()
}

package export

import (
	"bytes"
	"fmt"
	"strings"
)

// Minimal single-font PDF writer. Letter pages, Helvetica 11pt, 54pt
// margins, hard-wrapped lines. Enough for text exports without pulling in
// a rendering engine.

const (
	pageWidth    = 612
	pageHeight   = 792
	pageMargin   = 54
	fontSize     = 11
	lineHeight   = 14
	maxLineChars = 92
)

func wrapLine(line string, width int) []string {
	if len(line) <= width {
		return []string{line}
	}
	var out []string
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}
	cur := words[0]
	for _, w := range words[1:] {
		if len(cur)+1+len(w) <= width {
			cur += " " + w
			continue
		}
		out = append(out, cur)
		for len(w) > width {
			out = append(out, w[:width])
			w = w[width:]
		}
		cur = w
	}
	out = append(out, cur)
	return out
}

func escapePDF(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "(", `\(`)
	s = strings.ReplaceAll(s, ")", `\)`)
	return s
}

// paginate wraps content into per-page line groups.
func paginate(title, content string) [][]string {
	linesPerPage := (pageHeight - 2*pageMargin) / lineHeight
	var lines []string
	if title != "" {
		lines = append(lines, title, "")
	}
	for _, raw := range strings.Split(content, "\n") {
		lines = append(lines, wrapLine(strings.ReplaceAll(raw, "\t", "    "), maxLineChars)...)
	}
	var pages [][]string
	for start := 0; start < len(lines); start += linesPerPage {
		end := start + linesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, lines[start:end])
	}
	if pages == nil {
		pages = [][]string{{""}}
	}
	return pages
}

func pageStream(lines []string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "BT\n/F1 %d Tf\n%d TL\n%d %d Td\n", fontSize, lineHeight, pageMargin, pageHeight-pageMargin)
	for i, line := range lines {
		if i > 0 {
			b.WriteString("T*\n")
		}
		fmt.Fprintf(&b, "(%s) Tj\n", escapePDF(line))
	}
	b.WriteString("ET")
	return b.Bytes()
}

// RenderPDF produces a complete PDF document for the given text.
func RenderPDF(title, content string) []byte {
	pages := paginate(title, content)

	// object layout: 1 catalog, 2 pages, 3 font, then page/content pairs
	type object struct {
		num  int
		body []byte
	}
	var objs []object
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs,
		object{1, []byte("<< /Type /Catalog /Pages 2 0 R >>")},
		object{2, []byte(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))},
		object{3, []byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")},
	)
	for i, lines := range pages {
		pageNum := 4 + 2*i
		contentNum := pageNum + 1
		objs = append(objs, object{pageNum, []byte(fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
			pageWidth, pageHeight, contentNum))})
		stream := pageStream(lines)
		objs = append(objs, object{contentNum, []byte(fmt.Sprintf(
			"<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))})
	}

	var out bytes.Buffer
	out.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for _, o := range objs {
		offsets[o.num] = out.Len()
		fmt.Fprintf(&out, "%d 0 obj\n%s\nendobj\n", o.num, o.body)
	}
	xref := out.Len()
	fmt.Fprintf(&out, "xref\n0 %d\n", len(objs)+1)
	out.WriteString("0000000000 65535 f \n")
	for n := 1; n <= len(objs); n++ {
		fmt.Fprintf(&out, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&out, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return out.Bytes()
}

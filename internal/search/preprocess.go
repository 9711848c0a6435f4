package search

import (
	"bufio"
	"strings"
)

// PlainText flattens Markdown message content into searchable lines: table
// rows become one line of cell text, separator rows, fences and heading or
// list markers are dropped. Plain text passes through unchanged.
func PlainText(md string) string {
	if !strings.ContainsAny(md, "|`#*>-") {
		return md
	}

	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(md))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	writeLine := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(s)
	}

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		// table row: "| ... |"
		if strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") {
			cols := strings.Split(strings.Trim(line, "|"), "|")
			allSep := true
			cleaned := make([]string, 0, len(cols))
			for _, c := range cols {
				cell := strings.TrimSpace(c)
				if cell != "" {
					cleaned = append(cleaned, cell)
				}
				tmp := strings.ReplaceAll(cell, ":", "")
				tmp = strings.ReplaceAll(tmp, "-", "")
				if strings.TrimSpace(tmp) != "" {
					allSep = false
				}
			}
			if allSep || len(cleaned) == 0 {
				continue
			}
			writeLine(strings.Join(cleaned, " "))
			continue
		}

		line = strings.TrimLeft(line, "#>")
		line = strings.TrimPrefix(strings.TrimSpace(line), "- ")
		line = strings.TrimPrefix(line, "* ")
		writeLine(strings.NewReplacer("**", "", "`", "").Replace(line))
	}
	if sc.Err() != nil {
		return md
	}
	return b.String()
}

// Package markdown converts the small markdown subset used in readme and changelog
// files into the markup accepted by the plugin information popup.
//
// The conversion is a single pass over raw input. Bold and code spans are replaced
// once per line only, so "**a** and **b**" keeps the second pair of markers.
// Feeding formatted output back through Format is not supported.
package markdown

import (
	"regexp"
	"strings"
)

var (
	h3Re     = regexp.MustCompile(`(?m)^### (.*)$`)
	h2Re     = regexp.MustCompile(`(?m)^## (.*)$`)
	h1Re     = regexp.MustCompile(`(?m)^# (.*)$`)
	dashRe   = regexp.MustCompile(`(?m)^- (.*)$`)
	starRe   = regexp.MustCompile(`(?m)^\* (.*)$`)
	boldRe   = regexp.MustCompile(`\*\*(.*?)\*\*`)
	codeRe   = regexp.MustCompile("`(.*?)`")
	newlines = strings.NewReplacer("\r\n", "<br />\r\n", "\n", "<br />\n")
)

func Format(content string) string {
	formatted := h3Re.ReplaceAllString(content, "<strong>$1</strong>")
	formatted = h2Re.ReplaceAllString(formatted, "<h3>$1</h3>")
	formatted = h1Re.ReplaceAllString(formatted, "<h2>$1</h2>")

	formatted = dashRe.ReplaceAllString(formatted, "<li>$1</li>")
	formatted = starRe.ReplaceAllString(formatted, "<li>$1</li>")
	formatted = wrapListItems(formatted)

	formatted = replaceFirstPerLine(formatted, boldRe, "<strong>", "</strong>")
	formatted = replaceFirstPerLine(formatted, codeRe, "<code>", "</code>")

	return newlines.Replace(formatted)
}

func isListItem(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	return strings.HasPrefix(line, "<li>") && strings.HasSuffix(line, "</li>")
}

// wrapListItems wraps every run of consecutive list item lines in a single <ul>.
func wrapListItems(s string) string {
	lines := strings.Split(s, "\n")
	for i := 0; i < len(lines); i++ {
		if !isListItem(lines[i]) {
			continue
		}
		start := i
		for i+1 < len(lines) && isListItem(lines[i+1]) {
			i++
		}
		lines[start] = "<ul>" + lines[start]
		last, cr := strings.CutSuffix(lines[i], "\r")
		lines[i] = last + "</ul>"
		if cr {
			lines[i] += "\r"
		}
	}
	return strings.Join(lines, "\n")
}

func replaceFirstPerLine(s string, re *regexp.Regexp, open, closing string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		m := re.FindStringSubmatchIndex(line)
		if m == nil {
			continue
		}
		lines[i] = line[:m[0]] + open + line[m[2]:m[3]] + closing + line[m[1]:]
	}
	return strings.Join(lines, "\n")
}

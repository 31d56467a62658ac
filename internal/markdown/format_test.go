package markdown

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{input: "**bold**", expected: "<strong>bold</strong>"},
		{input: "### Added", expected: "<strong>Added</strong>"},
		{input: "## [0.1.4]", expected: "<h3>[0.1.4]</h3>"},
		{input: "# WE Icon Blocks", expected: "<h2>WE Icon Blocks</h2>"},
		{input: "use `npm run build`", expected: "use <code>npm run build</code>"},
		{input: "- one", expected: "<ul><li>one</li></ul>"},
		{input: "* one", expected: "<ul><li>one</li></ul>"},
		{input: "a\nb", expected: "a<br />\nb"},
		{input: "a\r\nb", expected: "a<br />\r\nb"},
		{input: "plain", expected: "plain"},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.expected, Format(testCase.input), testCase.input)
	}
}

func TestFormatFirstMatchPerLine(t *testing.T) {
	require.Equal(t, "<strong>a</strong> and **b**", Format("**a** and **b**"))
	require.Equal(t, "<code>a</code> and `b`", Format("`a` and `b`"))
	require.Equal(t, "<strong>a</strong><br />\n<strong>b</strong>", Format("**a**\n**b**"))
}

func TestFormatListRuns(t *testing.T) {
	input := "## Changes\n- first\n* second\n\ntext\n- third"
	expected := "<h3>Changes</h3><br />\n" +
		"<ul><li>first</li><br />\n" +
		"<li>second</li></ul><br />\n" +
		"<br />\n" +
		"text<br />\n" +
		"<ul><li>third</li></ul>"
	require.Equal(t, expected, Format(input))
}

func TestFormatChangelog(t *testing.T) {
	input := strings.Join([]string{
		"# Changelog",
		"## [0.1.4] - 2025-10-01",
		"### Fixed",
		"- **Updater** keeps the plugin `active` after updates",
	}, "\n")
	out := Format(input)
	require.Contains(t, out, "<h2>Changelog</h2>")
	require.Contains(t, out, "<h3>[0.1.4] - 2025-10-01</h3>")
	require.Contains(t, out, "<strong>Fixed</strong>")
	require.Contains(t, out, "<ul><li><strong>Updater</strong> keeps the plugin <code>active</code> after updates</li></ul>")
	require.Equal(t, 3, strings.Count(out, "<br />"))
}

func TestFormatNotIdempotent(t *testing.T) {
	once := Format("a\nb")
	require.NotEqual(t, once, Format(once))
}

package host

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/gbyat/plugin-updater/pkg/update"
)

// only the beginning of the main file is scanned for headers
const headerReadLimit = 8 * 1024

var headerRes = map[string]*regexp.Regexp{}

var headerNames = []string{
	"Plugin Name",
	"Plugin URI",
	"Version",
	"Description",
	"Author",
	"Author URI",
	"Text Domain",
	"Tested up to",
	"Requires at least",
	"Requires PHP",
}

func init() {
	for _, name := range headerNames {
		headerRes[name] = regexp.MustCompile(`(?mi)^(?:[ \t]*<\?php)?[ \t/*#@]*` + regexp.QuoteMeta(name) + `:(.*)$`)
	}
}

func cleanupHeaderValue(v string) string {
	v = strings.TrimSpace(v)
	if i := strings.Index(v, "*/"); i >= 0 {
		v = v[:i]
	}
	if i := strings.Index(v, "?>"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}

// ParseHeader extracts the plugin header fields from the main plugin file contents.
func ParseHeader(r io.Reader) (*update.InstalledPluginInfo, error) {
	data, err := io.ReadAll(io.LimitReader(r, headerReadLimit))
	if err != nil {
		return nil, err
	}
	content := strings.ReplaceAll(string(data), "\r", "\n")
	fields := make(map[string]string, len(headerNames))
	for _, name := range headerNames {
		if m := headerRes[name].FindStringSubmatch(content); m != nil {
			fields[name] = cleanupHeaderValue(m[1])
		}
	}
	return &update.InstalledPluginInfo{
		Name:            fields["Plugin Name"],
		PluginURI:       fields["Plugin URI"],
		Version:         fields["Version"],
		Description:     fields["Description"],
		Author:          fields["Author"],
		AuthorName:      fields["Author"],
		AuthorURI:       fields["Author URI"],
		TextDomain:      fields["Text Domain"],
		TestedUpTo:      fields["Tested up to"],
		RequiresAtLeast: fields["Requires at least"],
		RequiresPHP:     fields["Requires PHP"],
	}, nil
}

func ParseHeaderFile(path string) (*update.InstalledPluginInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open plugin file: %w", err)
	}
	defer f.Close()
	info, err := ParseHeader(f)
	if err != nil {
		return nil, fmt.Errorf("could not read plugin header: %w", err)
	}
	if info.Name == "" {
		return nil, fmt.Errorf("%s has no plugin header", path)
	}
	return info, nil
}

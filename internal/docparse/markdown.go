package docparse

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// MarkdownBody strips YAML front matter from a Markdown document and returns
// the body. A front matter "title" is kept as the first line so that it is
// indexed with the content.
func MarkdownBody(data []byte) string {
	fm, body := splitFrontmatter(data)
	if t, ok := fm["title"].(string); ok && strings.TrimSpace(t) != "" {
		return "# " + strings.TrimSpace(t) + "\n\n" + body
	}
	return body
}

// splitFrontmatter separates YAML front matter (between leading --- delimiters)
// from the Markdown body. Without front matter the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep everything as body.
		return nil, string(data)
	}
	return fm, body
}

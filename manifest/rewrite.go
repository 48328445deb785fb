package manifest

import "strings"

// urlAttrs are the attributes that address media resources directly.
var urlAttrs = []string{"media", "initialization", "sourceURL"}

// RewriteURLs applies rewrite to every absolute http(s) URL the document
// references: BaseURL and Location element text plus segment-addressing
// attributes. Relative references are left alone; they resolve against a
// rewritten BaseURL.
func RewriteURLs(d *Document, rewrite func(string) string) {
	for id := range d.nodes {
		switch d.nodes[id].name {
		case "BaseURL", "Location":
			if isAbsoluteURL(d.nodes[id].text) {
				d.nodes[id].text = rewrite(d.nodes[id].text)
			}
		}

		for _, name := range urlAttrs {
			if value, ok := d.Attr(id, name); ok && isAbsoluteURL(value) {
				d.SetAttr(id, name, rewrite(value))
			}
		}
	}
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

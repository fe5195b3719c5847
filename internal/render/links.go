package render

import (
	"encoding/base64"
	"fmt"
	"html"
	"html/template"
)

// DataLink builds a self-contained download anchor whose href embeds
// payload as a base64 data URL.
func DataLink(mimeType, filename, text string, payload []byte, newTab bool) template.HTML {
	target := ""
	if newTab {
		target = ` target="_blank"`
	}
	return template.HTML(fmt.Sprintf(`<a href="data:%s;base64,%s" download="%s"%s>%s</a>`,
		html.EscapeString(mimeType),
		base64.StdEncoding.EncodeToString(payload),
		html.EscapeString(filename),
		target,
		html.EscapeString(text),
	))
}

// PlotLink links a rendered plot for download.
func PlotLink(mimeType, filename, text string, payload []byte) template.HTML {
	return DataLink(mimeType, filename, text, payload, false)
}

// CSVLink links a CSV table for download in a new tab.
func CSVLink(filename, text string, payload []byte) template.HTML {
	return DataLink("file/csv", filename, text, payload, true)
}

package story

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"

	"github.com/wafflestudio18-5/team2-server/models"
)

// markdown renderer for paragraph block content
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithUnsafe(), // paragraph content may carry inline HTML emphasis
	),
)

type block struct {
	Type   string `json:"type"`
	Detail struct {
		Content     string `json:"content"`
		Emphasizing string `json:"emphasizing"`
		Size        string `json:"size"`
		ImgSrc      string `json:"imgsrc"`
	} `json:"detail"`
}

// RenderHTML turns a story's block document into an HTML fragment.
// The body is an ordered list of typed blocks, sometimes nested one level
// (editor sections), so the walk flattens arrays as it goes.
func RenderHTML(story *models.Story) (string, error) {
	var buf bytes.Buffer
	buf.WriteString("<article>\n")
	fmt.Fprintf(&buf, "<h1>%s</h1>\n", html.EscapeString(story.Title))
	if story.Subtitle != "" {
		fmt.Fprintf(&buf, "<h2>%s</h2>\n", html.EscapeString(story.Subtitle))
	}

	if len(story.Body) > 0 {
		var raw json.RawMessage = []byte(story.Body)
		if err := renderNode(&buf, raw); err != nil {
			return "", err
		}
	}

	buf.WriteString("</article>\n")
	return buf.String(), nil
}

func renderNode(buf *bytes.Buffer, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		for _, item := range items {
			if err := renderNode(buf, item); err != nil {
				return err
			}
		}
		return nil
	}

	var b block
	if err := json.Unmarshal(trimmed, &b); err != nil {
		return err
	}
	renderBlock(buf, &b)
	return nil
}

func renderBlock(buf *bytes.Buffer, b *block) {
	switch b.Type {
	case "image":
		fmt.Fprintf(buf, "<figure><img src=%q alt=\"\"/>", b.Detail.ImgSrc)
		if b.Detail.Content != "" {
			fmt.Fprintf(buf, "<figcaption>%s</figcaption>", html.EscapeString(b.Detail.Content))
		}
		buf.WriteString("</figure>\n")
	default: // paragraph
		class := "paragraph"
		if b.Detail.Emphasizing != "" {
			class += " " + b.Detail.Emphasizing
		}
		fmt.Fprintf(buf, "<div class=%q>", class)
		var rendered bytes.Buffer
		if err := md.Convert([]byte(b.Detail.Content), &rendered); err != nil {
			// fall back to the raw content rather than breaking the page
			buf.WriteString(html.EscapeString(b.Detail.Content))
		} else {
			buf.Write(rendered.Bytes())
		}
		buf.WriteString("</div>\n")
	}
}

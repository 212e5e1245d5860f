package utils

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	contentParser = goldmark.New(
		goldmark.WithExtensions(extension.Linkify, extension.Strikethrough),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)
	contentPolicy = bluemonday.UGCPolicy()
)

func init() {
	contentPolicy.AllowImages()
	contentPolicy.AllowDataURIImages()
	contentPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	contentPolicy.RequireNoReferrerOnLinks(true)
}

// RenderContent 帖子和评论正文：Markdown 转 HTML 后净化
func RenderContent(source string) template.HTML {
	if strings.TrimSpace(source) == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := contentParser.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}

	sanitized := contentPolicy.SanitizeBytes(buf.Bytes())
	return EnhanceHTMLContent(string(sanitized))
}

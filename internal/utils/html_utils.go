package utils

import (
	"html/template"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const videoEmbed = `<div class="video-container"><iframe src="https://www.youtube.com/embed/%s" frameborder="0" allowfullscreen allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture"></iframe></div>`

// EnhanceHTMLContent 图片延迟加载，单独一行的 YouTube 链接转为嵌入播放器
func EnhanceHTMLContent(htmlStr string) template.HTML {
	if htmlStr == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return template.HTML(htmlStr)
	}

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		s.SetAttr("referrerpolicy", "no-referrer")
		s.SetAttr("loading", "lazy")
	})

	doc.Find("p").Each(func(i int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(text, "http") || strings.Contains(text, " ") {
			return
		}
		if id := youTubeID(text); id != "" {
			s.ReplaceWithHtml(strings.Replace(videoEmbed, "%s", url.PathEscape(id), 1))
		}
	})

	out, _ := doc.Find("body").Html()
	if out == "" {
		out, _ = doc.Html()
	}
	return template.HTML(out)
}

// youTubeID 支持 youtube.com/watch?v= 和 youtu.be/ 两种链接
func youTubeID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	switch strings.TrimPrefix(u.Host, "www.") {
	case "youtube.com", "m.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
	case "youtu.be":
		return strings.Trim(u.Path, "/")
	}
	return ""
}

// PlainText 去掉标签，用于摘要
func PlainText(htmlStr string, limit int) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if limit > 0 {
		if r := []rune(text); len(r) > limit {
			return string(r[:limit]) + "…"
		}
	}
	return text
}

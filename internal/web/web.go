// Package web holds the HTML templates of the site.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"

	"pivot/internal/models"

	"github.com/gofiber/template/html/v2"
)

//go:embed templates
var templatesFS embed.FS

// Templates returns the template tree rooted at templates/.
func Templates() fs.FS {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// NewEngine parses the embedded templates and registers the helpers they use.
func NewEngine() *html.Engine {
	engine := html.NewFileSystem(http.FS(Templates()), ".html")
	engine.AddFunc("truncate", models.Truncate)
	engine.AddFunc("mediaURL", MediaURL)
	engine.AddFunc("linebreaks", Linebreaks)
	return engine
}

// MediaURL is the site path that serves a stored object.
func MediaURL(key string) string {
	if key == "" {
		return ""
	}
	return "/media/" + strings.TrimLeft(key, "/")
}

// Linebreaks splits text into its non-empty lines for paragraph rendering.
func Linebreaks(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

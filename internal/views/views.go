// Package views は埋め込みHTMLテンプレートと、テンプレートに渡すページデータを提供します。
package views

import (
	"embed"
	"html/template"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/users"
)

//go:embed templates/*.html
var templatesFS embed.FS

// テンプレート名です。
const (
	Login        = "login.html"
	Registration = "registration.html"
	Dashboard    = "dashboard.html"
	Error        = "error.html"
)

// Page は全テンプレート共通のデータです。マップは nil にしないでください。
type Page struct {
	Title     string
	CSRFToken string
	Success   string
	Errors    map[string][]string
	Old       map[string]string
	User      *users.User
	Activity  []audit.Event
}

// NewPage は空のマップを持つ Page を作成します。
func NewPage(title string) Page {
	return Page{
		Title:  title,
		Errors: map[string][]string{},
		Old:    map[string]string{},
	}
}

// Parse は埋め込みテンプレートをパースします。
func Parse() (*template.Template, error) {
	return template.New("").ParseFS(templatesFS, "templates/*.html")
}

// Load はテンプレートを gin エンジンに登録します。
func Load(engine *gin.Engine) error {
	tmpl, err := Parse()
	if err != nil {
		return err
	}
	engine.SetHTMLTemplate(tmpl)
	return nil
}

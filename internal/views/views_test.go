package views

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/gatehouse/internal/audit"
	"github.com/yourusername/gatehouse/internal/users"
)

func render(t *testing.T, name string, page Page) string {
	t.Helper()
	tmpl, err := Parse()
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, page); err != nil {
		t.Fatalf("ExecuteTemplate(%s) returned error: %v", name, err)
	}
	return buf.String()
}

func TestEmptyPagesRender(t *testing.T) {
	for _, name := range []string{Login, Registration, Dashboard, Error} {
		out := render(t, name, NewPage("Title"))
		if !strings.Contains(out, "<title>Title</title>") {
			t.Fatalf("%s: missing title:\n%s", name, out)
		}
	}
}

func TestLoginShowsFlashErrorsAndOldInput(t *testing.T) {
	page := NewPage("Login")
	page.CSRFToken = "tok123"
	page.Success = "Great!"
	page.Errors["message"] = []string{"Oppes! You have entered invalid credentials"}
	page.Errors["password"] = []string{"The password field is required."}
	page.Old["email"] = `ann@x.com"><script>`

	out := render(t, Login, page)

	for _, want := range []string{
		`name="_token" value="tok123"`,
		"Great!",
		"Oppes! You have entered invalid credentials",
		"The password field is required.",
		"ann@x.com&#34;&gt;&lt;script&gt;",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRegistrationShowsFieldErrors(t *testing.T) {
	page := NewPage("Register")
	page.Errors["email"] = []string{"The email has already been taken."}
	page.Old["name"] = "Ann"

	out := render(t, Registration, page)
	if !strings.Contains(out, "The email has already been taken.") {
		t.Fatalf("missing email error:\n%s", out)
	}
	if !strings.Contains(out, `value="Ann"`) {
		t.Fatalf("missing old name:\n%s", out)
	}
}

func TestDashboardShowsUserAndActivity(t *testing.T) {
	page := NewPage("Dashboard")
	page.User = &users.User{Name: "Ann", Email: "ann@x.com"}
	page.Activity = []audit.Event{{
		Type:       audit.EventLoginSucceeded,
		IP:         "10.0.0.1",
		OccurredAt: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC),
	}}

	out := render(t, Dashboard, page)
	for _, want := range []string{"Welcome, Ann (ann@x.com)", "login_succeeded", "from 10.0.0.1", "2026-10-14 09:00:00 UTC"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSafeRedirect(t *testing.T) {
	cases := map[string]string{
		"":                       defaultRedirect,
		"/dashboard?tab=1":       "/dashboard?tab=1",
		"/reports":               "/reports",
		"//evil.example":         defaultRedirect,
		"/\\evil.example":        defaultRedirect,
		"https://evil.example/x": defaultRedirect,
		"dashboard":              defaultRedirect,
	}
	for in, want := range cases {
		assert.Equal(t, want, safeRedirect(in), "input %q", in)
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "ann@x.com", normalizeEmail("  Ann@X.COM\n"))
}

func TestLockedMessageRoundsUp(t *testing.T) {
	assert.Equal(t, "Too many login attempts. Please try again in 60 seconds.", lockedMessage(59.2))
}

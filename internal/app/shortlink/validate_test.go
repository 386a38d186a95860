package shortlink_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"yacut.local/internal/app/shortlink"
)

func TestValidateCustomID(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"abc", true},
		{"A1b2C3", true},
		{strings.Repeat("a", 16), true},
		{strings.Repeat("a", 17), false},
		{"", false},
		{"with-dash", false},
		{"with space", false},
		{"кириллица", false},
		{"files", true}, // 语法合法，保留字由 IsValidCandidate 拦截
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := shortlink.ValidateCustomID(tt.in)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, shortlink.ErrInvalidCustomID)
			}
		})
	}
}

func TestIsValidCandidate(t *testing.T) {
	assert.True(t, shortlink.IsValidCandidate("abc123"))
	assert.False(t, shortlink.IsValidCandidate("files"))
	assert.True(t, shortlink.IsValidCandidate("Files"))
	assert.True(t, shortlink.IsValidCandidate("files1"))
	assert.True(t, shortlink.IsValidCandidate("myfiles"))
	assert.False(t, shortlink.IsValidCandidate(""))
	assert.False(t, shortlink.IsValidCandidate("a_b"))
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"https://example.com", true},
		{"http://example.com/path?q=1", true},
		{"http://localhost:8080/x", false},
		{"http://localhost./x", false},
		{"http://app.localhost/x", true},
		{"ftp://example.com", false},
		{"example.com", false},
		{"https://", false},
		{"https://intranet", false},
		{"", false},
		{"https://example.com/" + strings.Repeat("a", shortlink.MaxOriginalLen), false},
	}
	for _, tt := range tests {
		err := shortlink.ValidateURL(tt.in)
		if tt.valid {
			assert.NoError(t, err, tt.in)
		} else {
			assert.ErrorIs(t, err, shortlink.ErrInvalidURL, tt.in)
		}
	}
}

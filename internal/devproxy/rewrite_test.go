package devproxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathRewriter(t *testing.T) {
	cases := []struct {
		name  string
		rules []RewriteRule
		in    string
		want  string
	}{
		{"no-op default", []RewriteRule{{From: "^/api", To: "/api"}}, "/api/documents/", "/api/documents/"},
		{"strip prefix", []RewriteRule{{From: "^/api", To: ""}}, "/api/documents/", "/documents/"},
		{"no match", []RewriteRule{{From: "^/v2", To: "/v1"}}, "/api/documents/", "/api/documents/"},
		{"first match wins", []RewriteRule{
			{From: "^/api", To: "/backend"},
			{From: "^/backend", To: "/never"},
		}, "/api/x", "/backend/x"},
		{"capture groups", []RewriteRule{{From: "^/api/(.*)$", To: "/v1/$1"}}, "/api/documents/3/", "/v1/documents/3/"},
		{"no rules", nil, "/api/x", "/api/x"},
		{"first occurrence only", []RewriteRule{{From: "documents", To: "docs"}}, "/api/documents/documents/", "/api/docs/documents/"},
		{"escaped segment untouched", []RewriteRule{{From: "^/api", To: ""}}, "/api/documents/a%2Fb/", "/documents/a%2Fb/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pr, err := newPathRewriter(tc.rules)
			require.NoError(t, err)
			assert.Equal(t, tc.want, pr.rewrite(tc.in))
		})
	}
}

func TestPathRewriter_invalidPattern(t *testing.T) {
	_, err := newPathRewriter([]RewriteRule{{From: "([", To: ""}})
	assert.Error(t, err)
}

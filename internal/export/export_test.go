package export

import (
	"strings"
	"testing"
	"time"
)

func TestContentToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "single paragraph",
			input:    "Hello world",
			expected: "<p>Hello world</p>\n",
		},
		{
			name:     "two paragraphs",
			input:    "First.\n\nSecond.",
			expected: "<p>First.</p>\n<p>Second.</p>\n",
		},
		{
			name:     "line break inside paragraph",
			input:    "line one\nline two",
			expected: "<p>line one<br>line two</p>\n",
		},
		{
			name:     "html is escaped",
			input:    "<script>alert(1)</script>",
			expected: "<p>&lt;script&gt;alert(1)&lt;/script&gt;</p>\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := string(ContentToHTML(tc.input)); got != tc.expected {
				t.Errorf("ContentToHTML(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestRenderItemHTML(t *testing.T) {
	html, err := RenderItemHTML(TemplateData{
		Title:       "Deployment Guide",
		AuthorName:  "Avery",
		Version:     3,
		Tags:        []string{"ops"},
		Freshness:   "Fresh",
		ContentHTML: ContentToHTML("Step one.\n\nStep two."),
		Reviews: []TemplateReview{
			{Reviewer: "Blake", Rating: 9, Comments: "Solid."},
		},
		GeneratedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("RenderItemHTML() error = %v", err)
	}
	for _, want := range []string{
		"Deployment Guide",
		"version 3",
		"freshness: Fresh",
		"<p>Step one.</p>",
		"9/10",
		"Blake",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered html missing %q", want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Deployment Guide":  "Deployment-Guide",
		"a/b\\c":            "abc",
		"":                  "knowledge-item",
		strings.Repeat("x", 80): strings.Repeat("x", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	if got := percentEncodeForDataURL("a b"); got != "a%20b" {
		t.Errorf("space encoding: got %q", got)
	}
	if got := percentEncodeForDataURL("<p>"); got != "%3Cp%3E" {
		t.Errorf("angle bracket encoding: got %q", got)
	}
}

package common

import (
	"encoding/json"
	"testing"
)

// ---------------------------------------------------------------------------
// ParseYear / SplitTitleYear
// ---------------------------------------------------------------------------

func TestParseYear(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"2019", 2019},
		{"released 1999-03-31", 1999},
		{"", 0},
		{"unknown", 0},
		{"12345", 0},
	}
	for _, tc := range cases {
		if got := ParseYear(tc.input); got != tc.want {
			t.Errorf("ParseYear(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func TestSplitTitleYear(t *testing.T) {
	cases := []struct {
		input     string
		wantTitle string
		wantYear  int
	}{
		{"Spirited Away (2001)", "Spirited Away", 2001},
		{"The.Matrix.[1999]", "The Matrix", 1999},
		{"Blade Runner 2049 (2017)", "Blade Runner 2049", 2017},
		{"No Year Here", "No Year Here", 0},
		{"(2001)", "(2001)", 0},
		{"  Padded   (2020)  ", "Padded", 2020},
	}
	for _, tc := range cases {
		title, year := SplitTitleYear(tc.input)
		if title != tc.wantTitle || year != tc.wantYear {
			t.Errorf("SplitTitleYear(%q) = (%q, %d), want (%q, %d)", tc.input, title, year, tc.wantTitle, tc.wantYear)
		}
	}
}

func TestFlexStringAcceptsNumbersAndStrings(t *testing.T) {
	var payload struct {
		ID   FlexString `json:"id"`
		Year FlexString `json:"year"`
		Pic  FlexString `json:"pic"`
	}
	if err := json.Unmarshal([]byte(`{"id": 42, "year": " 2020 ", "pic": null}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.ID != "42" || payload.Year != "2020" || payload.Pic != "" {
		t.Fatalf("unexpected decode: %+v", payload)
	}
}

// ---------------------------------------------------------------------------
// CleanHTMLText
// ---------------------------------------------------------------------------

func TestCleanHTMLTextBasic(t *testing.T) {
	got := CleanHTMLText("<b>Hello</b> <i>World</i>")
	if got != "Hello World" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Hello World")
	}
}

func TestCleanHTMLTextEmpty(t *testing.T) {
	got := CleanHTMLText("")
	if got != "" {
		t.Errorf("CleanHTMLText(\"\") = %q, want empty", got)
	}
}

func TestCleanHTMLTextWhitespace(t *testing.T) {
	got := CleanHTMLText("   hello   world   ")
	if got != "hello world" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "hello world")
	}
}

func TestCleanHTMLTextHTMLEntities(t *testing.T) {
	// &amp; is unescaped to &, &lt;test&gt; is unescaped to <test> then stripped as a tag
	got := CleanHTMLText("Hello &amp; World &lt;test&gt;")
	if got != "Hello & World" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Hello & World")
	}
}

func TestCleanHTMLTextAmpersandEntity(t *testing.T) {
	got := CleanHTMLText("Tom &amp; Jerry")
	if got != "Tom & Jerry" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Tom & Jerry")
	}
}

func TestCleanHTMLTextNestedTags(t *testing.T) {
	got := CleanHTMLText("<div><span>Nested</span> <a href='#'>Content</a></div>")
	if got != "Nested Content" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Nested Content")
	}
}

func TestCleanHTMLTextNoTags(t *testing.T) {
	got := CleanHTMLText("Just plain text")
	if got != "Just plain text" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "Just plain text")
	}
}

func TestCleanHTMLTextMultipleSpacesAfterTagRemoval(t *testing.T) {
	got := CleanHTMLText("<br><br><br>text<br><br>")
	if got != "text" {
		t.Errorf("CleanHTMLText: got %q, want %q", got, "text")
	}
}

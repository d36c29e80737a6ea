package common

import (
	"encoding/json"
	"html"
	"regexp"
	"strconv"
	"strings"
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	yearPattern       = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	folderYearPattern = regexp.MustCompile(`^(.*?)[\s._-]*[\(\[]((?:19|20)\d{2})[\)\]]\s*$`)
)

func CleanHTMLText(raw string) string {
	value := strings.TrimSpace(raw)
	value = html.UnescapeString(value)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

// ParseYear extracts the first plausible four-digit year from raw.
func ParseYear(raw string) int {
	match := yearPattern.FindString(raw)
	if match == "" {
		return 0
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return year
}

// SplitTitleYear parses folder names like "Title (2019)" or "Title [2019]".
// Names without a trailing year come back unchanged with year 0.
func SplitTitleYear(folder string) (string, int) {
	name := strings.TrimSpace(folder)
	match := folderYearPattern.FindStringSubmatch(name)
	if match == nil {
		return name, 0
	}
	title := strings.TrimSpace(strings.NewReplacer(".", " ", "_", " ").Replace(match[1]))
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return name, 0
	}
	year, _ := strconv.Atoi(match[2])
	return title, year
}

// FlexString decodes JSON strings and numbers alike, as CMS APIs mix both.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" || trimmed == "" {
		*f = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(value))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*f = FlexString(number.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

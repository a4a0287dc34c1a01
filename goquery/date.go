package goquery

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/harvest"
)

var _ harvest.DateDetector = (*DateDetector)(nil)

// DefaultDateSelectors locate publish times on article pages. Meta tags are
// read from their content attribute, other elements from their text.
var DefaultDateSelectors = []string{
	`meta[property="article:published_time"]`,
	`meta[name="pubdate"]`,
	`meta[name="publishdate"]`,
	"time[datetime]",
	".pubtime",
	".release-time",
	".time",
	"span.time",
	`div[class*="time"]`,
}

// Date shapes searched for in element text, most specific first.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(:\d{2})?`),
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}`),
	regexp.MustCompile(`\d{4}/\d{1,2}/\d{1,2}`),
	regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`),
	regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日`),
}

// DateDetector finds publish times using CSS selectors.
type DateDetector struct {
	Selectors []string
}

// NewDateDetector returns a DateDetector with the default selectors.
func NewDateDetector() *DateDetector {
	return &DateDetector{Selectors: DefaultDateSelectors}
}

// DetectPublishTime returns the first parseable date matched by the
// selectors, or nil.
func (d *DateDetector) DetectPublishTime(html string) *time.Time {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	for _, selector := range d.Selectors {
		var found *time.Time
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			found = selectionTime(sel)
			return found == nil
		})
		if found != nil {
			return found
		}
	}
	return nil
}

func selectionTime(sel *goquery.Selection) *time.Time {
	if goquery.NodeName(sel) == "meta" {
		content, _ := sel.Attr("content")
		return parse(content)
	}
	if dt, ok := sel.Attr("datetime"); ok {
		if t := parse(dt); t != nil {
			return t
		}
	}
	text := sel.Text()
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			if t := parse(m); t != nil {
				return t
			}
		}
	}
	return nil
}

func parse(s string) *time.Time {
	t, err := harvest.ParsePublishTime(s)
	if err != nil {
		return nil
	}
	return t
}

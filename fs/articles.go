package fs

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fwojciec/harvest"
)

// record is the on-disk shape of an article as written by scrapers.
// Older exports used "date" instead of "publish_time".
type record struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	PublishTime string `json:"publish_time"`
	Date        string `json:"date"`
	Channel     string `json:"channel"`
	Module      string `json:"module"`
}

func (r *record) article() (*harvest.Article, error) {
	raw := r.PublishTime
	if raw == "" {
		raw = r.Date
	}
	pt, err := harvest.ParsePublishTime(raw)
	if err != nil {
		return nil, err
	}
	return &harvest.Article{
		URL:         r.URL,
		Title:       r.Title,
		Content:     r.Content,
		PublishTime: pt,
		Channel:     r.Channel,
		Module:      r.Module,
	}, nil
}

// Rejected is a well-formed record that could not be turned into an article.
type Rejected struct {
	Index int // position in the input
	URL   string
	Err   error
}

// ReadArticles reads article records from a JSON array or JSON Lines file.
func ReadArticles(path string) ([]*harvest.Article, []Rejected, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseArticles(data)
}

// ParseArticles decodes article records. Input whose first non-space byte is
// '[' is decoded as a JSON array; anything else as one object per line.
//
// Malformed JSON fails the whole input. A record whose publish time cannot be
// parsed is returned in rejected and the remaining records are still decoded.
func ParseArticles(data []byte) (articles []*harvest.Article, rejected []Rejected, err error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil, nil
	}

	var records []record
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, nil, harvest.WrapError(harvest.EINVALID, err, "decode article array")
		}
	} else {
		sc := bufio.NewScanner(bytes.NewReader(trimmed))
		sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		line := 0
		for sc.Scan() {
			line++
			b := bytes.TrimSpace(sc.Bytes())
			if len(b) == 0 {
				continue
			}
			var r record
			if err := json.Unmarshal(b, &r); err != nil {
				return nil, nil, harvest.WrapError(harvest.EINVALID, err, "decode article on line %d", line)
			}
			records = append(records, r)
		}
		if err := sc.Err(); err != nil {
			return nil, nil, fmt.Errorf("scan articles: %w", err)
		}
	}

	articles = make([]*harvest.Article, 0, len(records))
	for i := range records {
		a, err := records[i].article()
		if err != nil {
			rejected = append(rejected, Rejected{Index: i, URL: records[i].URL, Err: err})
			continue
		}
		articles = append(articles, a)
	}
	return articles, rejected, nil
}

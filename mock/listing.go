package mock

import (
	"time"

	"github.com/fwojciec/harvest"
)

var _ harvest.LinkSelector = (*LinkSelector)(nil)

// LinkSelector is a mock implementation of harvest.LinkSelector.
type LinkSelector struct {
	ExtractLinksFn func(html string, baseURL string) ([]harvest.DiscoveredLink, error)
}

func (s *LinkSelector) ExtractLinks(html string, baseURL string) ([]harvest.DiscoveredLink, error) {
	return s.ExtractLinksFn(html, baseURL)
}

var _ harvest.DateDetector = (*DateDetector)(nil)

// DateDetector is a mock implementation of harvest.DateDetector.
type DateDetector struct {
	DetectPublishTimeFn func(html string) *time.Time
}

func (d *DateDetector) DetectPublishTime(html string) *time.Time {
	return d.DetectPublishTimeFn(html)
}

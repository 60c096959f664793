package podcast

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"lcdradio/models"
)

const maxFeedBytes = 4 << 20

// Service fetches podcast feeds and turns them into episode lists. Feeds in
// the wild are ragged enough that this works on the raw text rather than a
// strict XML decode: a feed with one malformed item should still yield the
// other episodes.
type Service struct {
	client *http.Client
	log    *slog.Logger
}

func NewService(log *slog.Logger) *Service {
	return &Service{
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

// Inspect fetches a URL and reports whether it is an RSS feed, and if so the
// feed's title. Non-feed URLs are treated as direct audio links.
func (s *Service) Inspect(ctx context.Context, url string) (isFeed bool, title string, err error) {
	body, err := s.fetch(ctx, url)
	if err != nil {
		return false, "", err
	}
	if !looksLikeRSS(body) {
		return false, "", nil
	}
	title = extractBetween(body, "<title>", "</title>")
	if title == "" {
		title = url
	}
	return true, strings.TrimSpace(title), nil
}

// Episodes fetches a feed and returns its items, newest first as feeds
// conventionally order them.
func (s *Service) Episodes(ctx context.Context, url string) ([]models.PodcastEpisode, error) {
	body, err := s.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if !looksLikeRSS(body) {
		return nil, fmt.Errorf("%s is not an RSS feed", url)
	}
	return parseItems(body, s.log), nil
}

func (s *Service) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build feed request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	return string(raw), nil
}

// looksLikeRSS applies the same fingerprints podcast directories rely on.
func looksLikeRSS(body string) bool {
	return strings.Contains(body, "<rss version") || strings.Contains(body, "xmlns:atom")
}

func parseItems(body string, log *slog.Logger) []models.PodcastEpisode {
	var episodes []models.PodcastEpisode
	rest := body
	for {
		i := strings.Index(rest, "<item")
		if i < 0 {
			break
		}
		rest = rest[i:]
		end := strings.Index(rest, "</item>")
		if end < 0 {
			break
		}
		item := rest[:end]
		rest = rest[end+len("</item>"):]

		url := enclosureURL(item)
		if url == "" {
			// Items without an audio enclosure are show notes; skip them.
			continue
		}
		subtitle := extractBetween(item, "<itunes:subtitle>", "</itunes:subtitle>")
		if subtitle == "" {
			subtitle = extractBetween(item, "<title>", "</title>")
		}
		episodes = append(episodes, models.PodcastEpisode{
			Date:     strings.TrimSpace(extractBetween(item, "<pubDate>", "</pubDate>")),
			Subtitle: stripCDATA(subtitle),
			Summary:  stripCDATA(extractBetween(item, "<description>", "</description>")),
			URL:      url,
		})
	}
	if len(episodes) == 0 {
		log.Warn("feed contained no playable items")
	}
	return episodes
}

// enclosureURL digs the audio URL out of an <enclosure .../> tag.
func enclosureURL(item string) string {
	tag := extractBetween(item, "<enclosure", ">")
	if tag == "" {
		return ""
	}
	url := extractBetween(tag, `url="`, `"`)
	if url == "" {
		url = extractBetween(tag, `url='`, `'`)
	}
	return url
}

// extractBetween returns the text between the first occurrence of after and
// the following occurrence of before, or "" when either marker is missing.
func extractBetween(s, after, before string) string {
	i := strings.Index(s, after)
	if i < 0 {
		return ""
	}
	s = s[i+len(after):]
	j := strings.Index(s, before)
	if j < 0 {
		return ""
	}
	return s[:j]
}

func stripCDATA(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "<![CDATA[")
	s = strings.TrimSuffix(s, "]]>")
	return strings.TrimSpace(s)
}

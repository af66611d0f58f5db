// Package gentool reads the public replay archive: one directory per day,
// one subdirectory per uploading user, replay files inside.
package gentool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// DefaultBaseURL is the Zero Hour section of the archive.
const DefaultBaseURL = "https://gentool.net/data/zh"

// ErrNotFound is returned when the archive has no directory for a request.
var ErrNotFound = errors.New("gentool: not found")

// Client fetches archive listings and replay files.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another archive root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// NewClient creates a client for the public archive.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReplayFile is one entry of a user directory listing.
type ReplayFile struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Timestamp string    `json:"timestamp"`
	SizeKB    float64   `json:"sizeKb"`
	User      string    `json:"user"`
	Day       time.Time `json:"day"`
}

// DayURL is the directory holding every upload of one day, e.g.
// {base}/2024_03_March/15_Friday/.
func (c *Client) DayURL(day time.Time) string {
	return c.baseURL + "/" + day.Format("2006_01_January/02_Monday") + "/"
}

// UserURL is the directory of one user on one day.
func (c *Client) UserURL(day time.Time, user string) string {
	return c.DayURL(day) + url.PathEscape(user)
}

// ListUserDirs returns the user directories uploaded on day. The parent
// directory link that heads every listing is skipped.
func (c *Client) ListUserDirs(ctx context.Context, day time.Time) ([]string, error) {
	doc, err := c.getHTML(ctx, c.DayURL(day))
	if err != nil {
		return nil, err
	}

	var links []string
	for _, td := range findAll(doc, "td") {
		for _, a := range findAll(td, "a") {
			links = append(links, strings.TrimSpace(textContent(a)))
		}
	}
	if len(links) <= 1 {
		return nil, nil
	}
	return links[1:], nil
}

// ListReplays returns the replay files in a user directory.
func (c *Client) ListReplays(ctx context.Context, day time.Time, user string) ([]ReplayFile, error) {
	dirURL := c.UserURL(day, user)
	doc, err := c.getHTML(ctx, dirURL)
	if err != nil {
		return nil, err
	}

	var files []ReplayFile
	for _, tr := range findAll(doc, "tr") {
		tds := findAll(tr, "td")
		if len(tds) < 4 || strings.TrimSpace(textContent(tds[len(tds)-1])) != "Replay" {
			continue
		}
		anchors := findAll(tr, "a")
		if len(anchors) == 0 {
			continue
		}
		name := textContent(anchors[0])
		files = append(files, ReplayFile{
			Name:      name,
			URL:       dirURL + "/" + url.PathEscape(name),
			Timestamp: strings.TrimSpace(textContent(tds[2])),
			SizeKB:    parseSize(strings.TrimSpace(textContent(tds[3]))),
			User:      user,
			Day:       day,
		})
	}
	return files, nil
}

// Download fetches a replay file.
func (c *Client) Download(ctx context.Context, fileURL string) ([]byte, error) {
	resp, err := c.get(ctx, fileURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileURL, err)
	}
	return data, nil
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp, nil
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: %w", u, ErrNotFound)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%s: unexpected status %d", u, resp.StatusCode)
	}
}

func (c *Client) getHTML(ctx context.Context, u string) (*html.Node, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing %s: %w", u, err)
	}
	log.Debug().Str("component", "gentool").Str("url", u).Msg("listing fetched")
	return doc, nil
}

func findAll(n *html.Node, tag string) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && c.Data == tag {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

var nonNumeric = regexp.MustCompile(`[^\d.]`)

// parseSize converts a listing size such as "245K", "1.2M" or "900" bytes
// to kilobytes.
func parseSize(s string) float64 {
	v, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(s, ""), 64)
	if err != nil {
		return 0
	}
	switch {
	case strings.Contains(s, "K"):
		return v
	case strings.Contains(s, "M"):
		return v * 1024
	}
	return v / 1024
}

var urlDateRe = regexp.MustCompile(`/(\d{4})_(\d{2})_[^/]+/(\d{2})_`)

// DateFromURL extracts the upload day from an archive file URL.
func DateFromURL(fileURL string) (time.Time, bool) {
	m := urlDateRe.FindStringSubmatch(fileURL)
	if m == nil {
		return time.Time{}, false
	}
	d, err := time.Parse("2006-01-02", m[1]+"-"+m[2]+"-"+m[3])
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// SavedName is the local file name for a downloaded replay:
// {user id}_{YYYY-MM-DD}_{file}. The user id is the part of the user
// directory after its last underscore. URLs that do not follow the archive
// layout keep the plain file name.
func SavedName(fileURL, fileName string) string {
	if u, err := url.PathUnescape(fileURL); err == nil {
		fileURL = u
	}
	slash := strings.LastIndex(fileURL, "/")
	if slash < 0 {
		return fileName
	}
	dir := fileURL[:slash]
	us := strings.LastIndex(dir, "_")
	if us < 0 {
		return fileName
	}
	userID := dir[us+1:]
	parts := strings.Split(dir[:us], "/")
	if len(parts) < 3 {
		return fileName
	}
	yearMonth, day := parts[len(parts)-3], parts[len(parts)-2]
	if len(yearMonth) < 7 || len(day) < 2 {
		return fileName
	}
	return userID + "_" + yearMonth[:4] + "-" + yearMonth[5:7] + "-" + day[:2] + "_" + fileName
}

package tools

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	DefaultHTTPTimeout = 20 * time.Second
	MaxHTTPTimeout     = 120 * time.Second
	maxHTTPText        = 2000
	maxHTTPBody        = 1 << 20
)

type httpGetTool struct {
	client  *http.Client
	timeout time.Duration
}

func (t *httpGetTool) run(ctx context.Context, ec *ExecContext, args Args) Result {
	raw, ok := args.String("url")
	if !ok || raw == "" {
		return fail("url is required")
	}
	ec.Touch(raw)

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fail("invalid url: %s", raw)
	}

	timeout := args.Seconds("timeout", t.timeout, time.Second, MaxHTTPTimeout)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fail("invalid request: %v", err)
	}
	req.Header.Set("User-Agent", "station/1")

	resp, err := t.client.Do(req)
	if err != nil {
		return fail("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBody))
	if err != nil {
		return fail("failed to read response: %v", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}

	res := Result{
		"ok":      resp.StatusCode >= 200 && resp.StatusCode < 400,
		"status":  resp.StatusCode,
		"headers": headers,
		"text":    truncate(string(body), maxHTTPText),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if title := htmlTitle(string(body)); title != "" {
			res["title"] = title
		}
	}
	return res
}

// htmlTitle returns the text of the first <title> element.
func htmlTitle(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}

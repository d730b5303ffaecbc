package acquire

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"mirnadb/internal/apperr"
	"mirnadb/internal/metrics"
)

// confirmCookiePrefix marks the cookie Drive sets when it wants the caller to
// confirm a download it could not virus-scan.
const confirmCookiePrefix = "download_warning"

// NewHTTPClient returns a client with a cookie jar, as Drive's confirmation
// flow depends on cookies surviving between requests.
func NewHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// response is a fully read 2xx response.
type response struct {
	url     *url.URL
	body    []byte
	cookies []*http.Cookie
}

// get performs one GET and reads the whole body. Transport failures and non-2xx
// statuses wrap apperr.ErrNetwork.
func (a *Adapter) get(ctx context.Context, rawURL string) (response, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("%w: build request %s: %v", apperr.ErrNetwork, rawURL, err)
	}
	if a.UserAgent != "" {
		req.Header.Set("User-Agent", a.UserAgent)
	}

	resp, err := a.client().Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start), 0, 0)
		return response{}, fmt.Errorf("%w: GET %s: %v", apperr.ErrNetwork, rawURL, err)
	}
	defer resp.Body.Close()
	requestDur := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n, _ := io.Copy(io.Discard, resp.Body)
		metrics.RecordHTTP(resp.StatusCode, nil, requestDur, time.Since(start), n)
		return response{}, fmt.Errorf("%w: GET %s: status %s", apperr.ErrNetwork, rawURL, resp.Status)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, requestDur, time.Since(start), n)
	if err != nil {
		return response{}, fmt.Errorf("%w: read %s: %v", apperr.ErrNetwork, rawURL, err)
	}

	a.logger().Debug("downloaded",
		zap.String("url", rawURL),
		zap.Int("status", resp.StatusCode),
		zap.String("size", humanize.Bytes(uint64(n))),
		zap.Duration("duration", time.Since(start)),
	)

	cookies := resp.Cookies()
	if jar := a.client().Jar; jar != nil {
		cookies = append(cookies, jar.Cookies(req.URL)...)
	}
	return response{url: resp.Request.URL, body: buf.Bytes(), cookies: cookies}, nil
}

// confirmToken returns the value of the first download_warning* cookie.
func confirmToken(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, confirmCookiePrefix) && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// confirmFormURL recovers the retry URL from Drive's "can't scan this file"
// page: the download form's action plus its hidden inputs, or failing that the
// explicit download link. base resolves relative actions.
func confirmFormURL(base *url.URL, page []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", false
	}

	if form := doc.Find("form#download-form").First(); form.Length() > 0 {
		action, ok := form.Attr("action")
		if ok && action != "" {
			target, err := base.Parse(action)
			if err != nil {
				return "", false
			}
			q := target.Query()
			form.Find(`input[type="hidden"]`).Each(func(_ int, in *goquery.Selection) {
				name, _ := in.Attr("name")
				if name == "" {
					return
				}
				value, _ := in.Attr("value")
				q.Set(name, value)
			})
			target.RawQuery = q.Encode()
			return target.String(), true
		}
	}

	if href, ok := doc.Find("a#uc-download-link").First().Attr("href"); ok && href != "" {
		target, err := base.Parse(href)
		if err != nil {
			return "", false
		}
		return target.String(), true
	}
	return "", false
}

// fetchArchiveBlob downloads the blob behind a Drive file id. When the first
// response is not an archive, it retries once with a confirmation token taken
// from the cookies or, when there is none, with the interstitial page's form.
func (a *Adapter) fetchArchiveBlob(ctx context.Context, id string) ([]byte, error) {
	first := DownloadURL(a.exportURL(), id)
	resp, err := a.get(ctx, first)
	if err != nil {
		return nil, err
	}
	if Sniff(resp.body) == Archive {
		return resp.body, nil
	}

	var retry string
	if token := confirmToken(resp.cookies); token != "" {
		retry = first + "&confirm=" + url.QueryEscape(token)
	} else if u, ok := confirmFormURL(resp.url, resp.body); ok {
		retry = u
	}
	if retry == "" {
		return resp.body, nil
	}

	a.logger().Info("retrying download with confirmation", zap.String("archive_id", id))
	resp, err = a.get(ctx, retry)
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

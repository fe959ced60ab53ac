// Package remote implements the two-phase prepare/execute remote
// transport against the NationStates API.
package remote

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Europeia/eurocore/internal/ratelimit"
)

const defaultBaseURL = "https://www.nationstates.net/cgi-bin/api.cgi"

var (
	dispatchIDPattern = regexp.MustCompile(`(\d+)`)
	rmbPostIDPattern  = regexp.MustCompile(`=(\d+)#`)
)

// PinUpdater is the subset of nation.Cache the transport needs to refresh
// a nation's session PIN from a response header.
type PinUpdater interface {
	SetPin(ctx context.Context, nationName, pin string) error
}

// Client executes prepare/execute exchanges against the remote host.
type Client struct {
	baseURL           string
	httpClient        *http.Client
	limiter           *ratelimit.Limiter
	nations           PinUpdater
	telegramClientKey string
}

// New builds a Client. userAgent is sent as the HTTP User-Agent;
// telegramClientKey is the application's registered `client` id for the
// telegram API, sent on every send (distinct from the sending nation).
func New(userAgent, telegramClientKey string, limiter *ratelimit.Limiter, nations PinUpdater) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Transport: &userAgentTransport{agent: userAgent, base: http.DefaultTransport},
		},
		limiter:           limiter,
		nations:           nations,
		telegramClientKey: telegramClientKey,
	}
}

// SetBaseURL overrides the remote endpoint, for pointing a Client at a
// test double.
func (c *Client) SetBaseURL(url string) { c.baseURL = url }

type userAgentTransport struct {
	agent string
	base  http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", t.agent)
	return t.base.RoundTrip(req)
}

// envelope is the XML response shape: <NATIONSTATES><SUCCESS|ERROR>.
type envelope struct {
	XMLName xml.Name `xml:"NATIONSTATES"`
	Success string   `xml:"SUCCESS"`
	Error   string   `xml:"ERROR"`
}

func (e *envelope) isSuccess() bool { return e.Error == "" }

// DispatchRequest carries every field the wire form needs across both
// phases of the dispatch write protocol.
type DispatchRequest struct {
	Nation      string
	Password    string
	Action      string // "add", "edit", "remove"
	ID          *int32 // absent for add
	Title       *string
	Text        *string
	Category    *int16
	Subcategory *int16
}

// RmbPostRequest carries the fields for an RMB post write.
type RmbPostRequest struct {
	Nation   string
	Password string
	Region   string
	Text     string
}

// TelegramRequest carries the fields for a single-phase telegram send.
// Sender is the nation the telegram is sent on behalf of, used only to
// acquire the correct rate-limit target — it is not itself transmitted.
type TelegramRequest struct {
	Sender     string
	TelegramID string
	SecretKey  string
	Recipient  string
	Target     ratelimit.Target
}

// Dispatch runs the prepare/execute exchange for a dispatch action and
// returns the resulting dispatch id. For edit/remove, the id is already
// known (req.ID) and is returned unchanged on success; for add, the id is
// extracted from the execute response body.
func (c *Client) Dispatch(ctx context.Context, req DispatchRequest, pin string, target ratelimit.Target) (int32, error) {
	if req.Text != nil {
		encoded := EncodeText(*req.Text)
		req.Text = &encoded
	}

	if wait := c.limiter.Acquire(ctx, target); wait > 0 {
		sleep(ctx, wait)
	}

	form := dispatchForm(req, "prepare", "")
	token, pin, err := c.prepare(ctx, form, req.Password, pin)
	if err != nil {
		return 0, err
	}

	if err := c.refreshPin(ctx, req.Nation, pin); err != nil {
		return 0, err
	}

	if wait := c.limiter.Acquire(ctx, ratelimit.StandardTarget()); wait > 0 {
		sleep(ctx, wait)
	}

	form = dispatchForm(req, "execute", token)
	body, err := c.execute(ctx, form, req.Password, pin)
	if err != nil {
		return 0, err
	}

	if req.ID != nil {
		return *req.ID, nil
	}

	match := dispatchIDPattern.FindString(body)
	if match == "" {
		return 0, &ParseError{Cause: errNoIDMatch}
	}
	id, parseErr := strconv.ParseInt(match, 10, 32)
	if parseErr != nil {
		return 0, &ParseError{Cause: parseErr}
	}
	return int32(id), nil
}

// RmbPost runs the prepare/execute exchange for an RMB post and returns
// the new post id.
func (c *Client) RmbPost(ctx context.Context, req RmbPostRequest, pin string) (int32, error) {
	req.Text = EncodeText(req.Text)

	target := ratelimit.RestrictedTarget(req.Nation)
	if wait := c.limiter.Acquire(ctx, target); wait > 0 {
		sleep(ctx, wait)
	}

	form := rmbPostForm(req, "prepare", "")
	token, pin, err := c.prepare(ctx, form, req.Password, pin)
	if err != nil {
		return 0, err
	}

	if err := c.refreshPin(ctx, req.Nation, pin); err != nil {
		return 0, err
	}

	if wait := c.limiter.Acquire(ctx, ratelimit.StandardTarget()); wait > 0 {
		sleep(ctx, wait)
	}

	form = rmbPostForm(req, "execute", token)
	body, err := c.execute(ctx, form, req.Password, pin)
	if err != nil {
		return 0, err
	}

	matches := rmbPostIDPattern.FindStringSubmatch(body)
	if len(matches) != 2 {
		return 0, &ParseError{Cause: errNoIDMatch}
	}
	id, parseErr := strconv.ParseInt(matches[1], 10, 32)
	if parseErr != nil {
		return 0, &ParseError{Cause: parseErr}
	}
	return int32(id), nil
}

// Telegram sends a single-phase GET telegram request. Recipient
// normalization (lower-case, spaces to underscores) is applied by the
// caller before building the request.
func (c *Client) Telegram(ctx context.Context, req TelegramRequest) error {
	if wait := c.limiter.Acquire(ctx, req.Target); wait > 0 {
		sleep(ctx, wait)
	}

	q := url.Values{}
	q.Set("a", "sendTG")
	q.Set("client", c.telegramClientKey)
	q.Set("tgid", req.TelegramID)
	q.Set("key", req.SecretKey)
	q.Set("to", req.Recipient)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return &HTTPError{Cause: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &HTTPError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Cause: errNon2xx(resp.StatusCode)}
	}
	return nil
}

func (c *Client) prepare(ctx context.Context, form url.Values, password, pin string) (token, newPin string, err error) {
	body, headers, err := c.post(ctx, form, password, pin)
	if err != nil {
		return "", pin, err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return "", pin, err
	}
	if !env.isSuccess() {
		return "", pin, &NationStatesError{Message: env.Error}
	}

	if v := headers.Get("X-Pin"); v != "" {
		newPin = v
	} else {
		newPin = pin
	}
	return env.Success, newPin, nil
}

func (c *Client) execute(ctx context.Context, form url.Values, password, pin string) (string, error) {
	body, _, err := c.post(ctx, form, password, pin)
	if err != nil {
		return "", err
	}

	env, err := parseEnvelope(body)
	if err != nil {
		return "", err
	}
	if !env.isSuccess() {
		return "", &NationStatesError{Message: env.Error}
	}
	return env.Success, nil
}

func (c *Client) post(ctx context.Context, form url.Values, password, pin string) (string, http.Header, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", nil, &HTTPError{Cause: err}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	httpReq.Header.Set("X-Password", password)
	httpReq.Header.Set("X-Pin", pin)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, &HTTPError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, &HTTPError{Cause: errNon2xx(resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, &HTTPError{Cause: err}
	}
	return string(raw), resp.Header, nil
}

func (c *Client) refreshPin(ctx context.Context, nationName, pin string) error {
	if pin == "" {
		return nil
	}
	if err := c.nations.SetPin(ctx, nationName, pin); err != nil {
		return err
	}
	return nil
}

func parseEnvelope(body string) (*envelope, error) {
	var env envelope
	if err := xml.Unmarshal([]byte(body), &env); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return &env, nil
}

func dispatchForm(req DispatchRequest, mode, token string) url.Values {
	v := url.Values{}
	v.Set("nation", req.Nation)
	v.Set("c", "dispatch")
	v.Set("dispatch", req.Action)
	v.Set("mode", mode)
	if req.ID != nil {
		v.Set("dispatchid", strconv.Itoa(int(*req.ID)))
	}
	if req.Title != nil {
		v.Set("title", *req.Title)
	}
	if req.Text != nil {
		v.Set("text", *req.Text)
	}
	if req.Category != nil {
		v.Set("category", strconv.Itoa(int(*req.Category)))
	}
	if req.Subcategory != nil {
		v.Set("subcategory", strconv.Itoa(int(*req.Subcategory)))
	}
	if token != "" {
		v.Set("token", token)
	}
	return v
}

func rmbPostForm(req RmbPostRequest, mode, token string) url.Values {
	v := url.Values{}
	v.Set("nation", req.Nation)
	v.Set("c", "rmbpost")
	v.Set("region", req.Region)
	v.Set("text", req.Text)
	v.Set("mode", mode)
	if token != "" {
		v.Set("token", token)
	}
	return v
}

// sleep suspends the calling goroutine for d or until ctx is canceled.
// The reservation made by the preceding Acquire remains in place across
// this sleep regardless of outcome.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	perr "weibo-harvester/internal/platform/errors"
	"weibo-harvester/internal/services/harvester/domain"
)

// WireTimeFormat is the provider's fixed wire-time format, UTC
const WireTimeFormat = "2006-01-02 15:04:05"

// WebSocketFetcher adapts the page fetcher RPC over a local WebSocket to a companion
// browser-automation process.
type WebSocketFetcher struct {
	URL     string
	Timeout time.Duration
	dial    func(url string) (*websocket.Conn, error)
}

// NewWebSocketFetcher builds a fetcher dialing the given ws:// URL fresh on every call
func NewWebSocketFetcher(url string, timeout time.Duration) *WebSocketFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebSocketFetcher{
		URL:     url,
		Timeout: timeout,
		dial: func(url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			return conn, err
		},
	}
}

type crawlRequest struct {
	Action  string        `json:"action"`
	Payload requestFields `json:"payload"`
}

type requestFields struct {
	Keyword   string            `json:"keyword"`
	StartTime string            `json:"start_time"`
	EndTime   string            `json:"end_time"`
	Page      int               `json:"page"`
	Cookies   map[string]string `json:"cookies"`
}

type rawPostWire struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	CreatedAt        string `json:"created_at"`
	AuthorUID        string `json:"author_uid"`
	AuthorScreenName string `json:"author_screen_name"`
	RepostsCount     int64  `json:"reposts_count"`
	CommentsCount    int64  `json:"comments_count"`
	AttitudesCount   int64  `json:"attitudes_count"`
}

type crawlResultWire struct {
	Posts     []rawPostWire `json:"posts"`
	HasMore   bool          `json:"has_more"`
	Captcha   bool          `json:"captcha"`
	TotalHint *uint64       `json:"total_hint"`
}

type crawlResponse struct {
	Success bool             `json:"success"`
	Data    *crawlResultWire `json:"data"`
	Error   string           `json:"error"`
}

// Fetch requests a single page of results for (keyword, window, page, credentials).
// It bounds its own network time: the call either resolves within Timeout or returns
// a network-error kind error. The credentials map is never mutated.
func (f *WebSocketFetcher) Fetch(ctx context.Context, keyword string, start, end time.Time, page int, creds domain.Credentials) (domain.FetchResult, error) {
	deadline := time.Now().Add(f.Timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	conn, err := f.dial(f.URL)
	if err != nil {
		return domain.FetchResult{}, perr.Networkf("connect fetcher: %v", err)
	}
	defer conn.Close()
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	req := crawlRequest{
		Action: "crawl_weibo_search",
		Payload: requestFields{
			Keyword:   keyword,
			StartTime: start.UTC().Format(WireTimeFormat),
			EndTime:   end.UTC().Format(WireTimeFormat),
			Page:      page,
			Cookies:   copyCookies(creds.Cookies),
		},
	}
	body, err := json.Marshal(req)
	if err != nil {
		return domain.FetchResult{}, perr.Networkf("encode fetch request: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		return domain.FetchResult{}, perr.Networkf("send fetch request: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return domain.FetchResult{}, perr.Networkf("read fetch response: %v", err)
	}

	var resp crawlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return domain.FetchResult{}, perr.Networkf("decode fetch response: %v", err)
	}
	if !resp.Success || resp.Data == nil {
		if resp.Error == "" {
			resp.Error = "unknown fetcher error"
		}
		return domain.FetchResult{}, perr.Networkf("fetcher reported failure: %s", resp.Error)
	}

	result := domain.FetchResult{
		HasMore:   resp.Data.HasMore,
		Captcha:   resp.Data.Captcha,
		TotalHint: resp.Data.TotalHint,
	}
	result.Posts = make([]domain.RawPost, len(resp.Data.Posts))
	for i, p := range resp.Data.Posts {
		result.Posts[i] = domain.RawPost{
			ID:               p.ID,
			Text:             p.Text,
			CreatedAtWire:    p.CreatedAt,
			AuthorUID:        p.AuthorUID,
			AuthorScreenName: p.AuthorScreenName,
			RepostsCount:     p.RepostsCount,
			CommentsCount:    p.CommentsCount,
			AttitudesCount:   p.AttitudesCount,
		}
	}
	return result, nil
}

func copyCookies(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ domain.Fetcher = (*WebSocketFetcher)(nil)

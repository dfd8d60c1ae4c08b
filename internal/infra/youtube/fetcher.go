package youtube

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/jinford/tube-rag/internal/core/transcript"
)

const (
	// DefaultTimedTextBaseURL はYouTube字幕APIのベースURL
	DefaultTimedTextBaseURL = "https://video.google.com/timedtext"

	// DefaultOEmbedBaseURL はYouTube oEmbed APIのベースURL
	// 動画の存在とアクセス可否の確認に使用する
	DefaultOEmbedBaseURL = "https://www.youtube.com/oembed"

	// DefaultHTTPTimeout はHTTP呼び出しのデフォルトタイムアウト
	DefaultHTTPTimeout = 15 * time.Second
)

// videoIDPattern はYouTubeの動画ID（11文字）
var videoIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{11}$`)

// urlPatterns は動画URLから動画IDを抜き出すパターン群
var urlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:v=|/)([0-9A-Za-z_-]{11})(?:[?&#/]|$)`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`embed/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`shorts/([0-9A-Za-z_-]{11})`),
}

// ExtractVideoID はYouTubeのURLまたは生の動画IDから動画IDを取り出す
func ExtractVideoID(raw string) (string, error) {
	if videoIDPattern.MatchString(raw) {
		return raw, nil
	}

	for _, pattern := range urlPatterns {
		if m := pattern.FindStringSubmatch(raw); m != nil {
			return m[1], nil
		}
	}

	return "", fmt.Errorf("invalid YouTube URL or video ID: %q", raw)
}

// Fetcher はYouTubeのtimedtext APIから字幕を取得する transcript.Fetcher 実装
type Fetcher struct {
	httpClient       *http.Client
	timedTextBaseURL string
	oembedBaseURL    string
	logger           *slog.Logger
}

type FetcherOption func(*Fetcher)

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		f.httpClient = client
	}
}

// WithTimedTextBaseURL は字幕APIのベースURLを上書きする（テスト用）
func WithTimedTextBaseURL(baseURL string) FetcherOption {
	return func(f *Fetcher) {
		f.timedTextBaseURL = baseURL
	}
}

// WithOEmbedBaseURL はoEmbed APIのベースURLを上書きする（テスト用）
func WithOEmbedBaseURL(baseURL string) FetcherOption {
	return func(f *Fetcher) {
		f.oembedBaseURL = baseURL
	}
}

// WithFetcherLogger は Fetcher にロガーを設定する
func WithFetcherLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// NewFetcher は新しい Fetcher を作成する
func NewFetcher(opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		httpClient:       &http.Client{Timeout: DefaultHTTPTimeout},
		timedTextBaseURL: DefaultTimedTextBaseURL,
		oembedBaseURL:    DefaultOEmbedBaseURL,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = slog.Default()
	}
	return f
}

// Fetch は動画IDに対応する字幕を取得する
//
// 1. oEmbedで動画の存在とアクセス可否を確認する
// 2. 利用可能な字幕トラックの一覧を取得する（無ければ ErrNoCaptions）
// 3. 選択したトラックの字幕本文を取得・解析する
//
// 途中で失敗した場合は部分的な結果を返さず、分類済みエラーを返す。
func (f *Fetcher) Fetch(ctx context.Context, videoID string) (*transcript.Transcript, error) {
	if !videoIDPattern.MatchString(videoID) {
		return nil, fmt.Errorf("%w: invalid video ID %q", transcript.ErrVideoNotFound, videoID)
	}

	if err := f.checkVideoExists(ctx, videoID); err != nil {
		return nil, err
	}

	track, err := f.selectTrack(ctx, videoID)
	if err != nil {
		return nil, err
	}

	segments, err := f.fetchTrack(ctx, videoID, track)
	if err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: track %q is empty", transcript.ErrNoCaptions, track.LangCode)
	}

	f.logger.Info("transcript fetched from youtube",
		"videoID", videoID,
		"lang", track.LangCode,
		"segments", len(segments),
	)

	return transcript.New(videoID, segments), nil
}

// checkVideoExists はoEmbed APIで動画の存在を確認する
func (f *Fetcher) checkVideoExists(ctx context.Context, videoID string) error {
	endpoint := fmt.Sprintf("%s?url=%s&format=json",
		f.oembedBaseURL,
		url.QueryEscape("https://www.youtube.com/watch?v="+videoID),
	)

	resp, err := f.get(ctx, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", transcript.ErrVideoNotFound, videoID)
	default:
		return fmt.Errorf("%w: oembed returned status %d", transcript.ErrTransientFetch, resp.StatusCode)
	}
}

// captionTrack は利用可能な字幕トラックを表す
type captionTrack struct {
	LangCode    string `xml:"lang_code,attr"`
	LangDefault string `xml:"lang_default,attr"`
}

type trackList struct {
	XMLName xml.Name       `xml:"transcript_list"`
	Tracks  []captionTrack `xml:"track"`
}

// selectTrack は字幕トラック一覧を取得し、使用するトラックを選ぶ
// デフォルトトラック > 英語 > 先頭 の順で優先する
func (f *Fetcher) selectTrack(ctx context.Context, videoID string) (captionTrack, error) {
	endpoint := fmt.Sprintf("%s?type=list&v=%s", f.timedTextBaseURL, url.QueryEscape(videoID))

	resp, err := f.get(ctx, endpoint)
	if err != nil {
		return captionTrack{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return captionTrack{}, fmt.Errorf("%w: track list returned status %d", transcript.ErrTransientFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return captionTrack{}, fmt.Errorf("%w: %v", transcript.ErrTransientFetch, err)
	}

	var list trackList
	if len(body) == 0 || xml.Unmarshal(body, &list) != nil || len(list.Tracks) == 0 {
		// 字幕が無効化された動画は空のリストを返す
		return captionTrack{}, fmt.Errorf("%w: no caption tracks for %s", transcript.ErrNoCaptions, videoID)
	}

	for _, track := range list.Tracks {
		if track.LangDefault == "true" {
			return track, nil
		}
	}
	for _, track := range list.Tracks {
		if track.LangCode == "en" {
			return track, nil
		}
	}
	return list.Tracks[0], nil
}

type captionText struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Body  string  `xml:",chardata"`
}

type captionDoc struct {
	XMLName xml.Name      `xml:"transcript"`
	Texts   []captionText `xml:"text"`
}

// fetchTrack は選択したトラックの字幕本文を取得して解析する
func (f *Fetcher) fetchTrack(ctx context.Context, videoID string, track captionTrack) ([]transcript.Segment, error) {
	endpoint := fmt.Sprintf("%s?lang=%s&v=%s",
		f.timedTextBaseURL,
		url.QueryEscape(track.LangCode),
		url.QueryEscape(videoID),
	)

	resp, err := f.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: timedtext returned status %d", transcript.ErrTransientFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcript.ErrTransientFetch, err)
	}

	var doc captionDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to parse timedtext response: %v", transcript.ErrTransientFetch, err)
	}

	segments := make([]transcript.Segment, 0, len(doc.Texts))
	for _, text := range doc.Texts {
		// 字幕本文は二重にHTMLエスケープされていることがある
		unescaped := html.UnescapeString(html.UnescapeString(text.Body))
		if unescaped == "" {
			continue
		}
		segments = append(segments, transcript.Segment{
			Text:     unescaped,
			Start:    text.Start,
			Duration: text.Dur,
		})
	}

	return segments, nil
}

// get はGETリクエストを発行する（ネットワーク失敗は一時的エラーに分類）
func (f *Fetcher) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcript.ErrTransientFetch, err)
	}
	return resp, nil
}

// インターフェース実装の確認
var _ transcript.Fetcher = (*Fetcher)(nil)

package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
	"github.com/google/uuid"
)

const maxErrorBody = 2048

// TwitterConfig holds the user-context OAuth 1.0a credentials and endpoints.
type TwitterConfig struct {
	APIBaseURL        string
	UploadURL         string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	Timeout           time.Duration
	Stub              bool
}

// TwitterClient posts through API v2 and uploads media through v1.1.
type TwitterClient struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	stubMode   bool
}

// NewTwitterClient builds a signed client. In stub mode no credentials are
// needed and every call succeeds with a synthetic id.
func NewTwitterClient(cfg TwitterConfig) (*TwitterClient, error) {
	c := &TwitterClient{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		uploadURL: cfg.UploadURL,
		stubMode:  cfg.Stub,
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.twitter.com"
	}
	if c.uploadURL == "" {
		c.uploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	}
	if cfg.Stub {
		return c, nil
	}
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.AccessToken == "" || cfg.AccessTokenSecret == "" {
		return nil, errors.New("missing twitter api credentials")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	oauthCfg := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
	c.httpClient = oauthCfg.Client(oauth1.NoContext, token)
	c.httpClient.Timeout = timeout
	return c, nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Publish creates a tweet. At most four media ids are attached.
func (c *TwitterClient) Publish(ctx context.Context, msg Message) (Receipt, error) {
	if c.stubMode {
		return Receipt{ID: "stub-" + uuid.New().String(), Text: msg.Content}, nil
	}

	body := tweetRequest{Text: msg.Content}
	if len(msg.MediaIDs) > 0 {
		ids := msg.MediaIDs
		if len(ids) > 4 {
			ids = ids[:4]
		}
		body.Media = &tweetMedia{MediaIDs: ids}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Receipt{}, &Error{Op: "post tweet", Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(payload))
	if err != nil {
		return Receipt{}, &Error{Op: "post tweet", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	var out tweetResponse
	if err := c.do(req, "post tweet", &out); err != nil {
		return Receipt{}, err
	}
	if out.Data.ID == "" {
		return Receipt{}, &Error{Op: "post tweet", Err: errors.New("response has no tweet id")}
	}
	return Receipt{ID: out.Data.ID, Text: out.Data.Text}, nil
}

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia sends a simple (non-chunked) upload and returns the media id.
func (c *TwitterClient) UploadMedia(ctx context.Context, data []byte, mimeType string) (string, error) {
	if c.stubMode {
		return "stub-media-" + uuid.New().String(), nil
	}

	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	if err := w.WriteField("media_category", mediaCategory(mimeType)); err != nil {
		return "", &Error{Op: "upload media", Err: err}
	}
	part, err := w.CreateFormFile("media", "upload")
	if err != nil {
		return "", &Error{Op: "upload media", Err: err}
	}
	if _, err := part.Write(data); err != nil {
		return "", &Error{Op: "upload media", Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &Error{Op: "upload media", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, buf)
	if err != nil {
		return "", &Error{Op: "upload media", Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var out uploadResponse
	if err := c.do(req, "upload media", &out); err != nil {
		return "", err
	}
	if out.MediaIDString == "" {
		return "", &Error{Op: "upload media", Err: errors.New("response has no media id")}
	}
	return out.MediaIDString, nil
}

func (c *TwitterClient) do(req *http.Request, op string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("execute request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: errors.New(remoteMessage(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// remoteMessage pulls the human readable part out of an API error body.
func remoteMessage(body []byte) string {
	var v struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &v) == nil {
		switch {
		case v.Detail != "":
			return v.Detail
		case v.Title != "":
			return v.Title
		case len(v.Errors) > 0 && v.Errors[0].Message != "":
			return v.Errors[0].Message
		}
	}
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	return "empty response body"
}

func mediaCategory(mimeType string) string {
	if strings.EqualFold(mimeType, "image/gif") {
		return "tweet_gif"
	}
	return "tweet_image"
}

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignedClient(t *testing.T, srv *httptest.Server) *TwitterClient {
	t.Helper()
	c, err := NewTwitterClient(TwitterConfig{
		APIBaseURL:        srv.URL,
		UploadURL:         srv.URL + "/1.1/media/upload.json",
		APIKey:            "consumer-key",
		APISecret:         "consumer-secret",
		AccessToken:       "access-token",
		AccessTokenSecret: "access-secret",
	})
	require.NoError(t, err)
	return c
}

func TestPublishSignsAndPostsTweet(t *testing.T) {
	var got tweetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		auth := r.Header.Get("Authorization")
		assert.True(t, strings.HasPrefix(auth, "OAuth "), "authorization: %q", auth)
		assert.Contains(t, auth, `oauth_consumer_key="consumer-key"`)
		assert.Contains(t, auth, `oauth_token="access-token"`)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1790000000000000000","text":"hello #go"}}`))
	}))
	defer srv.Close()

	c := newSignedClient(t, srv)
	receipt, err := c.Publish(context.Background(), Message{Content: "hello #go", MediaIDs: []string{"1", "2", "3", "4", "5"}})
	require.NoError(t, err)
	assert.Equal(t, "1790000000000000000", receipt.ID)
	assert.Equal(t, "hello #go", got.Text)
	require.NotNil(t, got.Media)
	assert.Equal(t, []string{"1", "2", "3", "4"}, got.Media.MediaIDs)
}

func TestPublishWithoutMediaOmitsField(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		_, _ = w.Write([]byte(`{"data":{"id":"42","text":"plain"}}`))
	}))
	defer srv.Close()

	_, err := newSignedClient(t, srv).Publish(context.Background(), Message{Content: "plain"})
	require.NoError(t, err)
	_, hasMedia := raw["media"]
	assert.False(t, hasMedia)
}

func TestPublishRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"title":"Too Many Requests","detail":"Too Many Requests","status":429}`))
	}))
	defer srv.Close()

	_, err := newSignedClient(t, srv).Publish(context.Background(), Message{Content: "hello"})
	require.Error(t, err)
	var pubErr *Error
	require.True(t, errors.As(err, &pubErr))
	assert.True(t, pubErr.RateLimited())
	assert.Equal(t, "post tweet: status 429: Too Many Requests", err.Error())
}

func TestPublishMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	_, err := newSignedClient(t, srv).Publish(context.Background(), Message{Content: "hello"})
	var pubErr *Error
	require.True(t, errors.As(err, &pubErr))
	assert.Equal(t, 0, pubErr.StatusCode)
}

func TestUploadMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1.1/media/upload.json", r.URL.Path)
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		if f, _, err := r.FormFile("media"); assert.NoError(t, err) {
			data, _ := io.ReadAll(f)
			assert.Equal(t, []byte("png-bytes"), data)
		}
		_, _ = w.Write([]byte(`{"media_id":710511363345354753,"media_id_string":"710511363345354753"}`))
	}))
	defer srv.Close()

	id, err := newSignedClient(t, srv).UploadMedia(context.Background(), []byte("png-bytes"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "710511363345354753", id)
}

func TestStubMode(t *testing.T) {
	c, err := NewTwitterClient(TwitterConfig{Stub: true})
	require.NoError(t, err)

	receipt, err := c.Publish(context.Background(), Message{Content: "hi"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(receipt.ID, "stub-"))

	id, err := c.UploadMedia(context.Background(), []byte{1}, "image/png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "stub-media-"))
}

func TestNewTwitterClientRequiresCredentials(t *testing.T) {
	_, err := NewTwitterClient(TwitterConfig{APIKey: "k"})
	assert.Error(t, err)
}

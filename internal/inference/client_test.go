package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lyralab/quantumd/internal/config"
	"github.com/lyralab/quantumd/internal/fault"
)

func newTestClient(url string) *Client {
	return New("particle", config.EndpointConfig{URL: url, Model: "test-model"})
}

func TestChat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Hi!"}}]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	res, err := c.Chat(context.Background(), time.Now().Add(5*time.Second), "sys", "hello", GenParams{Temperature: 0.8, TopP: 0.95, MaxTokens: 1500})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if res.Text != "Hi!" {
		t.Errorf("text = %q, want Hi!", res.Text)
	}
	if res.Latency <= 0 {
		t.Errorf("latency not recorded")
	}
}

func TestChat_Non2xxIsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), time.Now().Add(5*time.Second), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Protocol {
		t.Errorf("kind = %v, want protocol", kind)
	}
}

func TestChat_MalformedBodyIsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), time.Now().Add(5*time.Second), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Protocol {
		t.Errorf("kind = %v, want protocol", kind)
	}
}

func TestChat_ConnectionRefusedIsUnavailable(t *testing.T) {
	// Reserve a port, then close the listener so nothing is there.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(url)
	_, err := c.Chat(context.Background(), time.Now().Add(5*time.Second), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Unavailable {
		t.Errorf("kind = %v, want unavailable", kind)
	}
}

func TestChat_PastDeadlineFailsImmediately(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), time.Now().Add(-time.Second), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Timeout {
		t.Errorf("kind = %v, want timeout", kind)
	}
	if called {
		t.Errorf("request went out despite expired deadline")
	}
}

func TestChat_SlowBackendIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Chat(context.Background(), time.Now().Add(50*time.Millisecond), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Timeout {
		t.Errorf("kind = %v, want timeout", kind)
	}
}

func TestChat_CancelledMidFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	c := newTestClient(srv.URL)
	_, err := c.Chat(ctx, time.Now().Add(5*time.Second), "sys", "hello", GenParams{})
	if kind := fault.KindOf(err); kind != fault.Cancelled {
		t.Errorf("kind = %v, want cancelled", kind)
	}
}

func TestGenerate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"context analysis"}`))
	}))
	defer srv.Close()

	c := New("wave", config.EndpointConfig{URL: srv.URL, Model: "qwen2.5:7b"})
	res, err := c.Generate(context.Background(), time.Now().Add(5*time.Second), "prompt", GenParams{Temperature: 0.7, TopP: 0.9})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Text != "context analysis" {
		t.Errorf("text = %q", res.Text)
	}
}

func TestEmbed_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}]}`))
	}))
	defer srv.Close()

	c := New("embedding", config.EndpointConfig{URL: srv.URL, Model: "nomic-embed-text"})
	res, err := c.Embed(context.Background(), time.Now().Add(5*time.Second), "some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(res.Vector) != 3 {
		t.Errorf("vector length = %d, want 3", len(res.Vector))
	}
}

func TestEmbed_EmptyVectorIsProtocol(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := New("embedding", config.EndpointConfig{URL: srv.URL})
	_, err := c.Embed(context.Background(), time.Now().Add(5*time.Second), "some text")
	if kind := fault.KindOf(err); kind != fault.Protocol {
		t.Errorf("kind = %v, want protocol", kind)
	}
}

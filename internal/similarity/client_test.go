package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func scorerServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestTextSimilarity_Success(t *testing.T) {
	var gotBody map[string]string
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]float64{"similarity": 0.83})
	})

	c := NewClient(srv.URL, srv.URL, time.Second, 0, 1)
	score, err := c.TextSimilarity(context.Background(), "desc a", "desc b")
	if err != nil {
		t.Fatalf("TextSimilarity: %v", err)
	}
	if score != 0.83 {
		t.Fatalf("score = %v, want 0.83", score)
	}
	if gotBody["text_a"] != "desc a" || gotBody["text_b"] != "desc b" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestTextSimilarity_MissingFieldIsError(t *testing.T) {
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	c := NewClient(srv.URL, srv.URL, time.Second, 0, 1)
	if _, err := c.TextSimilarity(context.Background(), "a", "b"); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("err = %v, want ErrBadResponse", err)
	}
}

func TestTextSimilarity_HTTPErrorStatus(t *testing.T) {
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	})

	c := NewClient(srv.URL, srv.URL, time.Second, 0, 1)
	if _, err := c.TextSimilarity(context.Background(), "a", "b"); !errors.Is(err, ErrBadResponse) {
		t.Fatalf("err = %v, want ErrBadResponse", err)
	}
}

func TestImageSimilarity_MissingFieldDefaultsToZero(t *testing.T) {
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	c := NewClient(srv.URL, srv.URL, time.Second, 0, 1)
	score, err := c.ImageSimilarity(context.Background(), "img-a", "img-b")
	if err != nil {
		t.Fatalf("ImageSimilarity: %v", err)
	}
	if score != 0 {
		t.Fatalf("score = %v, want 0 fallback", score)
	}
}

func TestImageSimilarity_Success(t *testing.T) {
	var gotBody map[string]string
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]float64{"similarity": 0.91})
	})

	c := NewClient(srv.URL, srv.URL, time.Second, 0, 1)
	score, err := c.ImageSimilarity(context.Background(), "img-a", "img-b")
	if err != nil {
		t.Fatalf("ImageSimilarity: %v", err)
	}
	if score != 0.91 {
		t.Fatalf("score = %v, want 0.91", score)
	}
	if gotBody["image_ref_a"] != "img-a" || gotBody["image_ref_b"] != "img-b" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestNewClient_ZeroBurstStillScores(t *testing.T) {
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"similarity": 0.7})
	})

	// burst 0 is clamped to 1; a zero-burst limiter would fail every Wait
	// and turn all scorer calls into errors.
	c := NewClient(srv.URL, srv.URL, time.Second, 50, 0)
	score, err := c.TextSimilarity(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("TextSimilarity with clamped burst: %v", err)
	}
	if score != 0.7 {
		t.Fatalf("score = %v, want 0.7", score)
	}
}

func TestClient_RateLimiterIsApplied(t *testing.T) {
	srv := scorerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]float64{"similarity": 0.5})
	})

	// burst 1 at 100 rps: the second call must wait roughly 10ms.
	c := NewClient(srv.URL, srv.URL, time.Second, 100, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := c.TextSimilarity(ctx, "a", "b"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("expected rate limiting delay, elapsed %v", elapsed)
	}
}

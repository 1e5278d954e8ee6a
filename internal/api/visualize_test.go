package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClient_EfficientFrontier(t *testing.T) {
	var got []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/visualization/efficient-frontier" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		io.WriteString(w, `{"status":"success","data":{"image_url":"static/efficient_frontier_1.png"}}`)
	})

	ref, err := NewClient(srv.URL).EfficientFrontier(context.Background(), []string{"A", "B"})
	if err != nil {
		t.Fatalf("EfficientFrontier() error = %v", err)
	}
	if diff := cmp.Diff([]string{"A", "B"}, got); diff != "" {
		t.Errorf("body mismatch (-want +got):\n%s", diff)
	}
	if ref.ImageURL != "static/efficient_frontier_1.png" {
		t.Errorf("ImageURL = %q", ref.ImageURL)
	}
}

func TestClient_PortfolioTreeAndFetch(t *testing.T) {
	var body string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/visualization/portfolio-tree":
			b, _ := io.ReadAll(r.Body)
			body = strings.TrimSpace(string(b))
			io.WriteString(w, `{"status":"success","data":{"image_url":"/static/portfolio_tree_1.png"}}`)
		case "/static/portfolio_tree_1.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("\x89PNG"))
		default:
			http.NotFound(w, r)
		}
	})
	c := NewClient(srv.URL)

	ref, err := c.PortfolioTree(context.Background(), Weights{{Key: "B", Value: 0.4}, {Key: "A", Value: 0.6}})
	if err != nil {
		t.Fatalf("PortfolioTree() error = %v", err)
	}
	if body != `{"B":0.4,"A":0.6}` {
		t.Errorf("body = %s", body)
	}
	img, err := c.FetchImage(context.Background(), ref)
	if err != nil {
		t.Fatalf("FetchImage() error = %v", err)
	}
	if string(img) != "\x89PNG" {
		t.Errorf("image = %q", img)
	}
}

func TestClient_FetchImage_Rejects(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/page" {
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, "<html>")
			return
		}
		http.NotFound(w, r)
	})
	c := NewClient(srv.URL)
	for _, u := range []string{"/page", "/missing.png", srv.URL + "/missing.png"} {
		if _, err := c.FetchImage(context.Background(), &ImageRef{ImageURL: u}); err == nil {
			t.Errorf("FetchImage(%s) error = nil, want error", u)
		}
	}
}

func TestClient_Visualization_EmptyInput(t *testing.T) {
	c := NewClient("http://127.0.0.1:0")
	if _, err := c.EfficientFrontier(context.Background(), nil); err == nil {
		t.Error("EfficientFrontier(nil) error = nil")
	}
	if _, err := c.PortfolioTree(context.Background(), nil); err == nil {
		t.Error("PortfolioTree(nil) error = nil")
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/stash/internal/shared"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

type failingBody struct{}

func (failingBody) Read(p []byte) (int, error) { return 0, errors.New("read failed") }
func (failingBody) Close() error               { return nil }

func TestAPIService(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		t.Run("With Custom BaseURL and Client", func(t *testing.T) {
			customClient := &http.Client{}
			srv := NewAPIService("http://example.com/", customClient)

			if srv.baseURL != "http://example.com" {
				t.Errorf("expected trailing slash trimmed, got %s", srv.baseURL)
			}
			if srv.httpClient != customClient {
				t.Error("expected custom client to be used")
			}
		})

		t.Run("With Empty BaseURL", func(t *testing.T) {
			srv := NewAPIService("", nil)

			if srv.baseURL != "http://localhost:8080" {
				t.Errorf("expected default baseURL 'http://localhost:8080', got %s", srv.baseURL)
			}
			if srv.httpClient != http.DefaultClient {
				t.Error("expected http.DefaultClient to be used")
			}
		})
	})

	t.Run("Get", func(t *testing.T) {
		t.Run("Successful Request With JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET method, got %s", r.Method)
				}
				if r.URL.Path != "/test" {
					t.Errorf("expected path '/test', got %s", r.URL.Path)
				}
				w.Header().Set("Content-Type", "application/json")
				json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/test")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if !resp.OK() {
				t.Errorf("expected 2xx, got %d", resp.StatusCode)
			}
			if !resp.IsJSON {
				t.Error("expected response to be detected as JSON")
			}
			data, ok := resp.JSONData.(map[string]any)
			if !ok || data["status"] != "success" {
				t.Errorf("expected status 'success', got %v", resp.JSONData)
			}
		})

		t.Run("Non JSON Response", func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTeapot)
				io.WriteString(w, "short and stout")
			}))
			defer server.Close()

			resp, err := NewAPIService(server.URL, nil).Get(context.Background(), "/")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if resp.IsJSON {
				t.Error("expected plain text body")
			}
			if resp.OK() {
				t.Error("expected non-2xx status")
			}
			if string(resp.Body) != "short and stout" {
				t.Errorf("expected raw body, got %q", resp.Body)
			}
		})

		t.Run("Connection Error", func(t *testing.T) {
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection failed")
			})}

			if _, err := NewAPIService("http://example.com", client).Get(context.Background(), "/"); err == nil {
				t.Error("expected error for connection failure")
			}
		})

		t.Run("Body Read Error", func(t *testing.T) {
			client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
				return &http.Response{StatusCode: http.StatusOK, Body: failingBody{}, Header: http.Header{}}, nil
			})}

			if _, err := NewAPIService("http://example.com", client).Get(context.Background(), "/"); err == nil {
				t.Error("expected error for body read failure")
			}
		})
	})

	t.Run("PostJSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST method, got %s", r.Method)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected JSON content type, got %s", ct)
			}
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			json.NewEncoder(w).Encode(map[string]string{"echo": body["name"]})
		}))
		defer server.Close()

		resp, err := NewAPIService(server.URL, nil).PostJSON(context.Background(), "/echo", map[string]string{"name": "stash"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		var out map[string]string
		if err := resp.Decode(&out); err != nil {
			t.Fatalf("expected decodable body, got %v", err)
		}
		if out["echo"] != "stash" {
			t.Errorf("expected echo 'stash', got %q", out["echo"])
		}
	})

	t.Run("Delete", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete {
				t.Errorf("expected DELETE method, got %s", r.Method)
			}
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		resp, err := NewAPIService(server.URL, nil).Delete(context.Background(), "/history/1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("expected 204, got %d", resp.StatusCode)
		}
	})
}

func TestRemoteClient(t *testing.T) {
	newServer := func(t *testing.T, handler http.HandlerFunc) *RemoteClient {
		t.Helper()
		server := httptest.NewServer(handler)
		t.Cleanup(server.Close)
		return NewRemoteClient(server.URL, nil)
	}

	t.Run("Health", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(HealthResponse{Status: "online", Service: "stash"})
		})

		health, err := c.Health(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if health.Status != "online" {
			t.Errorf("expected online, got %s", health.Status)
		}
	})

	t.Run("Recognize", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				var req RecognizeRequest
				json.NewDecoder(r.Body).Decode(&req)
				if req.URL != "https://youtu.be/abc" {
					t.Errorf("expected url in body, got %q", req.URL)
				}
				json.NewEncoder(w).Encode(RecognizeResponse{
					Success:    true,
					Track:      "Song",
					Artist:     "Band",
					SpotifyURI: "spotify:track:xyz",
					Confidence: 0.99,
				})
			})

			m, err := c.Recognize(context.Background(), "https://youtu.be/abc")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if m.ID != "xyz" {
				t.Errorf("expected track id from URI, got %q", m.ID)
			}
			if m.Confidence != 0.99 {
				t.Errorf("expected confidence 0.99, got %v", m.Confidence)
			}
		})

		t.Run("Not Found", func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(RecognizeResponse{Error: "Song found by AI but not in Spotify"})
			})

			_, err := c.Recognize(context.Background(), "https://youtu.be/abc")
			if !errors.Is(err, shared.ErrNotOnSpotify) {
				t.Errorf("expected ErrNotOnSpotify, got %v", err)
			}
		})

		t.Run("Server Error Detail", func(t *testing.T) {
			c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(ErrorResponse{Detail: "Download failed"})
			})

			_, err := c.Recognize(context.Background(), "https://youtu.be/abc")
			if !errors.Is(err, shared.ErrAPIRequest) {
				t.Fatalf("expected ErrAPIRequest, got %v", err)
			}
			if want := "Download failed"; !strings.Contains(err.Error(), want) {
				t.Errorf("expected %q in error, got %v", want, err)
			}
		})
	})

	t.Run("SaveTrack", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req SaveTrackRequest
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(SaveTrackResponse{Success: true, PlaylistID: req.PlaylistID, PlaylistName: "Stash: Pop", Genre: "Pop"})
		})

		resp, err := c.SaveTrack(context.Background(), SaveTrackRequest{Token: "t", TrackID: "x", PlaylistID: "smart_sort"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if resp.PlaylistID != "smart_sort" || resp.Genre != "Pop" {
			t.Errorf("unexpected response %+v", resp)
		}
	})

	t.Run("AnalyzeVibe Sends Empty List", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			raw, _ := io.ReadAll(r.Body)
			if string(raw) != `{"songs":[]}` {
				t.Errorf("expected empty songs array, got %s", raw)
			}
			json.NewEncoder(w).Encode(VibeResponse{Vibe: EmptyVibe})
		})

		vibe, err := c.AnalyzeVibe(context.Background(), nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if vibe != EmptyVibe {
			t.Errorf("expected empty vibe, got %q", vibe)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		c := NewRemoteClient("http://127.0.0.1:1", nil)

		if _, err := c.Health(context.Background()); !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}

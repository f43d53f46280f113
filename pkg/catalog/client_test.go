package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Options{BaseURL: srv.URL, AccessToken: "tok", Timeout: 2 * time.Second})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestListProductMedia(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/products/p-1/media", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"media": []Media{{ID: "m1", URL: "https://cdn/m1.jpg"}, {ID: "m2", URL: "https://cdn/m2.jpg", Position: 1}},
		})
	})

	media, err := c.ListProductMedia(context.Background(), "p-1")
	require.NoError(t, err)
	require.Len(t, media, 2)
	require.Equal(t, "m2", media[1].ID)
}

func TestSetGalleryMediaSendsOrderedIDs(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var body struct {
			MediaIDs []string `json:"media_ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, []string{"m3", "m1"}, body.MediaIDs)
		writeJSON(w, http.StatusOK, GalleryResult{
			ProductID: "p-1",
			Items:     []ItemResult{{MediaID: "m3", OK: true}, {MediaID: "m1", OK: false, Error: "gone"}},
		})
	})

	res, err := c.SetGalleryMedia(context.Background(), "p-1", []string{"m3", "m1"})
	require.NoError(t, err)
	require.Len(t, res.Failed(), 1)
	require.Equal(t, "m1", res.Failed()[0].MediaID)
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"code": "UNAVAILABLE", "message": "busy"})
	})

	_, err := c.SetVariantHero(context.Background(), "p-1", "v-1", "m1")
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrTransient))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestClientErrorIsPermanent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "NOT_FOUND", "message": "no such variant"})
	})

	_, err := c.SetVariantHero(context.Background(), "p-1", "v-404", "m1")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrTransient))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "no such variant", apiErr.Message)
}

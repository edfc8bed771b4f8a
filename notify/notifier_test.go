// notify/notifier_test.go
package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMessageVariantsRender(t *testing.T) {
	if got := PlainMessage("all done").Render(); got != "all done" {
		t.Errorf("PlainMessage = %q", got)
	}
	if got := (MessageList{"a.csv", "b.csv"}).Render(); got != "a.csv\nb.csv" {
		t.Errorf("MessageList = %q", got)
	}

	got := CategorizedMessages{
		"failed":     {"x.grib2.bz2"},
		"downloaded": {"a.grib2.bz2", "b.grib2.bz2"},
	}.Render()
	// Categories are sorted, so "downloaded" renders first.
	want := "downloaded (2):\na.grib2.bz2\nb.grib2.bz2\n\nfailed (1):\nx.grib2.bz2"
	if got != want {
		t.Errorf("CategorizedMessages = %q, want %q", got, want)
	}
}

func TestSendPostsGotifyPayload(t *testing.T) {
	var gotPath, gotKey string
	var gotPayload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Gotify-Key")
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Notifier{ServerURL: srv.URL, Token: "secret-token", Priority: 5, Client: srv.Client()}
	n.Send("Download finished", MessageList{"a.csv", "b.csv"})

	if gotPath != "/message" {
		t.Errorf("posted to %q, want /message", gotPath)
	}
	if gotKey != "secret-token" {
		t.Errorf("token header = %q", gotKey)
	}
	if gotPayload["title"] != "Download finished" {
		t.Errorf("title = %v", gotPayload["title"])
	}
	if gotPayload["message"] != "a.csv\nb.csv" {
		t.Errorf("message = %v", gotPayload["message"])
	}
	if gotPayload["priority"] != float64(5) {
		t.Errorf("priority = %v", gotPayload["priority"])
	}
}

func TestSendSwallowsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := &Notifier{ServerURL: srv.URL, Token: "bad", Client: srv.Client()}
	// Must not panic or propagate anything.
	n.Send("title", PlainMessage("body"))

	var unset *Notifier
	unset.Send("title", PlainMessage("body"))
}

func TestNewNotifierBuildsServerURL(t *testing.T) {
	n := NewNotifier("gotify.example.org/", true, "tok", 4)
	if n.ServerURL != "https://gotify.example.org" {
		t.Errorf("ServerURL = %q", n.ServerURL)
	}
	if !strings.HasPrefix(NewNotifier("host:8080", false, "", 0).ServerURL, "http://") {
		t.Error("insecure notifier must use http")
	}
}

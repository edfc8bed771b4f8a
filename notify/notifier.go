// notify/notifier.go
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Message is a renderable notification body. The variants cover the shapes
// the pipeline produces: a plain string, a list of file names, and
// per-category lists such as downloaded/failed/corrupted.
type Message interface {
	Render() string
}

// PlainMessage is a literal notification body.
type PlainMessage string

func (m PlainMessage) Render() string { return string(m) }

// MessageList renders one item per line.
type MessageList []string

func (m MessageList) Render() string { return strings.Join(m, "\n") }

// CategorizedMessages renders each category as a header followed by its
// items. Categories render in sorted order so messages are stable.
type CategorizedMessages map[string][]string

func (m CategorizedMessages) Render() string {
	categories := make([]string, 0, len(m))
	for category := range m {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	for i, category := range categories {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(category)
		b.WriteString(" (")
		b.WriteString(fmt.Sprint(len(m[category])))
		b.WriteString("):")
		for _, item := range m[category] {
			b.WriteString("\n")
			b.WriteString(item)
		}
	}
	return b.String()
}

// Notifier pushes messages to a Gotify server. Delivery is best effort: a
// failed push is logged, never returned, so a broken notification channel
// cannot abort a pipeline run.
type Notifier struct {
	ServerURL string
	Token     string
	Priority  int
	Client    *http.Client
}

// NewNotifier builds a Notifier for the given server. secure selects https.
func NewNotifier(server string, secure bool, token string, priority int) *Notifier {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return &Notifier{
		ServerURL: fmt.Sprintf("%s://%s", scheme, strings.TrimSuffix(server, "/")),
		Token:     token,
		Priority:  priority,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

type gotifyPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

// Send pushes one message. Errors are swallowed after logging.
func (n *Notifier) Send(title string, message Message) {
	if n == nil || n.ServerURL == "" {
		return
	}
	body, err := json.Marshal(gotifyPayload{
		Title:    title,
		Message:  message.Render(),
		Priority: n.Priority,
	})
	if err != nil {
		log.Printf("Notifier: failed to encode message: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.ServerURL+"/message", bytes.NewReader(body))
	if err != nil {
		log.Printf("Notifier: failed to build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Gotify-Key", n.Token)

	client := n.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("Notifier: failed to send notification: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("Notifier: server returned status %d.", resp.StatusCode)
		return
	}
	log.Printf("Notifier: sent %q.", title)
}

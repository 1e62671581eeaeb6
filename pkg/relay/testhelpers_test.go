// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"
)

// endpointCall records which API endpoints were hit during a test.
type endpointCall struct {
	Method string
	Path   string
	Body   string
}

// fakeMM is a test helper that wraps an httptest.Server simulating the
// Mattermost API. It records calls and provides canned responses.
type fakeMM struct {
	Server *httptest.Server

	mu    sync.Mutex
	calls []endpointCall
	sent  []*model.Post

	// Users maps user ID to model.User for the /users/ids endpoint.
	Users map[string]*model.User
	// Channels maps channel ID to model.Channel.
	Channels map[string]*model.Channel
	// Teams maps team ID to model.Team.
	Teams map[string]*model.Team
	// Posts maps post ID to model.Post.
	Posts map[string]*model.Post
	// FailEndpoints causes paths containing the key to return 500.
	FailEndpoints map[string]bool
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		Channels:      make(map[string]*model.Channel),
		Teams:         make(map[string]*model.Team),
		Posts:         make(map[string]*model.Post),
		FailEndpoints: make(map[string]bool),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handler))
	return f
}

func (f *fakeMM) Close() {
	f.Server.Close()
}

func (f *fakeMM) record(method, path, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, endpointCall{Method: method, Path: path, Body: body})
}

func (f *fakeMM) Calls() []endpointCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]endpointCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeMM) CallCount(pathSubstring string) int {
	count := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.Path, pathSubstring) {
			count++
		}
	}
	return count
}

// SentPosts returns every post created through POST /posts, in order.
func (f *fakeMM) SentPosts() []*model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]*model.Post, len(f.sent))
	copy(cp, f.sent)
	return cp
}

// dmChannelID is the deterministic id the fake assigns to the direct
// channel of a user pair.
func dmChannelID(a, b string) string {
	return "dm:" + directChannelKey(a, b)
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	for substring, fail := range f.FailEndpoints {
		if fail && strings.Contains(r.URL.Path, substring) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": "fake error"})
			return
		}
	}

	path := r.URL.Path

	switch {
	// POST /api/v4/posts
	case r.Method == "POST" && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		f.mu.Lock()
		post.Id = fmt.Sprintf("sent-%d", len(f.sent)+1)
		f.sent = append(f.sent, &post)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(&post)

	// POST /api/v4/users/ids
	case r.Method == "POST" && path == "/api/v4/users/ids":
		var ids []string
		_ = json.Unmarshal(body, &ids)
		users := []*model.User{}
		for _, id := range ids {
			if u, ok := f.Users[id]; ok {
				users = append(users, u)
			}
		}
		_ = json.NewEncoder(w).Encode(users)

	// POST /api/v4/channels/direct
	case r.Method == "POST" && path == "/api/v4/channels/direct":
		var ids []string
		_ = json.Unmarshal(body, &ids)
		sort.Strings(ids)
		_ = json.NewEncoder(w).Encode(&model.Channel{
			Id:   "dm:" + strings.Join(ids, ","),
			Type: model.ChannelTypeDirect,
		})

	// GET /api/v4/channels/{channel_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/channels/"):
		chID := path[len("/api/v4/channels/"):]
		if ch, ok := f.Channels[chID]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "channel not found"})

	// GET /api/v4/teams/{team_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/teams/"):
		teamID := path[len("/api/v4/teams/"):]
		if team, ok := f.Teams[teamID]; ok {
			_ = json.NewEncoder(w).Encode(team)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "team not found"})

	// GET /api/v4/posts/{post_id}
	case r.Method == "GET" && strings.HasPrefix(path, "/api/v4/posts/"):
		postID := path[len("/api/v4/posts/"):]
		if post, ok := f.Posts[postID]; ok {
			_ = json.NewEncoder(w).Encode(post)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "post not found"})

	default:
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "not found: " + path})
	}
}

// memoryRegistry is an in-memory registry implementation for processor
// tests. Calls counts every method invocation so tests can assert the
// registry was never touched; a non-nil err is returned from every method.
type memoryRegistry struct {
	watches []*Watch
	calls   int
	err     error
}

var _ registry = (*memoryRegistry)(nil)

func (m *memoryRegistry) GetThreadWatch(_ context.Context, postID string) (*Watch, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	for _, w := range m.watches {
		if w.PostID == postID && w.Type == WatchTypeThread {
			return w, nil
		}
	}
	return nil, nil
}

func (m *memoryRegistry) GetDMWatches(_ context.Context, postID string) ([]*Watch, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var watches []*Watch
	for _, w := range m.watches {
		if w.PostID == postID && w.Type == WatchTypeDM {
			watches = append(watches, w)
		}
	}
	return watches, nil
}

func (m *memoryRegistry) Exists(_ context.Context, userID, postID string, typ WatchType) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	for _, w := range m.watches {
		if w.UserID == userID && w.PostID == postID && w.Type == typ {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRegistry) ThreadWatchExists(_ context.Context, postID string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	for _, w := range m.watches {
		if w.PostID == postID && w.Type == WatchTypeThread {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRegistry) Insert(_ context.Context, watch *Watch) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.watches = append(m.watches, watch)
	return nil
}

func (m *memoryRegistry) Delete(_ context.Context, userID, postID string, typ WatchType) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	kept := m.watches[:0]
	for _, w := range m.watches {
		if w.UserID == userID && w.PostID == postID && w.Type == typ {
			continue
		}
		kept = append(kept, w)
	}
	m.watches = kept
	return nil
}

func (m *memoryRegistry) GetChannelForPost(_ context.Context, postID string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	for _, w := range m.watches {
		if w.PostID == postID {
			return w.ChannelID, nil
		}
	}
	return "", nil
}

// testEnv bundles a processor wired to a fake API server and an in-memory
// registry, seeded with a reactor, a channel, a team and a root post.
type testEnv struct {
	fake *fakeMM
	reg  *memoryRegistry
	proc *Processor
	cfg  *Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeMM()
	t.Cleanup(fake.Close)

	fake.Users["reactor"] = &model.User{Id: "reactor", FirstName: "Jane", LastName: "Doe"}
	fake.Channels["ch1"] = &model.Channel{Id: "ch1", TeamId: "team1"}
	fake.Teams["team1"] = &model.Team{Id: "team1", Name: "myteam"}
	fake.Posts["p1"] = &model.Post{Id: "p1", ChannelId: "ch1"}

	cfg := &Config{ServerURL: fake.Server.URL, BotToken: "test-token"}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}

	reg := &memoryRegistry{}
	api := NewClient(fake.Server.URL, "test-token", zerolog.Nop())
	proc := NewProcessor(api, reg, cfg, zerolog.Nop())
	proc.SetBotUser("bot-user-id")

	return &testEnv{fake: fake, reg: reg, proc: proc, cfg: cfg}
}

// helloEvent builds a hello frame carrying the bot's user id.
func helloEvent(botUserID string) *model.WebSocketEvent {
	return model.NewWebSocketEvent(model.WebsocketEventHello, "", "", botUserID, nil, "")
}

// reactionEvent builds a reaction_added or reaction_removed frame the way
// the server encodes it: the reaction as a JSON string in the event data,
// the channel in the broadcast.
func reactionEvent(t *testing.T, eventType model.WebsocketEventType, userID, postID, channelID, emoji string) *model.WebSocketEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{
		"user_id":    userID,
		"post_id":    postID,
		"emoji_name": emoji,
	})
	if err != nil {
		t.Fatalf("marshal reaction: %v", err)
	}
	evt := model.NewWebSocketEvent(eventType, "", channelID, "", nil, "")
	return evt.SetData(map[string]any{"reaction": string(payload)})
}

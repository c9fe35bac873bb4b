package slack

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/slack-go/slack"
)

// fakeSlack records API calls instead of talking to Slack
type fakeSlack struct {
	mu       sync.Mutex
	pages    map[string][][]slack.Channel // channel type -> pages
	listErr  map[string]error
	listCall int
	postErr  error
	posted   []string // channel IDs
}

func (f *fakeSlack) GetConversations(params *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCall++
	kind := params.Types[0]
	if err := f.listErr[kind]; err != nil {
		return nil, "", err
	}
	pages := f.pages[kind]
	idx := 0
	if params.Cursor != "" {
		idx = int(params.Cursor[0] - '0')
	}
	if idx >= len(pages) {
		return nil, "", nil
	}
	next := ""
	if idx+1 < len(pages) {
		next = string(rune('0' + idx + 1))
	}
	return pages[idx], next, nil
}

func (f *fakeSlack) PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return "", "", f.postErr
	}
	f.posted = append(f.posted, channelID)
	return channelID, "1700000000.000100", nil
}

func channel(id, name string) slack.Channel {
	var c slack.Channel
	c.ID = id
	c.Name = name
	return c
}

func TestIsChannelID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"C01234567890", true},
		{"C01234567", true},
		{"C0ABC123DEF", true},
		{"C012345678901234", false},
		{"", false},
		{"C1234567", false},
		{"D01234567890", false},
		{"C01234abcdef", false},
		{"#alerts", false},
		{"alerts", false},
		{"C0123-4567890", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := isChannelID(tt.input); got != tt.want {
				t.Errorf("isChannelID(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestChannelResolver_ChannelIDSkipsAPI(t *testing.T) {
	api := &fakeSlack{}
	resolver := NewChannelResolver(api)

	got, err := resolver.ResolveChannel("C01234567890")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "C01234567890" {
		t.Errorf("got %q", got)
	}
	if api.listCall != 0 {
		t.Errorf("expected no API calls, got %d", api.listCall)
	}
}

func TestChannelResolver_EmptyInput(t *testing.T) {
	if _, err := NewChannelResolver(&fakeSlack{}).ResolveChannel("  "); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestChannelResolver_LooksUpAndCaches(t *testing.T) {
	api := &fakeSlack{pages: map[string][][]slack.Channel{
		"public_channel": {
			{channel("C00000000001", "general")},
			{channel("C00000000002", "ai-incidents")},
		},
	}}
	resolver := NewChannelResolver(api)

	got, err := resolver.ResolveChannel("#ai-incidents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "C00000000002" {
		t.Errorf("got %q, want C00000000002", got)
	}
	calls := api.listCall

	if _, err := resolver.ResolveChannel("ai-incidents"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.listCall != calls {
		t.Error("second lookup should be served from cache")
	}
}

func TestChannelResolver_PrivateChannel(t *testing.T) {
	api := &fakeSlack{pages: map[string][][]slack.Channel{
		"private_channel": {{channel("C00000000009", "compliance")}},
	}}
	got, err := NewChannelResolver(api).ResolveChannel("compliance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "C00000000009" {
		t.Errorf("got %q", got)
	}
}

func TestChannelResolver_NotFound(t *testing.T) {
	api := &fakeSlack{listErr: map[string]error{"private_channel": errors.New("missing scope")}}
	if _, err := NewChannelResolver(api).ResolveChannel("nowhere"); err == nil {
		t.Error("expected not found error")
	}

	api = &fakeSlack{listErr: map[string]error{"public_channel": errors.New("invalid_auth")}}
	if _, err := NewChannelResolver(api).ResolveChannel("nowhere"); err == nil {
		t.Error("expected list error")
	}
}

func TestChannelResolver_ConcurrentCacheRead(t *testing.T) {
	resolver := NewChannelResolver(&fakeSlack{})
	resolver.cache["alerts"] = "C01234567890"

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, err := resolver.ResolveChannel("#alerts"); err != nil || id != "C01234567890" {
				t.Errorf("unexpected result %q, %v", id, err)
			}
		}()
	}
	wg.Wait()
}

package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"contestbot/internal/gate"
	"contestbot/internal/model"
)

const testToken = "123:secret"

const getMeResult = `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Contest","username":"contest_bot"}}`

type call struct {
	Method string
	Form   url.Values
}

// fakeAPI answers Bot API methods from a per-method table of raw JSON
// responses and records every call except getMe.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	responses map[string]string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}
	_ = r.ParseForm()

	f.mu.Lock()
	resp, ok := f.responses[method]
	if method != "getMe" {
		f.calls = append(f.calls, call{Method: method, Form: r.PostForm})
	}
	f.mu.Unlock()
	switch {
	case ok:
	case method == "getMe":
		resp = getMeResult
	default:
		resp = `{"ok":true,"result":true}`
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, resp)
}

func (f *fakeAPI) lastCall(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no api call made")
	}
	return f.calls[len(f.calls)-1]
}

func markupOf(t *testing.T, c call) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(c.Form.Get("reply_markup")), &m); err != nil {
		t.Fatalf("reply_markup %q: %v", c.Form.Get("reply_markup"), err)
	}
	return m
}

func newTestClient(t *testing.T, responses map[string]string) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{responses: responses}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	log := zerolog.Nop()
	c, err := NewClient(Config{Token: testToken, APIURL: srv.URL + "/", HTTPClient: srv.Client()}, &log)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, api
}

func TestNewClientRequiresToken(t *testing.T) {
	log := zerolog.Nop()
	if _, err := NewClient(Config{Token: " "}, &log); !errors.Is(err, ErrNoToken) {
		t.Fatalf("err = %v, want ErrNoToken", err)
	}
}

func TestDeliverText(t *testing.T) {
	c, api := newTestClient(t, nil)

	err := c.Deliver(context.Background(), model.OutboundMessage{
		ChatID: 42,
		Text:   "hello",
		Keyboard: &model.Keyboard{Inline: [][]model.Button{{
			{Text: "Go", Data: "start_user"},
			{Text: "Join", URL: "https://t.me/x"},
		}}},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}

	got := api.lastCall(t)
	if got.Method != "sendMessage" || got.Form.Get("chat_id") != "42" || got.Form.Get("text") != "hello" {
		t.Fatalf("call = %+v", got)
	}
	markup := markupOf(t, got)
	row := markup["inline_keyboard"].([]any)[0].([]any)
	first := row[0].(map[string]any)
	second := row[1].(map[string]any)
	if first["callback_data"] != "start_user" || second["url"] != "https://t.me/x" {
		t.Fatalf("inline keyboard = %+v", row)
	}
}

func TestDeliverPhotoWithReplyKeyboard(t *testing.T) {
	c, api := newTestClient(t, nil)

	err := c.Deliver(context.Background(), model.OutboundMessage{
		ChatID:   7,
		Text:     "caption",
		PhotoRef: "file-1",
		Keyboard: &model.Keyboard{Reply: [][]string{{"A"}, {"B"}}},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	got := api.lastCall(t)
	if got.Method != "sendPhoto" || got.Form.Get("photo") != "file-1" || got.Form.Get("caption") != "caption" {
		t.Fatalf("call = %+v", got)
	}
	markup := markupOf(t, got)
	if markup["resize_keyboard"] != true || len(markup["keyboard"].([]any)) != 2 {
		t.Fatalf("reply keyboard = %+v", markup)
	}
}

func TestDeliverWithoutKeyboardOmitsMarkup(t *testing.T) {
	c, api := newTestClient(t, nil)
	if err := c.Deliver(context.Background(), model.OutboundMessage{ChatID: 1, Text: "x"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, ok := api.lastCall(t).Form["reply_markup"]; ok {
		t.Fatal("reply_markup sent without a keyboard")
	}
}

func TestAPIErrorIsTyped(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":false,"error_code":429,"description":"Too Many Requests","parameters":{"retry_after":3}}`,
	})

	err := c.Deliver(context.Background(), model.OutboundMessage{ChatID: 1, Text: "x"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 3 || apiErr.Method != "sendMessage" {
		t.Fatalf("api error = %+v", apiErr)
	}
	if strings.Contains(err.Error(), testToken) {
		t.Fatal("error leaks the bot token")
	}
}

func TestNewClientRejectedToken(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{"getMe": `{"ok":false,"error_code":401,"description":"Unauthorized"}`}}
	srv := httptest.NewServer(api)
	defer srv.Close()
	log := zerolog.Nop()
	_, err := NewClient(Config{Token: testToken, APIURL: srv.URL, HTTPClient: srv.Client()}, &log)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 401 || apiErr.Method != "getMe" {
		t.Fatalf("err = %v, want getMe 401", err)
	}
}

func TestTransportErrorHidesToken(t *testing.T) {
	log := zerolog.Nop()
	_, err := NewClient(Config{Token: testToken, APIURL: "http://127.0.0.1:1", HTTPClient: &http.Client{Timeout: time.Second}}, &log)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), testToken) {
		t.Fatalf("error leaks the bot token: %v", err)
	}
}

func TestNonJSONResponse(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{"sendMessage": "<html>bad gateway</html>"})
	err := c.Deliver(context.Background(), model.OutboundMessage{ChatID: 1, Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "sendMessage") {
		t.Fatalf("err = %v, want sendMessage failure", err)
	}
}

func TestCancelledContextSkipsCall(t *testing.T) {
	c, api := newTestClient(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Deliver(ctx, model.OutboundMessage{ChatID: 1, Text: "x"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.calls) != 0 {
		t.Fatalf("calls = %+v, want none", api.calls)
	}
}

func TestQueryMembership(t *testing.T) {
	cases := map[string]gate.Membership{
		`{"status":"creator"}`:                     gate.Member,
		`{"status":"administrator"}`:               gate.Member,
		`{"status":"member"}`:                      gate.Member,
		`{"status":"restricted","is_member":true}`: gate.Member,
		`{"status":"restricted"}`:                  gate.NotMember,
		`{"status":"left"}`:                        gate.NotMember,
		`{"status":"kicked"}`:                      gate.NotMember,
		`{"status":"mystery"}`:                     gate.Unknown,
	}
	for member, want := range cases {
		c, api := newTestClient(t, map[string]string{
			"getChatMember": `{"ok":true,"result":` + member + `}`,
		})
		got, err := c.QueryMembership(context.Background(), "@promo", 42)
		if err != nil {
			t.Fatalf("%s: %v", member, err)
		}
		if got != want {
			t.Errorf("%s: membership = %s, want %s", member, got, want)
		}
		form := api.lastCall(t).Form
		if form.Get("chat_id") != "@promo" || form.Get("user_id") != "42" {
			t.Fatalf("request = %+v", form)
		}
	}
}

func TestQueryMembershipNumericChannel(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"getChatMember": `{"ok":true,"result":{"status":"member"}}`,
	})
	got, err := c.QueryMembership(context.Background(), "-1001234567890", 42)
	if err != nil || got != gate.Member {
		t.Fatalf("membership = %s, %v", got, err)
	}
	if form := api.lastCall(t).Form; form.Get("chat_id") != "-1001234567890" {
		t.Fatalf("request = %+v", form)
	}
}

func TestQueryMembershipErrorIsUnknown(t *testing.T) {
	c, _ := newTestClient(t, map[string]string{
		"getChatMember": `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`,
	})
	got, err := c.QueryMembership(context.Background(), "@missing", 1)
	if err == nil || got != gate.Unknown {
		t.Fatalf("membership = %s, %v; want unknown with error", got, err)
	}
}

func TestGetUpdates(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"getUpdates": `{"ok":true,"result":[{"update_id":10,"message":{"message_id":1,"from":{"id":5,"first_name":"Ann"},"chat":{"id":5,"type":"private"},"text":"hi"}}]}`,
	})

	updates, err := c.GetUpdates(context.Background(), 9, 30*time.Second)
	if err != nil {
		t.Fatalf("get updates: %v", err)
	}
	if len(updates) != 1 || updates[0].UpdateID != 10 || updates[0].Message.Text != "hi" {
		t.Fatalf("updates = %+v", updates)
	}
	form := api.lastCall(t).Form
	if form.Get("offset") != "9" || form.Get("timeout") != "30" || form.Get("allowed_updates") != `["message","callback_query"]` {
		t.Fatalf("request = %+v", form)
	}
}

func TestAnswerCallback(t *testing.T) {
	c, api := newTestClient(t, nil)
	if err := c.AnswerCallback(context.Background(), "cb-1"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	got := api.lastCall(t)
	if got.Method != "answerCallbackQuery" || got.Form.Get("callback_query_id") != "cb-1" {
		t.Fatalf("call = %+v", got)
	}
}

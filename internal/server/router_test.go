package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func doRequest(t *testing.T, env *testEnv, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	recorder := doRequest(t, env, http.MethodGet, "/healthz", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := newTestEnv(t)

	recorder := doRequest(t, env, http.MethodPost, "/posts", "", map[string]interface{}{"content": "hi"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	env := newTestEnv(t)

	request := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	request.Header.Set("X-Request-ID", "req-123")
	recorder := httptest.NewRecorder()
	env.handler.ServeHTTP(recorder, request)

	if got := recorder.Header().Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}
}

func TestComposeAndFeedRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	token := sessionToken(t, author.ID, "ada")

	recorder := doRequest(t, env, http.MethodPost, "/posts", token, map[string]interface{}{
		"content": "hello world",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var created struct {
		ID     string `json:"id"`
		Author *struct {
			Username string `json:"username"`
		} `json:"author"`
	}
	decodeBody(t, recorder, &created)
	if created.ID == "" {
		t.Fatalf("expected a stringified post id")
	}
	if created.Author == nil || created.Author.Username != "ada" {
		t.Fatalf("expected author snapshot, got %+v", created.Author)
	}

	recorder = doRequest(t, env, http.MethodGet, "/feed", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var feed struct {
		Posts []struct {
			ID      string `json:"id"`
			Content string `json:"content"`
		} `json:"posts"`
	}
	decodeBody(t, recorder, &feed)
	if len(feed.Posts) != 1 || feed.Posts[0].Content != "hello world" {
		t.Fatalf("unexpected feed: %+v", feed.Posts)
	}
}

func TestComposeRejectsEmptyBody(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	token := sessionToken(t, author.ID, "ada")

	recorder := doRequest(t, env, http.MethodPost, "/posts", token, map[string]interface{}{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestConversationNotFound(t *testing.T) {
	env := newTestEnv(t)

	recorder := doRequest(t, env, http.MethodGet, "/posts/4242/conversation", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestConversationBadID(t *testing.T) {
	env := newTestEnv(t)

	recorder := doRequest(t, env, http.MethodGet, "/posts/not-a-number/conversation", "", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestConversationIncludesAncestorsAndReplies(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")

	root := env.mustPost(t, composeFor(author.ID, "root"))
	middle := env.mustPost(t, replyFor(author.ID, "middle", root.ID))
	env.mustPost(t, replyFor(author.ID, "leaf", middle.ID))

	recorder := doRequest(t, env, http.MethodGet, fmt.Sprintf("/posts/%d/conversation", middle.ID), "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var conversation struct {
		MainPost struct {
			Content string `json:"content"`
		} `json:"main_post"`
		Ancestors []struct {
			Content string `json:"content"`
		} `json:"ancestors"`
		Replies []struct {
			Post struct {
				Content string `json:"content"`
			} `json:"post"`
		} `json:"replies"`
	}
	decodeBody(t, recorder, &conversation)
	if conversation.MainPost.Content != "middle" {
		t.Fatalf("unexpected main post %+v", conversation.MainPost)
	}
	if len(conversation.Ancestors) != 1 || conversation.Ancestors[0].Content != "root" {
		t.Fatalf("unexpected ancestors %+v", conversation.Ancestors)
	}
	if len(conversation.Replies) != 1 || conversation.Replies[0].Post.Content != "leaf" {
		t.Fatalf("unexpected replies %+v", conversation.Replies)
	}
}

func TestLikeEmitsGroupableNotifications(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	fanOne := env.mustUser(t, "grace")
	fanTwo := env.mustUser(t, "linus")

	post := env.mustPost(t, composeFor(author.ID, "likeable"))
	path := fmt.Sprintf("/posts/%d/like", post.ID)

	for _, fan := range []struct {
		id       int64
		username string
	}{{fanOne.ID, "grace"}, {fanTwo.ID, "linus"}} {
		recorder := doRequest(t, env, http.MethodPost, path, sessionToken(t, fan.id, fan.username), nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
		}
	}

	recorder := doRequest(t, env, http.MethodGet, "/notifications", sessionToken(t, author.ID, "ada"), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var payload struct {
		Groups []struct {
			Type      string `json:"type"`
			Read      bool   `json:"read"`
			Actors    []struct {
				Username string `json:"username"`
			} `json:"actors"`
			SourceIDs []string `json:"source_ids"`
			Post      *struct {
				Content string `json:"content"`
			} `json:"post"`
		} `json:"groups"`
		Unread int64 `json:"unread"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Groups) != 1 {
		t.Fatalf("expected the likes collapsed into one group, got %d", len(payload.Groups))
	}
	group := payload.Groups[0]
	if group.Type != "LIKE" {
		t.Fatalf("unexpected type %q", group.Type)
	}
	if group.Read {
		t.Fatalf("expected the group unread")
	}
	if len(group.Actors) != 2 {
		t.Fatalf("expected 2 actors, got %+v", group.Actors)
	}
	if len(group.SourceIDs) != 2 {
		t.Fatalf("expected 2 source ids, got %+v", group.SourceIDs)
	}
	if group.Post == nil || group.Post.Content != "likeable" {
		t.Fatalf("expected the liked post attached, got %+v", group.Post)
	}
	if payload.Unread != 2 {
		t.Fatalf("expected unread 2, got %d", payload.Unread)
	}
}

func TestMarkReadClearsUnread(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	fan := env.mustUser(t, "grace")

	post := env.mustPost(t, composeFor(author.ID, "likeable"))
	recorder := doRequest(t, env, http.MethodPost, fmt.Sprintf("/posts/%d/like", post.ID), sessionToken(t, fan.ID, "grace"), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	token := sessionToken(t, author.ID, "ada")
	recorder = doRequest(t, env, http.MethodGet, "/notifications", token, nil)
	var payload struct {
		Groups []struct {
			SourceIDs []string `json:"source_ids"`
		} `json:"groups"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(payload.Groups))
	}

	recorder = doRequest(t, env, http.MethodPost, "/notifications/read", token, map[string]interface{}{
		"ids": payload.Groups[0].SourceIDs,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, env, http.MethodGet, "/notifications", token, nil)
	var after struct {
		Unread int64 `json:"unread"`
	}
	decodeBody(t, recorder, &after)
	if after.Unread != 0 {
		t.Fatalf("expected unread 0, got %d", after.Unread)
	}
}

func TestFollowEndpointNotifiesFollowee(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "ada")
	follower := env.mustUser(t, "grace")

	token := sessionToken(t, follower.ID, "grace")
	recorder := doRequest(t, env, http.MethodPost, "/users/ada/follow", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	// Second follow is a no-op and must not duplicate the notification.
	recorder = doRequest(t, env, http.MethodPost, "/users/ada/follow", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	recorder = doRequest(t, env, http.MethodGet, "/users/ada", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var profile struct {
		Followers   int64 `json:"followers"`
		IsFollowing bool  `json:"is_following"`
	}
	decodeBody(t, recorder, &profile)
	if profile.Followers != 1 {
		t.Fatalf("expected 1 follower, got %d", profile.Followers)
	}
	if !profile.IsFollowing {
		t.Fatalf("expected is_following true")
	}
}

func TestFollowSelfRejected(t *testing.T) {
	env := newTestEnv(t)
	user := env.mustUser(t, "ada")

	recorder := doRequest(t, env, http.MethodPost, "/users/ada/follow", sessionToken(t, user.ID, "ada"), nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
}

func TestReplyNotifiesParentAuthor(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	replier := env.mustUser(t, "grace")

	parent := env.mustPost(t, composeFor(author.ID, "parent"))
	recorder := doRequest(t, env, http.MethodPost, "/posts", sessionToken(t, replier.ID, "grace"), map[string]interface{}{
		"content":   "a reply",
		"parent_id": fmt.Sprintf("%d", parent.ID),
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, env, http.MethodGet, "/notifications", sessionToken(t, author.ID, "ada"), nil)
	var payload struct {
		Groups []struct {
			Type string `json:"type"`
		} `json:"groups"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Groups) != 1 || payload.Groups[0].Type != "REPLY" {
		t.Fatalf("expected a REPLY notification, got %+v", payload.Groups)
	}
}

func TestMentionNotifiesMentionedUser(t *testing.T) {
	env := newTestEnv(t)
	author := env.mustUser(t, "ada")
	mentioned := env.mustUser(t, "grace")

	recorder := doRequest(t, env, http.MethodPost, "/posts", sessionToken(t, author.ID, "ada"), map[string]interface{}{
		"content": "shout out to @grace",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doRequest(t, env, http.MethodGet, "/notifications", sessionToken(t, mentioned.ID, "grace"), nil)
	var payload struct {
		Groups []struct {
			Type string `json:"type"`
		} `json:"groups"`
	}
	decodeBody(t, recorder, &payload)
	if len(payload.Groups) != 1 || payload.Groups[0].Type != "MENTION" {
		t.Fatalf("expected a MENTION notification, got %+v", payload.Groups)
	}
}

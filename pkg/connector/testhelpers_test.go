// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"go.mau.fi/util/dbutil"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/matrix-mattermost-bridge/pkg/database"
)

const (
	testDomain  = "example.com"
	testBot     = id.UserID("@mattermostbot:example.com")
	testAlice   = id.UserID("@alice:example.com")
	testBob     = id.UserID("@bob:example.com")
	testMMBotID = "mm-bot-id"
	testRoom    = id.RoomID("!room:example.com")
	testChannel = "channel1"
)

// --- Matrix side ---

type sentMessage struct {
	RoomID  id.RoomID
	AsUser  id.UserID
	Type    event.Type
	Content any
	EventID id.EventID
}

type sentReaction struct {
	RoomID id.RoomID
	AsUser id.UserID
	Target id.EventID
	Key    string
}

type stateCall struct {
	RoomID   id.RoomID
	Type     event.Type
	StateKey string
	Content  any
}

// fakeMatrix records every call made through MatrixAPI and serves state and
// events from in-memory maps.
type fakeMatrix struct {
	mu sync.Mutex

	seq        int
	Messages   []sentMessage
	Reactions  []sentReaction
	Redactions []id.EventID
	StateSets  []stateCall
	Joins      []id.RoomID
	DMs        []id.UserID
	Ghosts     map[id.UserID]string

	// Events served by GetEvent. Sent messages are added automatically.
	Events map[id.EventID]*event.Event
	// State maps room -> "type|state_key" -> content for GetStateEvent.
	State map[id.RoomID]map[string]any
	// FullState is served by GetFullState.
	FullState map[id.RoomID]mautrix.RoomStateMap
	Media     map[id.ContentURIString][]byte

	JoinErr        map[id.RoomID]error
	SendErr        error
	EnsureGhostErr error
}

var _ MatrixAPI = (*fakeMatrix)(nil)

func newFakeMatrix() *fakeMatrix {
	return &fakeMatrix{
		Ghosts:    make(map[id.UserID]string),
		Events:    make(map[id.EventID]*event.Event),
		State:     make(map[id.RoomID]map[string]any),
		FullState: make(map[id.RoomID]mautrix.RoomStateMap),
		Media:     make(map[id.ContentURIString][]byte),
		JoinErr:   make(map[id.RoomID]error),
	}
}

func (fm *fakeMatrix) nextEventID() id.EventID {
	fm.seq++
	return id.EventID(fmt.Sprintf("$out%d:%s", fm.seq, testDomain))
}

func (fm *fakeMatrix) BotUserID() id.UserID {
	return testBot
}

func (fm *fakeMatrix) SendMessage(_ context.Context, roomID id.RoomID, asUser id.UserID, evtType event.Type, content any) (id.EventID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.SendErr != nil {
		return "", fm.SendErr
	}
	evtID := fm.nextEventID()
	fm.Messages = append(fm.Messages, sentMessage{RoomID: roomID, AsUser: asUser, Type: evtType, Content: content, EventID: evtID})
	raw, err := json.Marshal(content)
	if err != nil {
		return "", err
	}
	sender := asUser
	if sender == "" {
		sender = testBot
	}
	fm.Events[evtID] = &event.Event{
		ID:      evtID,
		RoomID:  roomID,
		Sender:  sender,
		Type:    evtType,
		Content: event.Content{VeryRaw: raw},
	}
	return evtID, nil
}

func (fm *fakeMatrix) SendReaction(_ context.Context, roomID id.RoomID, asUser id.UserID, target id.EventID, key string) (id.EventID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.Reactions = append(fm.Reactions, sentReaction{RoomID: roomID, AsUser: asUser, Target: target, Key: key})
	return fm.nextEventID(), nil
}

func (fm *fakeMatrix) Redact(_ context.Context, _ id.RoomID, eventID id.EventID, _ string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.Redactions = append(fm.Redactions, eventID)
	return nil
}

func (fm *fakeMatrix) GetEvent(_ context.Context, _ id.RoomID, eventID id.EventID) (*event.Event, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	evt, ok := fm.Events[eventID]
	if !ok {
		return nil, fmt.Errorf("event not found: %w", mautrix.MNotFound)
	}
	cp := *evt
	return &cp, nil
}

func (fm *fakeMatrix) setState(roomID id.RoomID, evtType event.Type, stateKey string, content any) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.State[roomID] == nil {
		fm.State[roomID] = make(map[string]any)
	}
	fm.State[roomID][evtType.Type+"|"+stateKey] = content
}

func (fm *fakeMatrix) GetStateEvent(_ context.Context, roomID id.RoomID, evtType event.Type, stateKey string, out any) error {
	fm.mu.Lock()
	content, ok := fm.State[roomID][evtType.Type+"|"+stateKey]
	fm.mu.Unlock()
	if !ok {
		return fmt.Errorf("state not found: %w", mautrix.MNotFound)
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (fm *fakeMatrix) SetStateEvent(_ context.Context, roomID id.RoomID, evtType event.Type, stateKey string, content any) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.StateSets = append(fm.StateSets, stateCall{RoomID: roomID, Type: evtType, StateKey: stateKey, Content: content})
	return nil
}

func (fm *fakeMatrix) GetFullState(_ context.Context, roomID id.RoomID) (mautrix.RoomStateMap, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if state, ok := fm.FullState[roomID]; ok {
		return state, nil
	}
	return mautrix.RoomStateMap{}, nil
}

func (fm *fakeMatrix) GetJoinedMembers(_ context.Context, _ id.RoomID) ([]id.UserID, error) {
	return []id.UserID{testBot}, nil
}

func (fm *fakeMatrix) JoinRoom(_ context.Context, roomID id.RoomID) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if err := fm.JoinErr[roomID]; err != nil {
		return err
	}
	fm.Joins = append(fm.Joins, roomID)
	return nil
}

func (fm *fakeMatrix) CreateDM(_ context.Context, userID id.UserID) (id.RoomID, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	fm.DMs = append(fm.DMs, userID)
	return id.RoomID("!dm-" + userID.Localpart() + ":" + testDomain), nil
}

func (fm *fakeMatrix) DownloadMedia(_ context.Context, uri id.ContentURIString) ([]byte, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	data, ok := fm.Media[uri]
	if !ok {
		return nil, fmt.Errorf("media not found: %w", mautrix.MNotFound)
	}
	return data, nil
}

func (fm *fakeMatrix) EnsureGhost(_ context.Context, userID id.UserID, displayname string) error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	if fm.EnsureGhostErr != nil {
		return fm.EnsureGhostErr
	}
	fm.Ghosts[userID] = displayname
	return nil
}

func (fm *fakeMatrix) messages() []sentMessage {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return append([]sentMessage(nil), fm.Messages...)
}

func (fm *fakeMatrix) reactions() []sentReaction {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return append([]sentReaction(nil), fm.Reactions...)
}

func (fm *fakeMatrix) stateSets(roomID id.RoomID, evtType event.Type) []stateCall {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	var out []stateCall
	for _, sc := range fm.StateSets {
		if sc.RoomID == roomID && sc.Type.Type == evtType.Type {
			out = append(out, sc)
		}
	}
	return out
}

// --- Mattermost side ---

type reactionCall struct {
	PostID    string
	EmojiName string
}

// fakeMMAPI is an in-memory MattermostAPI. Fail maps a method name to the
// error it returns.
type fakeMMAPI struct {
	mu sync.Mutex

	seq              int
	Posts            map[string]*model.Post
	Created          []*model.Post
	Patched          map[string]string
	Deleted          []string
	Reactions        []reactionCall
	DeletedReactions []reactionCall
	Pinned           []string
	Unpinned         []string
	Channels         map[string]*model.Channel
	Users            map[string]*model.User
	Files            map[string]*model.FileInfo
	Emojis           []*model.Emoji
	Permissions      map[string]bool

	Fail map[string]error
}

var _ MattermostAPI = (*fakeMMAPI)(nil)

func newFakeMMAPI() *fakeMMAPI {
	return &fakeMMAPI{
		Posts:       make(map[string]*model.Post),
		Patched:     make(map[string]string),
		Channels:    make(map[string]*model.Channel),
		Users:       make(map[string]*model.User),
		Files:       make(map[string]*model.FileInfo),
		Permissions: make(map[string]bool),
		Fail:        make(map[string]error),
	}
}

func (f *fakeMMAPI) failure(method string) error {
	return f.Fail[method]
}

func (f *fakeMMAPI) setFail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.Fail, method)
	} else {
		f.Fail[method] = err
	}
}

func (f *fakeMMAPI) UserID() string {
	return testMMBotID
}

func (f *fakeMMAPI) CreatePost(_ context.Context, post *model.Post) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreatePost"); err != nil {
		return nil, err
	}
	f.seq++
	cp := post.Clone()
	cp.Id = fmt.Sprintf("post%d", f.seq)
	cp.UserId = testMMBotID
	f.Posts[cp.Id] = cp
	f.Created = append(f.Created, cp)
	return cp, nil
}

func (f *fakeMMAPI) PatchPost(_ context.Context, postID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("PatchPost"); err != nil {
		return err
	}
	f.Patched[postID] = message
	return nil
}

func (f *fakeMMAPI) GetPost(_ context.Context, postID string) (*model.Post, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	post, ok := f.Posts[postID]
	if !ok {
		return nil, notFoundError("app.post.get.app_error")
	}
	return post, nil
}

func (f *fakeMMAPI) DeletePost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeletePost"); err != nil {
		return err
	}
	f.Deleted = append(f.Deleted, postID)
	return nil
}

func (f *fakeMMAPI) AddReaction(_ context.Context, postID, emojiName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("AddReaction"); err != nil {
		return err
	}
	f.Reactions = append(f.Reactions, reactionCall{PostID: postID, EmojiName: emojiName})
	return nil
}

func (f *fakeMMAPI) DeleteOwnReaction(_ context.Context, postID, emojiName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteOwnReaction"); err != nil {
		return err
	}
	f.DeletedReactions = append(f.DeletedReactions, reactionCall{PostID: postID, EmojiName: emojiName})
	return nil
}

func (f *fakeMMAPI) PinPost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("PinPost"); err != nil {
		return err
	}
	f.Pinned = append(f.Pinned, postID)
	return nil
}

func (f *fakeMMAPI) UnpinPost(_ context.Context, postID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UnpinPost"); err != nil {
		return err
	}
	f.Unpinned = append(f.Unpinned, postID)
	return nil
}

func (f *fakeMMAPI) GetChannel(_ context.Context, channelID string) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.Channels[channelID]
	if !ok {
		return nil, notFoundError("app.channel.get.existing.app_error")
	}
	return ch, nil
}

func (f *fakeMMAPI) GetUser(_ context.Context, userID string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.Users[userID]
	if !ok {
		return nil, notFoundError("app.user.missing_account.const")
	}
	return user, nil
}

func (f *fakeMMAPI) GetFileInfo(_ context.Context, fileID string) (*model.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Files[fileID]
	if !ok {
		return nil, notFoundError("app.file_info.get.app_error")
	}
	return info, nil
}

func (f *fakeMMAPI) CreateEmoji(_ context.Context, name string, _ []byte, _ string) (*model.Emoji, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateEmoji"); err != nil {
		return nil, err
	}
	f.seq++
	created := &model.Emoji{Id: fmt.Sprintf("emoji%d", f.seq), Name: name, CreatorId: testMMBotID}
	f.Emojis = append(f.Emojis, created)
	return created, nil
}

func (f *fakeMMAPI) OwnPermissions(_ context.Context) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Permissions, nil
}

func (f *fakeMMAPI) createdPosts() []*model.Post {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Post(nil), f.Created...)
}

func (f *fakeMMAPI) addedReactions() []reactionCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reactionCall(nil), f.Reactions...)
}

func notFoundError(errID string) error {
	return fmt.Errorf("failed to get: %w", model.NewAppError("Test", errID, nil, "", http.StatusNotFound))
}

// --- fixtures ---

type testBridge struct {
	mc *MattermostConnector
	mx *fakeMatrix
	mm *fakeMMAPI
	db *database.Database
}

func newTestDatabase(t *testing.T) *database.Database {
	t.Helper()
	raw, err := dbutil.NewWithDialect("file::memory:", "sqlite3")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	raw.RawDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = raw.Close() })
	db := database.New(raw, zerolog.Nop())
	if err = db.Upgrade(context.Background()); err != nil {
		t.Fatalf("failed to upgrade database: %v", err)
	}
	return db
}

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Homeserver: HomeserverConfig{Address: "http://localhost:8008", Domain: testDomain},
		Mattermost: MattermostConfig{
			ServerURL:           "https://mm.example.com/",
			DisplaynameTemplate: "{{.Username}} (Mattermost)",
		},
		Bridge: BridgeConfig{
			RetryPowerLevel:   DefaultPowerLevel,
			CommandPowerLevel: DefaultPowerLevel,
		},
	}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess failed: %v", err)
	}
	return cfg
}

func newTestBridge(t *testing.T) *testBridge {
	t.Helper()
	db := newTestDatabase(t)
	mx := newFakeMatrix()
	mm := newFakeMMAPI()
	mc := NewConnector(newTestConfig(t), db, mx, mm, zerolog.Nop())
	mc.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return &testBridge{mc: mc, mx: mx, mm: mm, db: db}
}

func (tb *testBridge) bind(t *testing.T, channelID string, roomID id.RoomID) *database.ChannelRoom {
	t.Helper()
	cr := tb.db.ChannelRoom.New()
	cr.ChannelID = channelID
	cr.RoomID = roomID
	cr.Name = "Town Square"
	if err := cr.Insert(context.Background()); err != nil {
		t.Fatalf("failed to insert binding: %v", err)
	}
	tb.mm.Channels[channelID] = &model.Channel{Id: channelID, Name: "town-square", DisplayName: "Town Square", Header: "Welcome"}
	return cr
}

func (tb *testBridge) mapMessage(t *testing.T, eventID id.EventID, postID string, source database.Source) {
	t.Helper()
	err := tb.db.Message.Insert(context.Background(), &database.EventMessage{
		EventID:      eventID,
		MessageID:    postID,
		EventType:    event.EventMessage.Type,
		EventSubtype: string(event.MsgText),
		Source:       source,
	})
	if err != nil {
		t.Fatalf("failed to insert message mapping: %v", err)
	}
	if _, ok := tb.mm.Posts[postID]; !ok {
		tb.mm.Posts[postID] = &model.Post{Id: postID, ChannelId: testChannel}
	}
}

func (tb *testBridge) setPowerLevels(roomID id.RoomID, users map[id.UserID]int, usersDefault int) {
	tb.mx.setState(roomID, event.StatePowerLevels, "", &event.PowerLevelsEventContent{
		Users:        users,
		UsersDefault: usersDefault,
	})
}

var inboundSeq struct {
	sync.Mutex
	n int
}

func nextInboundID() id.EventID {
	inboundSeq.Lock()
	defer inboundSeq.Unlock()
	inboundSeq.n++
	return id.EventID(fmt.Sprintf("$in%d:%s", inboundSeq.n, testDomain))
}

func newMatrixEvent(evtType event.Type, roomID id.RoomID, sender id.UserID, content any) *event.Event {
	return &event.Event{
		ID:        nextInboundID(),
		Type:      evtType,
		RoomID:    roomID,
		Sender:    sender,
		Timestamp: 1700000000000,
		Content:   event.Content{Parsed: content},
	}
}

func newStateEvent(evtType event.Type, roomID id.RoomID, sender id.UserID, stateKey string, content any) *event.Event {
	evt := newMatrixEvent(evtType, roomID, sender, content)
	evt.StateKey = &stateKey
	return evt
}

func textMessage(roomID id.RoomID, sender id.UserID, body string) *event.Event {
	return newMatrixEvent(event.EventMessage, roomID, sender, &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	})
}

func reactionEvent(roomID id.RoomID, sender id.UserID, target id.EventID, key string) *event.Event {
	return newMatrixEvent(event.EventReaction, roomID, sender, &event.ReactionEventContent{
		RelatesTo: event.RelatesTo{
			Type:    event.RelAnnotation,
			EventID: target,
			Key:     key,
		},
	})
}

// newWebSocketEvent builds a WebSocket event the way it arrives off the wire.
func newWebSocketEvent(t *testing.T, eventType model.WebsocketEventType, channelID string, data map[string]any) *model.WebSocketEvent {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"event": eventType,
		"data":  data,
		"broadcast": map[string]any{
			"channel_id": channelID,
		},
		"seq": 1,
	})
	if err != nil {
		t.Fatalf("failed to marshal websocket event: %v", err)
	}
	evt, err := model.WebSocketEventFromJSON(strings.NewReader(string(raw)))
	if err != nil {
		t.Fatalf("failed to parse websocket event: %v", err)
	}
	return evt
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	return string(raw)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- HTTP fake for the REST adapter ---

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

	// Users maps user ID to model.User for GetUser/GetMe responses.
	Users map[string]*model.User
	// TokenToUser maps bearer tokens to user IDs for GetMe auth.
	TokenToUser map[string]string
	// Channels maps channel ID to model.Channel.
	Channels map[string]*model.Channel
	// Roles maps role name to model.Role.
	Roles map[string]*model.Role
	// FailEndpoints makes requests whose path contains the key fail with the
	// given AppError.
	FailEndpoints map[string]*model.AppError
}

func newFakeMM() *fakeMM {
	f := &fakeMM{
		Users:         make(map[string]*model.User),
		TokenToUser:   make(map[string]string),
		Channels:      make(map[string]*model.Channel),
		Roles:         make(map[string]*model.Role),
		FailEndpoints: make(map[string]*model.AppError),
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

func (f *fakeMM) lastCall() endpointCall {
	calls := f.Calls()
	if len(calls) == 0 {
		return endpointCall{}
	}
	return calls[len(calls)-1]
}

func (f *fakeMM) resolveToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	for tok, uid := range f.TokenToUser {
		if auth == "BEARER "+tok || auth == "Bearer "+tok {
			return uid
		}
	}
	return ""
}

func writeAppError(w http.ResponseWriter, appErr *model.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.StatusCode)
	_ = json.NewEncoder(w).Encode(appErr)
}

func (f *fakeMM) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.record(r.Method, r.URL.Path, string(body))

	for fragment, appErr := range f.FailEndpoints {
		if strings.Contains(r.URL.Path, fragment) {
			writeAppError(w, appErr)
			return
		}
	}

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.Method == http.MethodGet && path == "/api/v4/users/me":
		uid := f.resolveToken(r)
		if u, ok := f.Users[uid]; ok && uid != "" {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		writeAppError(w, model.NewAppError("GetMe", "api.context.session_expired.app_error", nil, "", http.StatusUnauthorized))

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/users/"):
		uid := strings.TrimPrefix(path, "/api/v4/users/")
		if u, ok := f.Users[uid]; ok {
			_ = json.NewEncoder(w).Encode(u)
			return
		}
		writeAppError(w, model.NewAppError("GetUser", "app.user.missing_account.const", nil, "", http.StatusNotFound))

	case r.Method == http.MethodPost && path == "/api/v4/roles/names":
		var names []string
		_ = json.Unmarshal(body, &names)
		roles := make([]*model.Role, 0, len(names))
		for _, name := range names {
			if role, ok := f.Roles[name]; ok {
				roles = append(roles, role)
			}
		}
		_ = json.NewEncoder(w).Encode(roles)

	case r.Method == http.MethodPost && path == "/api/v4/posts":
		var post model.Post
		_ = json.Unmarshal(body, &post)
		post.Id = "created-post-id"
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&post)

	case r.Method == http.MethodPut && strings.HasSuffix(path, "/patch"):
		var patch model.PostPatch
		_ = json.Unmarshal(body, &patch)
		post := &model.Post{Id: strings.Split(path, "/")[4]}
		if patch.Message != nil {
			post.Message = *patch.Message
		}
		_ = json.NewEncoder(w).Encode(post)

	case r.Method == http.MethodPost && (strings.HasSuffix(path, "/pin") || strings.HasSuffix(path, "/unpin")):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})

	case r.Method == http.MethodDelete && strings.Contains(path, "/reactions/"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/api/v4/posts/"):
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})

	case r.Method == http.MethodPost && path == "/api/v4/reactions":
		var reaction model.Reaction
		_ = json.Unmarshal(body, &reaction)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(&reaction)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/v4/channels/"):
		chID := strings.TrimPrefix(path, "/api/v4/channels/")
		if ch, ok := f.Channels[chID]; ok {
			_ = json.NewEncoder(w).Encode(ch)
			return
		}
		writeAppError(w, model.NewAppError("GetChannel", "app.channel.get.existing.app_error", nil, "", http.StatusNotFound))

	default:
		writeAppError(w, model.NewAppError("fake", "api.context.404.app_error", nil, "not found: "+path, http.StatusNotFound))
	}
}

// newTestClient creates a MattermostClient authenticated against f.
func newTestClient(t *testing.T, f *fakeMM) *MattermostClient {
	t.Helper()
	f.Users["bot-id"] = &model.User{Id: "bot-id", Username: "mattermost-bridge", Roles: "system_user"}
	f.TokenToUser["test-token"] = "bot-id"
	client := NewMattermostClient(f.Server.URL, "test-token", zerolog.Nop())
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	return client
}

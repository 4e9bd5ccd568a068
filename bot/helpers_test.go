package bot

import (
	"context"
	"sync"

	"nextmsgbot/storage"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the slice of tele.Context the handlers touch.
// Everything else panics through the embedded nil interface, which is the
// point: a test reaching an unstubbed method should fail loudly.
type fakeContext struct {
	tele.Context
	update tele.Update
	kv     map[string]any

	sent      []string
	responded int
}

func (f *fakeContext) Update() tele.Update { return f.update }

func (f *fakeContext) Message() *tele.Message {
	switch {
	case f.update.Message != nil:
		return f.update.Message
	case f.update.ChannelPost != nil:
		return f.update.ChannelPost
	case f.update.Callback != nil:
		return f.update.Callback.Message
	}
	return nil
}

func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }

func (f *fakeContext) Sender() *tele.User {
	if f.update.Callback != nil {
		return f.update.Callback.Sender
	}
	if m := f.Message(); m != nil {
		return m.Sender
	}
	return nil
}

func (f *fakeContext) Chat() *tele.Chat {
	if m := f.Message(); m != nil {
		return m.Chat
	}
	return nil
}

func (f *fakeContext) Text() string {
	if m := f.Message(); m != nil {
		return m.Text
	}
	return ""
}

func (f *fakeContext) Get(key string) any { return f.kv[key] }

func (f *fakeContext) Set(key string, value any) {
	if f.kv == nil {
		f.kv = map[string]any{}
	}
	f.kv[key] = value
}

func (f *fakeContext) Respond(_ ...*tele.CallbackResponse) error {
	f.responded++
	return nil
}

func (f *fakeContext) Send(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return nil
}

func withLocalUser(c *fakeContext, u storage.User) *fakeContext {
	c.Set(localUserKey, u)
	return c
}

func privateTextCtx(u storage.User, text string) *fakeContext {
	c := &fakeContext{update: tele.Update{Message: &tele.Message{
		ID:     10,
		Sender: &tele.User{ID: u.TelegramUserID, FirstName: u.FirstName},
		Chat:   &tele.Chat{ID: u.TelegramUserID, Type: tele.ChatPrivate},
		Text:   text,
	}}}
	return withLocalUser(c, u)
}

func forwardCtx(u storage.User, origin *tele.Chat) *fakeContext {
	c := privateTextCtx(u, "")
	c.update.Message.OriginalChat = origin
	return c
}

func callbackCtx(u storage.User, unique, payload string) *fakeContext {
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	c := &fakeContext{update: tele.Update{Callback: &tele.Callback{
		ID:     "cb-1",
		Sender: &tele.User{ID: u.TelegramUserID},
		Message: &tele.Message{
			ID:   20,
			Chat: &tele.Chat{ID: u.TelegramUserID, Type: tele.ChatPrivate},
		},
		Data: data,
	}}}
	return withLocalUser(c, u)
}

func channelPostCtx(channelID int64, messageID int) *fakeContext {
	return &fakeContext{update: tele.Update{ChannelPost: &tele.Message{
		ID:   messageID,
		Chat: &tele.Chat{ID: channelID, Type: tele.ChatChannel, Title: "News"},
		Text: "post",
	}}}
}

type sendCall struct {
	chatID int64
	text   string
	opts   SendOptions
}

type copyCall struct {
	from, to  int64
	messageID int
	opts      SendOptions
}

type deleteCall struct {
	chatID    int64
	messageID int
}

// fakeMessenger records outbound traffic and lets tests inject failures.
type fakeMessenger struct {
	mu sync.Mutex

	sends   []sendCall
	copies  []copyCall
	deletes []deleteCall
	answers []string

	nextCopyID int
	sendErr    error
	copyErr    error
	deleteErr  error

	adminStatus AdminStatus
	adminErr    error
	member      bool
	memberErr   error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextCopyID: 100, member: true}
}

func (m *fakeMessenger) SendContent(_ context.Context, chatID int64, text string, opts SendOptions) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return MessageRef{}, m.sendErr
	}
	m.sends = append(m.sends, sendCall{chatID: chatID, text: text, opts: opts})
	return MessageRef{ChatID: chatID, MessageID: len(m.sends)}, nil
}

func (m *fakeMessenger) CopyContent(_ context.Context, fromChatID, toChatID int64, messageID int, opts SendOptions) (MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return MessageRef{}, m.copyErr
	}
	m.copies = append(m.copies, copyCall{from: fromChatID, to: toChatID, messageID: messageID, opts: opts})
	m.nextCopyID++
	return MessageRef{ChatID: toChatID, MessageID: m.nextCopyID}, nil
}

func (m *fakeMessenger) DeleteContent(_ context.Context, chatID int64, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deletes = append(m.deletes, deleteCall{chatID: chatID, messageID: messageID})
	return nil
}

func (m *fakeMessenger) QueryChatAdminStatus(_ context.Context, _ int64) (AdminStatus, error) {
	if m.adminErr != nil {
		return AdminStatus{}, m.adminErr
	}
	return m.adminStatus, nil
}

func (m *fakeMessenger) QueryMembership(_ context.Context, _, _ int64) (bool, error) {
	if m.memberErr != nil {
		return false, m.memberErr
	}
	return m.member, nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, callbackID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, callbackID)
	return nil
}

func (m *fakeMessenger) lastSendText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sends) == 0 {
		return ""
	}
	return m.sends[len(m.sends)-1].text
}

// memStateStore is an in-memory state.Store.
type memStateStore struct {
	mu       sync.Mutex
	phases   map[int64]string
	payloads map[int64][]byte
}

func newMemStateStore() *memStateStore {
	return &memStateStore{phases: map[int64]string{}, payloads: map[int64][]byte{}}
}

func (s *memStateStore) Load(_ context.Context, userID int64) (string, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase, ok := s.phases[userID]
	if !ok {
		return "idle", nil, nil
	}
	return phase, s.payloads[userID], nil
}

func (s *memStateStore) Save(_ context.Context, userID int64, phase string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[userID] = phase
	s.payloads[userID] = payload
	return nil
}

func (s *memStateStore) phase(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	phase, ok := s.phases[userID]
	if !ok {
		return "idle"
	}
	return phase
}

// memChannels is an in-memory ChannelDirectory.
type memChannels struct {
	mu     sync.Mutex
	byID   map[int64]storage.Channel
	nextID int64
}

func newMemChannels() *memChannels {
	return &memChannels{byID: map[int64]storage.Channel{}}
}

func (s *memChannels) Upsert(_ context.Context, channelID int64, title, username, kind string) (storage.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byID[channelID]
	if !ok {
		s.nextID++
		ch = storage.Channel{ID: s.nextID, ChannelID: channelID}
	}
	ch.Title = title
	ch.Username = username
	ch.Kind = kind
	s.byID[channelID] = ch
	return ch, nil
}

func (s *memChannels) ByChannelID(_ context.Context, channelID int64) (storage.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.byID[channelID]
	if !ok {
		return storage.Channel{}, storage.ErrNotFound
	}
	return ch, nil
}

// memBindings is an in-memory BindingDirectory.
type memBindings struct {
	mu        sync.Mutex
	rows      map[int64]storage.Binding
	nextID    int64
	upsertErr error
}

func newMemBindings() *memBindings {
	return &memBindings{rows: map[int64]storage.Binding{}}
}

func (s *memBindings) ByChannel(_ context.Context, channelID int64) (storage.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[channelID]
	if !ok {
		return storage.Binding{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *memBindings) ByOwner(_ context.Context, ownerUserID int64) ([]storage.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Binding
	for _, b := range s.rows {
		if b.OwnerUserID == ownerUserID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBindings) Upsert(_ context.Context, channelID, ownerUserID int64, responseRef int, isReply bool, throttleN int) (storage.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return storage.Binding{}, s.upsertErr
	}
	if throttleN < 1 {
		throttleN = 1
	}
	b, ok := s.rows[channelID]
	if !ok {
		s.nextID++
		b = storage.Binding{ID: s.nextID, ChannelID: channelID}
	}
	b.OwnerUserID = ownerUserID
	b.ResponseRef = responseRef
	b.IsReply = isReply
	b.ThrottleN = throttleN
	b.ReceivedCount = 0
	s.rows[channelID] = b
	return b, nil
}

func (s *memBindings) BumpReceived(_ context.Context, channelID int64) (storage.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[channelID]
	if !ok || b.ResponseRef == 0 {
		return storage.Binding{}, storage.ErrNotFound
	}
	b.ReceivedCount++
	s.rows[channelID] = b
	return b, nil
}

func (s *memBindings) ResetReceived(_ context.Context, channelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.rows[channelID]
	if !ok {
		return nil
	}
	b.ReceivedCount = 0
	s.rows[channelID] = b
	return nil
}

func (s *memBindings) CountByOwner(_ context.Context, ownerUserID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.rows {
		if b.OwnerUserID == ownerUserID {
			n++
		}
	}
	return n, nil
}

// memUsers is an in-memory UserDirectory.
type memUsers struct {
	mu     sync.Mutex
	byTG   map[int64]storage.User
	nextID int64
	err    error
}

func newMemUsers() *memUsers {
	return &memUsers{byTG: map[int64]storage.User{}}
}

func (s *memUsers) Upsert(_ context.Context, telegramUserID int64, firstName, lastName, username, languageCode string) (storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.User{}, s.err
	}
	u, ok := s.byTG[telegramUserID]
	if !ok {
		s.nextID++
		u = storage.User{ID: s.nextID, TelegramUserID: telegramUserID}
	}
	u.FirstName = firstName
	u.LastName = lastName
	u.Username = username
	u.LanguageCode = languageCode
	s.byTG[telegramUserID] = u
	return u, nil
}

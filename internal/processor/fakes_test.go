package processor

import (
	"context"
	"sync"

	"github.com/establishment/cerberus/internal/identity"
)

type fakeSessions struct {
	sessions map[string]int64
	err      error
}

func (f *fakeSessions) ResolveSession(ctx context.Context, sessionKey string) (int64, bool, error) {
	if f.err != nil {
		return 0, false, f.err
	}
	id, ok := f.sessions[sessionKey]
	return id, ok, nil
}

type fakeUserFetcher struct {
	mu    sync.Mutex
	calls int
	users map[int64]*identity.User
	err   error
}

func (f *fakeUserFetcher) FetchUserByID(ctx context.Context, id int64) (*identity.User, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.users[id], nil
}

func (f *fakeUserFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeOracle struct {
	mu            sync.Mutex
	userDecision  identity.Decision
	guestDecision identity.Decision
	userCalls     int
	guestCalls    int
	lastUser      *identity.User
	hasLastUser   bool
}

func (f *fakeOracle) UserCanSubscribe(ctx context.Context, user *identity.User, streamName string) (identity.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userCalls++
	f.lastUser = user
	f.hasLastUser = true
	return f.userDecision, nil
}

func (f *fakeOracle) GuestCanSubscribe(ctx context.Context, streamName string) (identity.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.guestCalls++
	return f.guestDecision, nil
}

type capturedMessage struct {
	stream     string
	payload    []byte
	persistent bool
}

type capturePublisher struct {
	mu   sync.Mutex
	msgs []capturedMessage
}

func (p *capturePublisher) Publish(ctx context.Context, stream string, payload []byte, persistent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, capturedMessage{stream: stream, payload: payload, persistent: persistent})
	return nil
}

func (p *capturePublisher) Close() error {
	return nil
}

func (p *capturePublisher) published() []capturedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedMessage(nil), p.msgs...)
}

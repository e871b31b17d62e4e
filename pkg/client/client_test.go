package client

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fluxbase/flux-go/pkg/transport"
	"github.com/fluxbase/flux-go/pkg/value"
)

// fakeCore scripts transport responses per function name.
type fakeCore struct {
	mu      sync.Mutex
	results map[string]string
	errs    map[string]error
	calls   []string
	sinks   map[string]transport.UpdateSink
	token   *string
	closed  bool
}

func newFakeCore() *fakeCore {
	return &fakeCore{
		results: make(map[string]string),
		errs:    make(map[string]error),
		sinks:   make(map[string]transport.UpdateSink),
	}
}

func (f *fakeCore) respond(name, wire string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[name] = wire
}

func (f *fakeCore) failWith(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[name] = err
}

func (f *fakeCore) call(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if err := f.errs[name]; err != nil {
		return "", err
	}
	return f.results[name], nil
}

func (f *fakeCore) Query(_ context.Context, name string, _ map[string]string) (string, error) {
	return f.call(name)
}

func (f *fakeCore) Mutation(_ context.Context, name string, _ map[string]string) (string, error) {
	return f.call(name)
}

func (f *fakeCore) Action(_ context.Context, name string, _ map[string]string) (string, error) {
	return f.call(name)
}

func (f *fakeCore) Subscribe(_ context.Context, name string, _ map[string]string, sink transport.UpdateSink) (transport.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	f.sinks[name] = sink
	return fakeHandle{}, nil
}

func (f *fakeCore) sink(name string) transport.UpdateSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[name]
}

// waitSink waits for the asynchronous registration to reach the transport.
func waitSink(t *testing.T, f *fakeCore, name string) transport.UpdateSink {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sink := f.sink(name); sink != nil {
			return sink
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("no registration for %q", name)
	return nil
}

func (f *fakeCore) SetAuth(_ context.Context, token *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	return nil
}

func (f *fakeCore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type fakeHandle struct{}

func (fakeHandle) Cancel() {}

func int64Wire(n int64) string {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(n))
	return `{"$integer":"` + base64.StdEncoding.EncodeToString(buf[:]) + `"}`
}

func recvResult[T any](t *testing.T, ch <-chan Result[T]) Result[T] {
	t.Helper()
	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatal("result channel closed unexpectedly")
		}
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result")
	}
	return Result[T]{}
}

func TestQueryDecodesTypedResult(t *testing.T) {
	type message struct {
		Author string      `json:"author"`
		Sent   value.Int64 `json:"sent"`
	}

	core := newFakeCore()
	core.respond("messages:latest", `{"author":"ada","sent":`+int64Wire(1700000000123)+`}`)
	c := New(core, Config{})

	got, err := Query[message](context.Background(), c, "messages:latest", nil)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got.Author != "ada" {
		t.Errorf("Author = %q, want ada", got.Author)
	}
	if int64(got.Sent) != 1700000000123 {
		t.Errorf("Sent = %d, want 1700000000123", int64(got.Sent))
	}
}

func TestQueryDecodeFailureIsInternal(t *testing.T) {
	core := newFakeCore()
	core.respond("messages:latest", `"a string"`)
	c := New(core, Config{})

	_, err := Query[int64](context.Background(), c, "messages:latest", nil)
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("error = %T (%v), want *InternalError", err, err)
	}
}

func TestMutationVoid(t *testing.T) {
	core := newFakeCore()
	core.respond("messages:send", `null`)
	c := New(core, Config{})

	if err := MutationVoid(context.Background(), c, "messages:send", map[string]any{"body": "hi"}); err != nil {
		t.Fatalf("MutationVoid() error = %v", err)
	}

	// A non-null result breaks the void contract.
	core.respond("messages:send", `true`)
	err := MutationVoid(context.Background(), c, "messages:send", nil)
	var internal *InternalError
	if !errors.As(err, &internal) {
		t.Fatalf("error = %T (%v), want *InternalError", err, err)
	}
}

func TestActionVoid(t *testing.T) {
	core := newFakeCore()
	core.respond("emails:dispatch", `null`)
	c := New(core, Config{})

	if err := ActionVoid(context.Background(), c, "emails:dispatch", nil); err != nil {
		t.Fatalf("ActionVoid() error = %v", err)
	}
}

func TestCallErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		transport error
		check     func(t *testing.T, err error)
	}{
		{
			name:      "application error",
			transport: &transport.AppError{Message: "quota", Data: `{"limit":5}`, HasData: true},
			check: func(t *testing.T, err error) {
				var app *ApplicationError
				if !errors.As(err, &app) {
					t.Fatalf("error = %T, want *ApplicationError", err)
				}
				if app.Data != `{"limit":5}` || !app.HasData {
					t.Errorf("Data = %q HasData = %v", app.Data, app.HasData)
				}
			},
		},
		{
			name:      "server error",
			transport: &transport.ServerError{Message: "boom"},
			check: func(t *testing.T, err error) {
				var srv *ServerError
				if !errors.As(err, &srv) {
					t.Fatalf("error = %T, want *ServerError", err)
				}
			},
		},
		{
			name:      "engine internal error",
			transport: &transport.InternalError{Message: "codec"},
			check: func(t *testing.T, err error) {
				var internal *InternalError
				if !errors.As(err, &internal) {
					t.Fatalf("error = %T, want *InternalError", err)
				}
			},
		},
		{
			name:      "transport closed",
			transport: transport.ErrClosed,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, ErrClientClosed) {
					t.Fatalf("error = %v, want ErrClientClosed", err)
				}
			},
		},
		{
			name:      "context cancellation passes through",
			transport: context.Canceled,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, context.Canceled) {
					t.Fatalf("error = %v, want context.Canceled", err)
				}
			},
		},
		{
			name:      "unknown failure becomes server error",
			transport: errors.New("socket reset"),
			check: func(t *testing.T, err error) {
				var srv *ServerError
				if !errors.As(err, &srv) {
					t.Fatalf("error = %T, want *ServerError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := newFakeCore()
			core.failWith("f", tt.transport)
			c := New(core, Config{})

			_, err := Query[any](context.Background(), c, "f", nil)
			if err == nil {
				t.Fatal("expected an error")
			}
			tt.check(t, err)
		})
	}
}

func TestEncodeFailureIsSynchronous(t *testing.T) {
	core := newFakeCore()
	c := New(core, Config{})

	_, err := Query[any](context.Background(), c, "f", map[string]any{"bad": make(chan int)})
	if !errors.Is(err, value.ErrUnsupportedValue) {
		t.Fatalf("error = %v, want ErrUnsupportedValue", err)
	}
	core.mu.Lock()
	defer core.mu.Unlock()
	if len(core.calls) != 0 {
		t.Errorf("transport was reached despite encode failure: %v", core.calls)
	}
}

func TestSubscriptionDeliversTypedResults(t *testing.T) {
	type message struct {
		Body string `json:"body"`
	}

	core := newFakeCore()
	c := New(core, Config{})

	sub, err := Subscribe[message](c, "messages:list", map[string]any{"channel": "news"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	ch := sub.Updates(context.Background())
	waitSink(t, core, "messages:list").OnUpdate(`{"body":"hello"}`)

	r := recvResult(t, ch)
	if r.Err != nil {
		t.Fatalf("result error = %v", r.Err)
	}
	if r.Value.Body != "hello" {
		t.Errorf("Body = %q, want hello", r.Value.Body)
	}
}

func TestSubscriptionBackendErrorContinues(t *testing.T) {
	core := newFakeCore()
	c := New(core, Config{})

	sub, err := Subscribe[string](c, "messages:list", nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Cancel()

	ch := sub.Updates(context.Background())
	sink := waitSink(t, core, "messages:list")
	data := `{"code":"X"}`
	sink.OnError("app failure", &data)
	sink.OnUpdate(`"recovered"`)

	r := recvResult(t, ch)
	var app *ApplicationError
	if !errors.As(r.Err, &app) {
		t.Fatalf("first result error = %T (%v), want *ApplicationError", r.Err, r.Err)
	}

	r = recvResult(t, ch)
	if r.Err != nil || r.Value != "recovered" {
		t.Errorf("second result = %+v, want recovered", r)
	}
}

func TestSubscriptionDecodeFailureIsFatal(t *testing.T) {
	core := newFakeCore()
	c := New(core, Config{})

	sub, err := Subscribe[int64](c, "counters:watch", nil)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	ch := sub.Updates(context.Background())
	waitSink(t, core, "counters:watch").OnUpdate(`"not a number"`)

	r := recvResult(t, ch)
	var violation *ProtocolViolation
	if !errors.As(r.Err, &violation) {
		t.Fatalf("result error = %T (%v), want *ProtocolViolation", r.Err, r.Err)
	}

	// Terminal: the channel closes after the violation.
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("stream delivered after protocol violation")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after protocol violation")
	}
}

func TestSubscribeSharedKey(t *testing.T) {
	core := newFakeCore()
	c := New(core, Config{})

	s1, err := Subscribe[string](c, "messages:list", map[string]any{"channel": "news", "limit": int64(5)})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	s2, err := Subscribe[string](c, "messages:list", map[string]any{"limit": int32(5), "channel": "news"})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if s1.Key() != s2.Key() {
		t.Errorf("keys differ:\n  %v\n  %v", s1.Key(), s2.Key())
	}
}

func TestClosedClientRejectsOperations(t *testing.T) {
	core := newFakeCore()
	c := New(core, Config{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := Query[any](context.Background(), c, "f", nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Query error = %v, want ErrClientClosed", err)
	}
	if _, err := Subscribe[any](c, "f", nil); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Subscribe error = %v, want ErrClientClosed", err)
	}
	if !core.closed {
		t.Error("transport not closed")
	}

	// Close is idempotent.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

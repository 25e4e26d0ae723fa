package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"charla-llm/internal/domain"
	"charla-llm/internal/llm"
)

type blockingClient struct {
	mu      sync.Mutex
	release chan struct{}
	calls   int
}

func newBlockingClient() *blockingClient {
	return &blockingClient{release: make(chan struct{})}
}

func (c *blockingClient) GenerateChat(_ context.Context, _ []llm.Turn) (string, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	<-c.release
	return "respuesta tardia", nil
}

type mockArchive struct {
	recorded chan domain.ExchangeLog
}

func (m *mockArchive) Record(_ context.Context, entry domain.ExchangeLog) error {
	m.recorded <- entry
	return nil
}

func newTestExchange(t *testing.T, client llm.Client, opts ExchangeOptions) (*ExchangeService, *TranscriptStore) {
	t.Helper()
	if opts.BaseDelay == 0 {
		opts.BaseDelay = time.Millisecond
	}
	store := NewTranscriptStore()
	svc := NewExchangeService(store, client, nil, zap.NewNop(), opts)
	return svc, store
}

func waitIdle(t *testing.T, svc *ExchangeService) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for svc.Busy() {
		if time.Now().After(deadline) {
			t.Fatalf("exchange did not settle in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExchangeServiceNew_SeedsGreeting(t *testing.T) {
	svc, store := newTestExchange(t, &llm.MockClient{Responses: []string{"hola"}}, ExchangeOptions{Greeting: "Bienvenido"})

	snapshot := store.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 seed message, got %d", len(snapshot))
	}
	if snapshot[0].Role != domain.RoleAssistant || snapshot[0].Status != domain.StatusCommitted {
		t.Fatalf("unexpected seed %+v", snapshot[0])
	}
	if snapshot[0].Content != "Bienvenido" {
		t.Fatalf("expected greeting override, got %q", snapshot[0].Content)
	}
	if svc.Busy() {
		t.Fatalf("fresh session must not be busy")
	}
}

func TestExchangeServiceSend_SuccessFlow(t *testing.T) {
	mock := &llm.MockClient{Responses: []string{"Hi there"}}
	svc, store := newTestExchange(t, mock, ExchangeOptions{})

	if err := svc.Send(context.Background(), "Hello"); err != nil {
		t.Fatalf("expected accepted send, got %v", err)
	}
	waitIdle(t, svc)

	snapshot := store.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(snapshot))
	}
	if snapshot[1].Role != domain.RoleUser || snapshot[1].Content != "Hello" || snapshot[1].Status != domain.StatusCommitted {
		t.Fatalf("unexpected user message %+v", snapshot[1])
	}
	if snapshot[2].Role != domain.RoleAssistant || snapshot[2].Status != domain.StatusCommitted || snapshot[2].Content != "Hi there" {
		t.Fatalf("unexpected assistant message %+v", snapshot[2])
	}

	// El request lleva el saludo committed previo y el turno nuevo al final;
	// el placeholder jamas viaja.
	if len(mock.LastTurns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(mock.LastTurns))
	}
	last := mock.LastTurns[len(mock.LastTurns)-1]
	if last.Role != "user" || last.Content != "Hello" {
		t.Fatalf("expected new user turn last, got %+v", last)
	}
}

func TestExchangeServiceSend_RejectsEmptyInput(t *testing.T) {
	svc, store := newTestExchange(t, &llm.MockClient{Responses: []string{"hola"}}, ExchangeOptions{})

	if err := svc.Send(context.Background(), "   \n"); !errors.Is(err, ErrExchangeInvalidInput) {
		t.Fatalf("expected ErrExchangeInvalidInput, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected transcript untouched, got %d messages", store.Len())
	}
	if svc.Busy() {
		t.Fatalf("busy must remain false after rejected send")
	}
}

func TestExchangeServiceSend_SingleFlight(t *testing.T) {
	client := newBlockingClient()
	svc, store := newTestExchange(t, client, ExchangeOptions{})

	if err := svc.Send(context.Background(), "A"); err != nil {
		t.Fatalf("first send rejected: %v", err)
	}
	if err := svc.Send(context.Background(), "B"); !errors.Is(err, ErrExchangeBusy) {
		t.Fatalf("expected ErrExchangeBusy for second send, got %v", err)
	}

	// Solo "A" y su placeholder entraron al transcript; "B" se descarto.
	snapshot := store.Snapshot()
	if len(snapshot) != 3 {
		t.Fatalf("expected 3 messages while in flight, got %d", len(snapshot))
	}
	if snapshot[1].Content != "A" {
		t.Fatalf("expected only A appended, got %q", snapshot[1].Content)
	}
	if snapshot[2].Status != domain.StatusPending {
		t.Fatalf("expected pending placeholder, got %s", snapshot[2].Status)
	}

	close(client.release)
	waitIdle(t, svc)

	if err := svc.Send(context.Background(), "C"); err != nil {
		t.Fatalf("send after settle rejected: %v", err)
	}
	waitIdle(t, svc)
}

func TestExchangeServiceSend_FailureFallbackAndContextExclusion(t *testing.T) {
	boom := errors.New("connection refused")
	mock := &llm.MockClient{
		Errs:      []error{boom, boom, boom, nil},
		Responses: []string{"", "", "", "todo bien"},
	}
	svc, store := newTestExchange(t, mock, ExchangeOptions{MaxAttempts: 3, Fallback: "No pude responder."})

	if err := svc.Send(context.Background(), "Hola"); err != nil {
		t.Fatalf("send rejected: %v", err)
	}
	waitIdle(t, svc)

	if got := mock.CallCount(); got != 3 {
		t.Fatalf("expected exactly 3 transport attempts, got %d", got)
	}

	snapshot := store.Snapshot()
	failedMsg := snapshot[2]
	if failedMsg.Status != domain.StatusFailed {
		t.Fatalf("expected failed placeholder, got %s", failedMsg.Status)
	}
	if failedMsg.Content != "No pude responder." {
		t.Fatalf("expected fixed fallback text, got %q", failedMsg.Content)
	}

	// La conversacion sigue usable y el turno fallido no viaja como contexto.
	if err := svc.Send(context.Background(), "Sigues ahi?"); err != nil {
		t.Fatalf("send after failure rejected: %v", err)
	}
	waitIdle(t, svc)

	for _, turn := range mock.LastTurns {
		if turn.Content == "No pude responder." {
			t.Fatalf("failed message leaked into the outgoing context")
		}
	}
	last := mock.LastTurns[len(mock.LastTurns)-1]
	if last.Role != "user" || last.Content != "Sigues ahi?" {
		t.Fatalf("expected new user turn last, got %+v", last)
	}

	final := store.Snapshot()
	if final[len(final)-1].Content != "todo bien" || final[len(final)-1].Status != domain.StatusCommitted {
		t.Fatalf("expected committed reply after recovery, got %+v", final[len(final)-1])
	}
}

func TestExchangeServiceSend_EmptyReplyNotRetried(t *testing.T) {
	mock := &llm.MockClient{}
	svc, store := newTestExchange(t, mock, ExchangeOptions{MaxAttempts: 5})

	if err := svc.Send(context.Background(), "Hola"); err != nil {
		t.Fatalf("send rejected: %v", err)
	}
	waitIdle(t, svc)

	// El servidor respondio con forma invalida: un solo intento.
	if got := mock.CallCount(); got != 1 {
		t.Fatalf("expected 1 attempt for malformed reply, got %d", got)
	}
	if store.Snapshot()[2].Status != domain.StatusFailed {
		t.Fatalf("expected failed placeholder")
	}
}

func TestExchangeServiceReset_DiscardsStaleSettlement(t *testing.T) {
	client := newBlockingClient()
	svc, store := newTestExchange(t, client, ExchangeOptions{})

	if err := svc.Send(context.Background(), "Hola"); err != nil {
		t.Fatalf("send rejected: %v", err)
	}

	svc.Reset()
	if store.Len() != 1 {
		t.Fatalf("expected 1 seed message after reset, got %d", store.Len())
	}
	seedID := store.Snapshot()[0].ID

	close(client.release)
	waitIdle(t, svc)

	snapshot := store.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("stale settlement mutated the transcript: %d messages", len(snapshot))
	}
	if snapshot[0].ID != seedID || snapshot[0].Content == "respuesta tardia" {
		t.Fatalf("stale settlement overwrote the seed: %+v", snapshot[0])
	}
}

func TestExchangeServiceSend_ArchivesSettledExchange(t *testing.T) {
	archive := &mockArchive{recorded: make(chan domain.ExchangeLog, 1)}
	store := NewTranscriptStore()
	svc := NewExchangeService(store, &llm.MockClient{Responses: []string{"listo"}}, archive, zap.NewNop(), ExchangeOptions{BaseDelay: time.Millisecond})

	if err := svc.Send(context.Background(), "Hola"); err != nil {
		t.Fatalf("send rejected: %v", err)
	}

	select {
	case entry := <-archive.recorded:
		if entry.SessionID != svc.Session().ID {
			t.Fatalf("expected session id %q, got %q", svc.Session().ID, entry.SessionID)
		}
		if entry.UserText != "Hola" || entry.ReplyText != "listo" {
			t.Fatalf("unexpected archive entry %+v", entry)
		}
		if entry.Status != domain.StatusCommitted || entry.Attempts != 1 {
			t.Fatalf("unexpected status/attempts %+v", entry)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("archive entry was not recorded")
	}
}

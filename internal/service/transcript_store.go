package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"charla-llm/internal/domain"
)

// TranscriptStore es el unico dueno de la lista ordenada de mensajes de la
// sesion. Todas las mutaciones pasan por aqui; el orden de insercion es el
// orden de presentacion. Seguro para uso concurrente.
type TranscriptStore struct {
	mu        sync.Mutex
	messages  []domain.Message
	observers []func()
}

func NewTranscriptStore() *TranscriptStore {
	return &TranscriptStore{}
}

// Subscribe registra un observador que se invoca despues de cada mutacion del
// transcript (append, update o reset). Se llama fuera del lock.
func (s *TranscriptStore) Subscribe(fn func()) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Append inserta un mensaje al final y devuelve su id. Si el mensaje no trae
// id se le asigna un UUIDv7, ordenado monotonicamente por creacion.
func (s *TranscriptStore) Append(msg domain.Message) string {
	s.mu.Lock()
	if msg.ID == "" {
		msg.ID = newMessageID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.messages = append(s.messages, msg)
	id := msg.ID
	s.mu.Unlock()

	s.notify()
	return id
}

// UpdateByID aplica un patch parcial al mensaje con el id dado, conservando su
// posicion. Devuelve false si el id ya no existe; el caller debe tratar ese
// caso como un no-op silencioso (resultado obsoleto tras un reset).
func (s *TranscriptStore) UpdateByID(id string, patch domain.MessagePatch) bool {
	s.mu.Lock()
	matched := false
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if patch.Status != nil {
			s.messages[i].Status = *patch.Status
		}
		if patch.Content != nil {
			s.messages[i].Content = *patch.Content
		}
		matched = true
		break
	}
	s.mu.Unlock()

	if matched {
		s.notify()
	}
	return matched
}

// Reset descarta todos los mensajes y reinicializa el transcript con
// exactamente el mensaje semilla. Seguro de llamar con un intercambio en
// vuelo: el settlement obsoleto no encontrara su id y sera descartado.
func (s *TranscriptStore) Reset(seed domain.Message) {
	s.mu.Lock()
	if seed.ID == "" {
		seed.ID = newMessageID()
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now().UTC()
	}
	s.messages = []domain.Message{seed}
	s.mu.Unlock()

	s.notify()
}

// Snapshot devuelve una copia de la secuencia completa de mensajes en orden.
// No filtra nada; excluir Failed o Pending es responsabilidad del caller.
func (s *TranscriptStore) Snapshot() []domain.Message {
	s.mu.Lock()
	out := make([]domain.Message, len(s.messages))
	copy(out, s.messages)
	s.mu.Unlock()
	return out
}

// Len devuelve la cantidad de mensajes actuales.
func (s *TranscriptStore) Len() int {
	s.mu.Lock()
	n := len(s.messages)
	s.mu.Unlock()
	return n
}

func (s *TranscriptStore) notify() {
	s.mu.Lock()
	observers := append(([]func())(nil), s.observers...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}

func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

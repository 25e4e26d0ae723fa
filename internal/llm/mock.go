package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real. Las respuestas y errores
// se consumen en orden por llamada; la ultima entrada se repite si se agota.
type MockClient struct {
	mu        sync.Mutex
	Responses []string
	Errs      []error
	Calls     int
	LastTurns []Turn
}

func (m *MockClient) GenerateChat(_ context.Context, turns []Turn) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.Calls
	m.Calls++
	m.LastTurns = append([]Turn(nil), turns...)

	var err error
	if len(m.Errs) > 0 {
		if idx >= len(m.Errs) {
			err = m.Errs[len(m.Errs)-1]
		} else {
			err = m.Errs[idx]
		}
	}
	if err != nil {
		return "", err
	}

	if len(m.Responses) == 0 {
		return "", ErrEmptyReply
	}
	if idx >= len(m.Responses) {
		return m.Responses[len(m.Responses)-1], nil
	}
	return m.Responses[idx], nil
}

// CallCount devuelve cuantas veces se invoco GenerateChat.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

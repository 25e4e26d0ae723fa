package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"charla-llm/internal/domain"
	"charla-llm/internal/llm"
	"charla-llm/internal/repository"
)

var (
	ErrExchangeInvalidInput = errors.New("exchange invalid input")
	ErrExchangeBusy         = errors.New("exchange in flight")
)

const (
	defaultGreeting    = "¡Hola! ¿En qué te puedo ayudar hoy?"
	defaultFallback    = "Lo siento, no pude generar una respuesta. Intenta de nuevo."
	defaultMaxAttempts = 3
	defaultBaseDelay   = 2 * time.Second
)

// ExchangeOptions ajusta el comportamiento del motor de intercambios.
type ExchangeOptions struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Greeting    string
	Fallback    string
}

// ExchangeService orquesta un ciclo de envio-recepcion contra el LLM: arma el
// request desde el historial, inserta el placeholder pendiente, invoca el
// transporte con reintentos y reconcilia el resultado en el TranscriptStore.
// Garantiza un solo intercambio en vuelo por sesion.
type ExchangeService struct {
	store     *TranscriptStore
	llmClient llm.Client
	archive   repository.ExchangeLogRepository
	logger    *zap.Logger

	session     domain.Session
	busy        atomic.Bool
	maxAttempts int
	baseDelay   time.Duration
	greeting    string
	fallback    string
}

// NewExchangeService crea el motor y siembra el transcript con el saludo
// inicial del asistente. archive puede ser nil (archivo deshabilitado).
func NewExchangeService(
	store *TranscriptStore,
	llmClient llm.Client,
	archive repository.ExchangeLogRepository,
	logger *zap.Logger,
	opts ExchangeOptions,
) *ExchangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = defaultBaseDelay
	}
	if strings.TrimSpace(opts.Greeting) == "" {
		opts.Greeting = defaultGreeting
	}
	if strings.TrimSpace(opts.Fallback) == "" {
		opts.Fallback = defaultFallback
	}

	s := &ExchangeService{
		store:     store,
		llmClient: llmClient,
		archive:   archive,
		logger:    logger,
		session: domain.Session{
			ID:        uuid.NewString(),
			CreatedAt: time.Now().UTC(),
		},
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		greeting:    opts.Greeting,
		fallback:    opts.Fallback,
	}
	s.store.Reset(s.seedMessage())
	return s
}

// Session devuelve la identidad de la sesion en curso.
func (s *ExchangeService) Session() domain.Session {
	return s.session
}

// Busy informa si hay un intercambio en vuelo; la UI debe deshabilitar el
// envio mientras sea true.
func (s *ExchangeService) Busy() bool {
	return s.busy.Load()
}

// Send inicia un intercambio con el texto del usuario. Es fire-and-forget: la
// resolucion se observa via las mutaciones del transcript. Devuelve
// ErrExchangeInvalidInput con texto vacio y ErrExchangeBusy si ya hay un
// intercambio en vuelo; en ambos casos el transcript queda intacto.
func (s *ExchangeService) Send(ctx context.Context, userText string) error {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return ErrExchangeInvalidInput
	}
	if !s.busy.CompareAndSwap(false, true) {
		return ErrExchangeBusy
	}

	// Historial previo: solo turnos committed. Los Failed no envenenan los
	// requests siguientes y el placeholder jamas viaja como contexto.
	turns := buildTurns(s.store.Snapshot(), userText)

	s.store.Append(domain.Message{
		Role:    domain.RoleUser,
		Content: userText,
		Status:  domain.StatusCommitted,
	})
	placeholderID := s.store.Append(domain.Message{
		Role:   domain.RoleAssistant,
		Status: domain.StatusPending,
	})

	// El intercambio sobrevive al request que lo disparo: no hay cancelacion
	// de un vuelo en curso, solo el descarte del resultado tras un reset.
	go s.resolve(context.WithoutCancel(ctx), placeholderID, userText, turns)
	return nil
}

// Reset descarta la conversacion y la reinicializa con un saludo fresco. Un
// settlement en vuelo apuntara a un id que ya no existe y se descartara.
func (s *ExchangeService) Reset() {
	s.store.Reset(s.seedMessage())
}

func (s *ExchangeService) resolve(ctx context.Context, placeholderID, userText string, turns []llm.Turn) {
	defer s.busy.Store(false)

	attempts := 0
	reply, err := RunWithRetry(ctx, s.maxAttempts, s.baseDelay, func(ctx context.Context) (string, error) {
		attempts++
		text, err := s.llmClient.GenerateChat(ctx, turns)
		if errors.Is(err, llm.ErrEmptyReply) {
			// El servidor respondio: reintentar no va a cambiar la forma.
			return "", Permanent(err)
		}
		return text, err
	})

	status := domain.StatusCommitted
	content := reply
	if err != nil {
		s.logger.Warn("exchange failed",
			zap.String("session_id", s.session.ID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		status = domain.StatusFailed
		content = s.fallback
		reply = ""
	}

	if !s.store.UpdateByID(placeholderID, domain.MessagePatch{Status: &status, Content: &content}) {
		// Reset durante el vuelo: el resultado obsoleto se descarta en silencio.
		s.logger.Debug("stale settlement discarded",
			zap.String("session_id", s.session.ID),
			zap.String("placeholder_id", placeholderID),
		)
		return
	}

	if s.archive != nil {
		entry := domain.ExchangeLog{
			ID:        uuid.NewString(),
			SessionID: s.session.ID,
			UserText:  userText,
			ReplyText: reply,
			Status:    status,
			Attempts:  attempts,
			CreatedAt: time.Now().UTC(),
		}
		go func() {
			ctxRec, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.archive.Record(ctxRec, entry); err != nil {
				s.logger.Warn("archive exchange failed", zap.Error(err))
			}
		}()
	}
}

func (s *ExchangeService) seedMessage() domain.Message {
	return domain.Message{
		Role:    domain.RoleAssistant,
		Content: s.greeting,
		Status:  domain.StatusCommitted,
	}
}

// buildTurns mapea el historial committed a turnos de transporte y agrega el
// mensaje nuevo del usuario como turno final.
func buildTurns(history []domain.Message, userText string) []llm.Turn {
	turns := make([]llm.Turn, 0, len(history)+1)
	for _, msg := range history {
		if msg.Status != domain.StatusCommitted {
			continue
		}
		turns = append(turns, llm.Turn{Role: string(msg.Role), Content: msg.Content})
	}
	return append(turns, llm.Turn{Role: string(domain.RoleUser), Content: userText})
}

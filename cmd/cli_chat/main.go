package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"charla-llm/internal/config"
	"charla-llm/internal/domain"
	"charla-llm/internal/llm"
	"charla-llm/internal/service"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := zap.NewExample()
	defer logger.Sync()

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
	store := service.NewTranscriptStore()
	exchangeSvc := service.NewExchangeService(store, llmClient, nil, logger, service.ExchangeOptions{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
		Greeting:    cfg.GreetingText,
		Fallback:    cfg.FallbackText,
	})

	changed := make(chan struct{}, 1)
	store.Subscribe(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	fmt.Println("---- Modo Chat (escribe 'salir' para terminar, '/reset' para reiniciar) ----")
	printLastAssistant(store)

	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			fmt.Println("Saliendo del chat...")
			return
		}
		if text == "/reset" {
			exchangeSvc.Reset()
			fmt.Println("Conversacion reiniciada.")
			drain(changed)
			printLastAssistant(store)
			continue
		}

		if err := exchangeSvc.Send(ctx, text); err != nil {
			if errors.Is(err, service.ErrExchangeBusy) {
				fmt.Println("Todavia hay una respuesta en camino, espera un momento.")
			}
			continue
		}

		fmt.Print("Pensando...")
		waitSettled(exchangeSvc, changed)
		fmt.Print("\r           \r")
		printLastAssistant(store)
	}
}

// waitSettled bloquea hasta que el intercambio en vuelo se resuelva.
func waitSettled(exchangeSvc *service.ExchangeService, changed <-chan struct{}) {
	for exchangeSvc.Busy() {
		select {
		case <-changed:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func printLastAssistant(store *service.TranscriptStore) {
	messages := store.Snapshot()
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != domain.RoleAssistant || msg.Status == domain.StatusPending {
			continue
		}
		label := "Asistente"
		if msg.Status == domain.StatusFailed {
			label = "Asistente (fallo)"
		}
		fmt.Printf("%s > %s\n", label, msg.Content)
		return
	}
}

func drain(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

package domain

import "time"

// Role identifica quien produjo un mensaje dentro de la conversacion.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus describe el ciclo de vida de un mensaje en el transcript.
type MessageStatus string

const (
	// StatusCommitted indica contenido final, inmutable a partir de aqui.
	StatusCommitted MessageStatus = "committed"
	// StatusPending marca el placeholder del asistente mientras hay un
	// intercambio en vuelo. A lo sumo existe uno a la vez.
	StatusPending MessageStatus = "pending"
	// StatusFailed marca un intercambio agotado; Content lleva el texto de
	// respaldo para el usuario, nunca el error de transporte.
	StatusFailed MessageStatus = "failed"
)

// Message es una entrada del transcript. Una vez committed no se vuelve a
// mutar; la unica transicion permitida es pending -> committed/failed.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// MessagePatch aplica una actualizacion parcial sobre un mensaje existente.
// Los campos nil se dejan intactos.
type MessagePatch struct {
	Status  *MessageStatus
	Content *string
}

package domain

import "time"

// Session identifica una conversacion viva del proceso. No se persiste ni se
// restaura entre reinicios; solo etiqueta logs y el archivo de intercambios.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ExchangeLog es el registro de auditoria de un intercambio ya resuelto.
// Es de solo escritura: el transcript en memoria sigue siendo la fuente de
// verdad y nunca se reconstruye desde aqui.
type ExchangeLog struct {
	ID        string        `json:"id"`
	SessionID string        `json:"session_id"`
	UserText  string        `json:"user_text"`
	ReplyText string        `json:"reply_text,omitempty"`
	Status    MessageStatus `json:"status"`
	Attempts  int           `json:"attempts"`
	CreatedAt time.Time     `json:"created_at"`
}

package entity

import (
	"log/slog"
	"time"
)

// Phase is the position of a requester in the batch conversation.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseAwaitingLinks        Phase = "awaiting_links"
	PhaseAwaitingSiteType     Phase = "awaiting_site_type"
	PhaseAwaitingCredentials  Phase = "awaiting_credentials"
	PhaseAwaitingFormat       Phase = "awaiting_format"
	PhaseAwaitingDeliveryMode Phase = "awaiting_delivery_mode"
	PhaseProcessing           Phase = "processing"
)

// SessionState is the conversation state of one requester.
type SessionState struct {
	RequesterID            int64
	Phase                  Phase
	PendingURLs            []string
	PendingCredentialsPath string
	PendingFormat          OutputFormat
	PendingDelivery        DeliveryMode
	// PendingArchiveName is set when links came from an uploaded file.
	PendingArchiveName string
	UpdatedAt          time.Time
}

// Reset returns the state to idle and forgets every pending value.
func (s *SessionState) Reset() {
	s.Phase = PhaseIdle
	s.PendingURLs = nil
	s.PendingCredentialsPath = ""
	s.PendingFormat = ""
	s.PendingDelivery = ""
	s.PendingArchiveName = ""
}

// LogValue implements the slog.LogValuer interface for structured logging.
func (s SessionState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("requester_id", s.RequesterID),
		slog.String("phase", string(s.Phase)),
		slog.Int("pending_urls", len(s.PendingURLs)),
		slog.Bool("pending_credentials", s.PendingCredentialsPath != ""),
		slog.String("pending_format", string(s.PendingFormat)),
		slog.String("pending_delivery", string(s.PendingDelivery)),
	)
}

// Package session tracks the per-requester batch conversation.
package session

import (
	"slices"

	"bulkdl/internal/consts"
	"bulkdl/internal/entity"
)

// InputKind tells which fields of an Input are set.
type InputKind string

const (
	InputStartBatch  InputKind = "start_batch"
	InputCancel      InputKind = "cancel"
	InputLinks       InputKind = "links"
	InputCredentials InputKind = "credentials"
	InputButton      InputKind = "button"
	InputText        InputKind = "text"
	InputBatchDone   InputKind = "batch_done"
)

// Input is one event applied to a session.
type Input struct {
	Kind InputKind
	// URLs and ArchiveName come with InputLinks. ArchiveName is empty for typed links.
	URLs        []string
	ArchiveName string
	// Path is the local cookies file of InputCredentials.
	Path  string
	Token string
}

// Input constructors.
func StartBatch() Input             { return Input{Kind: InputStartBatch} }
func Cancel() Input                 { return Input{Kind: InputCancel} }
func Text() Input                   { return Input{Kind: InputText} }
func BatchDone() Input              { return Input{Kind: InputBatchDone} }
func Credentials(path string) Input { return Input{Kind: InputCredentials, Path: path} }
func Button(token string) Input     { return Input{Kind: InputButton, Token: token} }

func Links(urls []string, archiveName string) Input {
	return Input{Kind: InputLinks, URLs: urls, ArchiveName: archiveName}
}

// Effect is what the caller must do after a transition.
type Effect string

const (
	EffectNone            Effect = "none"
	EffectAskLinks        Effect = "ask_links"
	EffectAskSiteType     Effect = "ask_site_type"
	EffectAskCredentials  Effect = "ask_credentials"
	EffectAskFormat       Effect = "ask_format"
	EffectAskDeliveryMode Effect = "ask_delivery_mode"
	EffectNoLinks         Effect = "no_links"
	EffectStartBatch      Effect = "start_batch"
	EffectInvalidState    Effect = "invalid_state"
	EffectBusy            Effect = "busy"
	EffectCancelled       Effect = "cancelled"
	EffectBatchFinished   Effect = "batch_finished"
)

// Options selects the optional conversation steps.
type Options struct {
	SiteTypePrompt  bool
	FormatPrompt    bool
	DeliveryPrompt  bool
	DefaultFormat   entity.OutputFormat
	DefaultDelivery entity.DeliveryMode
}

// Machine computes session transitions. It holds no state.
type Machine struct {
	opts Options
}

// NewMachine returns a machine for opts.
func NewMachine(opts Options) Machine {
	return Machine{opts: opts}
}

// Next returns the state that follows s on in, and the effect to perform.
// s is not modified.
func (m Machine) Next(s entity.SessionState, in Input) (entity.SessionState, Effect) {
	s.PendingURLs = slices.Clone(s.PendingURLs)

	if s.Phase == "" {
		s.Phase = entity.PhaseIdle
	}

	if s.Phase == entity.PhaseProcessing {
		if in.Kind == InputBatchDone {
			s.Reset()

			return s, EffectBatchFinished
		}

		return s, EffectBusy
	}

	switch in.Kind {
	case InputCancel:
		s.Reset()

		return s, EffectCancelled
	case InputStartBatch:
		s.Reset()
		s.Phase = entity.PhaseAwaitingLinks

		return s, EffectAskLinks
	case InputBatchDone:
		return s, EffectNone
	}

	switch s.Phase {
	case entity.PhaseAwaitingLinks:
		switch in.Kind {
		case InputLinks:
			if len(in.URLs) == 0 {
				return s, EffectNoLinks
			}

			s.PendingURLs = slices.Clone(in.URLs)
			s.PendingArchiveName = in.ArchiveName

			return m.afterLinks(s)
		case InputText:
			return s, EffectNoLinks
		}
	case entity.PhaseAwaitingSiteType:
		if in.Kind == InputButton {
			switch in.Token {
			case consts.TokenSitePublic:
				return m.afterCredentials(s)
			case consts.TokenSitePrivate:
				s.Phase = entity.PhaseAwaitingCredentials

				return s, EffectAskCredentials
			}
		}
	case entity.PhaseAwaitingCredentials:
		if in.Kind == InputCredentials && in.Path != "" {
			s.PendingCredentialsPath = in.Path

			return m.afterCredentials(s)
		}
	case entity.PhaseAwaitingFormat:
		if in.Kind == InputButton {
			switch in.Token {
			case consts.TokenFormatRaw:
				s.PendingFormat = entity.FormatRaw

				return m.afterFormat(s)
			case consts.TokenFormatMP3:
				s.PendingFormat = entity.FormatMP3

				return m.afterFormat(s)
			}
		}
	case entity.PhaseAwaitingDeliveryMode:
		if in.Kind == InputButton {
			switch in.Token {
			case consts.TokenDeliveryArchive:
				s.PendingDelivery = entity.DeliveryArchive

				return m.process(s)
			case consts.TokenDeliveryIndividual:
				s.PendingDelivery = entity.DeliveryIndividual

				return m.process(s)
			}
		}
	}

	s.Reset()

	return s, EffectInvalidState
}

func (m Machine) afterLinks(s entity.SessionState) (entity.SessionState, Effect) {
	if m.opts.SiteTypePrompt {
		s.Phase = entity.PhaseAwaitingSiteType

		return s, EffectAskSiteType
	}

	return m.afterCredentials(s)
}

func (m Machine) afterCredentials(s entity.SessionState) (entity.SessionState, Effect) {
	if m.opts.FormatPrompt {
		s.Phase = entity.PhaseAwaitingFormat

		return s, EffectAskFormat
	}

	s.PendingFormat = m.opts.DefaultFormat

	return m.afterFormat(s)
}

func (m Machine) afterFormat(s entity.SessionState) (entity.SessionState, Effect) {
	if m.opts.DeliveryPrompt {
		s.Phase = entity.PhaseAwaitingDeliveryMode

		return s, EffectAskDeliveryMode
	}

	s.PendingDelivery = m.opts.DefaultDelivery

	return m.process(s)
}

func (m Machine) process(s entity.SessionState) (entity.SessionState, Effect) {
	s.Phase = entity.PhaseProcessing

	return s, EffectStartBatch
}

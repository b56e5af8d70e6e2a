// Package protocol defines the bus subjects and JSON payloads spoken
// between the daemon and its front-ends.
package protocol

import "time"

// Control subjects consumed by the voice service. Front-ends publish user
// gestures here.
const (
	SubjectVoiceOpen    = "voice.control.open"
	SubjectVoiceClose   = "voice.control.close"
	SubjectVoiceMic     = "voice.control.mic"
	SubjectVoiceConfirm = "voice.control.confirm"
	SubjectVoiceReject  = "voice.control.reject"
	SubjectVoicePlay    = "voice.control.play"
	SubjectVoicePause   = "voice.control.pause"
	SubjectVoiceSeek    = "voice.control.seek"
	SubjectVoiceSkip    = "voice.control.skip"

	SubjectVoiceControlWildcard = "voice.control.>"
)

// Notice subjects published by the voice service.
const (
	SubjectVoiceState            = "voice.state"
	SubjectVoiceTranscript       = "voice.transcript"
	SubjectVoiceNotice           = "voice.notice"
	SubjectVoicePlaybackPosition = "voice.playback.position"
	SubjectVoicePlaybackEnded    = "voice.playback.ended"
)

// Text chat and conversation management subjects. Requests use
// request/reply; replies carry ChatAnswer or ConversationList payloads.
const (
	SubjectChatAsk = "chat.ask"

	SubjectConversationList   = "conversation.list"
	SubjectConversationCreate = "conversation.create"
	SubjectConversationSwitch = "conversation.switch"
	SubjectConversationRename = "conversation.rename"
	SubjectConversationDelete = "conversation.delete"

	SubjectConversationWildcard = "conversation.*"
)

// SeekCommand is the payload for seek and skip gestures, in seconds.
// Seek is absolute, skip is a signed delta.
type SeekCommand struct {
	Seconds float64 `json:"seconds"`
}

// StateNotice announces a session state change.
type StateNotice struct {
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// TranscriptNotice carries the captured utterance awaiting confirmation.
type TranscriptNotice struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice is a user-visible message, level "info" or "error".
type Notice struct {
	Level     string    `json:"level"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// PlaybackPosition is published periodically while the answer plays.
type PlaybackPosition struct {
	PositionMS int64 `json:"position_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// ChatRequest is the text submission path, bypassing the voice flow.
type ChatRequest struct {
	Identity string `json:"identity,omitempty"`
	Text     string `json:"text"`
	Audio    bool   `json:"audio,omitempty"`
}

// ChatAnswer is the reply to a ChatRequest.
type ChatAnswer struct {
	MessageID string       `json:"message_id"`
	Text      string       `json:"text"`
	Sources   []ChatSource `json:"sources,omitempty"`
	AudioURL  string       `json:"audio_url,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ChatSource is a cited scripture passage backing an answer.
type ChatSource struct {
	ReferenceID string `json:"reference_id"`
	Sanskrit    string `json:"sanskrit,omitempty"`
	Commentary  string `json:"commentary,omitempty"`
	Author      string `json:"author,omitempty"`
}

// ConversationRef addresses one stored conversation.
type ConversationRef struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// ConversationSummary is one entry of a conversation listing.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationListReply answers a list request, newest first.
type ConversationListReply struct {
	ActiveID      string                `json:"active_id,omitempty"`
	Conversations []ConversationSummary `json:"conversations"`
	Error         string                `json:"error,omitempty"`
}

// Ack is the generic reply for mutating conversation commands.
type Ack struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error,omitempty"`
}

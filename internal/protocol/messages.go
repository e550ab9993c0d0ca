package protocol

import "time"

// ChatMessage is an inbound text event published by the chat-platform
// gateway on chat.message.<tenant>.
type ChatMessage struct {
	TenantID       string    `json:"tenant_id"`
	ChannelID      string    `json:"channel_id"`
	SpeakerID      string    `json:"speaker_id"`
	SpeakerName    string    `json:"speaker_name"`
	Content        string    `json:"content"`
	HasAttachments bool      `json:"has_attachments,omitempty"`
	Bot            bool      `json:"bot,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// PresenceEvent reports a user joining or leaving the tenant's voice target.
type PresenceEvent struct {
	TenantID  string    `json:"tenant_id"`
	UserName  string    `json:"user_name"`
	Joined    bool      `json:"joined"`
	Timestamp time.Time `json:"timestamp"`
}

// ControlRequest is the request side of the tts.control.<tenant>
// request/reply surface.
type ControlRequest struct {
	Op        string  `json:"op"`
	TenantID  string  `json:"tenant_id"`
	ChannelID string  `json:"channel_id,omitempty"`
	Target    string  `json:"target,omitempty"` // voice target for join
	SpeakerID string  `json:"speaker_id,omitempty"`
	Level     int     `json:"level,omitempty"` // volume percent 0-200
	Rate      float64 `json:"rate,omitempty"`  // speaking rate 0.5-2.0
	ModelUUID string  `json:"model_uuid,omitempty"`
	Word      string  `json:"word,omitempty"`
	Reading   string  `json:"reading,omitempty"`
}

// Control operation names.
const (
	OpJoin       = "join"
	OpLeave      = "leave"
	OpMute       = "mute"
	OpUnmute     = "unmute"
	OpPause      = "pause"
	OpResume     = "resume"
	OpSkip       = "skip"
	OpVolume     = "volume"
	OpChannel    = "channel"
	OpQueue      = "queue"
	OpDictAdd    = "dict.add"
	OpDictRemove = "dict.remove"
	OpDictList   = "dict.list"
	OpSetModel   = "setting.model"
	OpSetSpeed   = "setting.speed"
	OpSetVolume  = "setting.volume"
	OpSetView    = "setting.view"
	OpSetReset   = "setting.reset"
)

// QueueEntry is one previewed pending item in a ControlReply.
type QueueEntry struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
}

// SpeakerSettings mirrors a speaker's stored preferences in replies.
type SpeakerSettings struct {
	ModelUUID     string  `json:"model_uuid"`
	SpeakingRate  float64 `json:"speaking_rate"`
	VolumePercent int     `json:"volume_percent"`
}

// ControlReply is the reply side of the control surface. Error text is
// user-visible; transport- and synthesis-level faults never surface here.
type ControlReply struct {
	OK       bool              `json:"ok"`
	Error    string            `json:"error,omitempty"`
	Applied  bool              `json:"applied,omitempty"` // pause/resume/skip actually took effect
	Queue    []QueueEntry      `json:"queue,omitempty"`
	Pending  int               `json:"pending,omitempty"` // total queued, including beyond preview
	Words    map[string]string `json:"words,omitempty"`
	Settings *SpeakerSettings  `json:"settings,omitempty"`
}

const (
	SubjectChatMessagePrefix = "chat.message"
	SubjectPresencePrefix    = "chat.presence"
	SubjectControlPrefix     = "tts.control"
)

// Package suno wraps the third-party music generation API: synchronous job
// submission, the asynchronous callback payloads it pushes back, and the
// pull-style record-info endpoint.
package suno

// Callback type values pushed by the provider.
const (
	CallbackTypeText     = "text"
	CallbackTypeFirst    = "first"
	CallbackTypeComplete = "complete"
	CallbackTypeError    = "error"
)

// Provider status strings returned by the record-info endpoint.
const (
	StatusPending  = "pending"
	StatusText     = "text"
	StatusFirst    = "first"
	StatusComplete = "complete"
	StatusError    = "error"
)

// GenerateRequest is the body sent to the provider's generate endpoint.
type GenerateRequest struct {
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
	Model        string `json:"model,omitempty"`
	Instrumental bool   `json:"instrumental"`
	CallbackURL  string `json:"callback_url,omitempty"`
}

type generateResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID string `json:"task_id"`
	} `json:"data"`
}

// RawTrack is one track entry as the provider ships it. The provider is
// inconsistent about field names: resource locators may arrive under the
// primary name or under a source_ variant, and either may be absent.
type RawTrack struct {
	ID                   string  `json:"id"`
	AudioURL             string  `json:"audio_url"`
	SourceAudioURL       string  `json:"source_audio_url"`
	StreamAudioURL       string  `json:"stream_audio_url"`
	SourceStreamAudioURL string  `json:"source_stream_audio_url"`
	ImageURL             string  `json:"image_url"`
	SourceImageURL       string  `json:"source_image_url"`
	Duration             float64 `json:"duration"`
	Title                string  `json:"title"`
	Tags                 string  `json:"tags"`
	ModelName            string  `json:"model_name"`
	Prompt               string  `json:"prompt"`
	CreatedAt            string  `json:"created_at"`
}

// CallbackPayload is the body the provider POSTs to the webhook endpoint.
// Track entries are only present for first/complete callbacks.
type CallbackPayload struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		CallbackType string     `json:"callbackType"`
		TaskID       string     `json:"task_id"`
		Data         []RawTrack `json:"data"`
	} `json:"data"`
}

type recordInfoResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		TaskID   string `json:"taskId"`
		Status   string `json:"status"`
		Response struct {
			SunoData []RawTrack `json:"sunoData"`
		} `json:"response"`
	} `json:"data"`
}

// RecordInfo is the client-facing result of a record-info poll.
type RecordInfo struct {
	TaskID string
	Status string
	Tracks []RawTrack
}

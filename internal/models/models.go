package models

import "time"

// ImagePayload is an encoded image ready to be sent to a vision model
type ImagePayload struct {
	Data        []byte `json:"-"`
	ContentType string `json:"content_type"` // e.g. "image/png"
}

// Audio is an encoded audio clip
type Audio struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// Source is a web citation returned alongside a grounded answer
type Source struct {
	Title string `json:"title,omitempty" yaml:"title,omitempty"`
	URI   string `json:"uri" yaml:"uri"`
}

// AnalysisResult is the output of one pipeline run
type AnalysisResult struct {
	LandmarkLabel  string        `json:"landmark_label"`
	HistoryText    string        `json:"history_text"`
	NarrationAudio *Audio        `json:"-"`
	Sources        []Source      `json:"sources,omitempty"`
	NarrationError string        `json:"narration_error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// AudioAvailable reports whether narration audio was produced
func (r *AnalysisResult) AudioAvailable() bool {
	return r != nil && r.NarrationAudio != nil && len(r.NarrationAudio.Data) > 0
}

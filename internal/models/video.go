package models

import (
	"encoding/json"
	"time"
)

// VideoResult is one educational video returned by video search
type VideoResult struct {
	VideoID      string        `json:"video_id"`
	Title        string        `json:"title"`
	Description  string        `json:"description"`
	ChannelTitle string        `json:"channel_title"`
	Thumbnail    string        `json:"thumbnail"`
	Duration     time.Duration `json:"-"`
	PublishedAt  time.Time     `json:"published_at"`
	URL          string        `json:"url"`
}

// MarshalJSON customizes JSON marshaling for VideoResult to render the
// duration in seconds
func (v VideoResult) MarshalJSON() (result0 []byte, err error) {
	return json.Marshal(&struct {
		VideoID         string    `json:"video_id"`
		Title           string    `json:"title"`
		Description     string    `json:"description"`
		ChannelTitle    string    `json:"channel_title"`
		Thumbnail       string    `json:"thumbnail"`
		DurationSeconds int       `json:"duration_seconds"`
		PublishedAt     time.Time `json:"published_at"`
		URL             string    `json:"url"`
	}{
		VideoID:         v.VideoID,
		Title:           v.Title,
		Description:     v.Description,
		ChannelTitle:    v.ChannelTitle,
		Thumbnail:       v.Thumbnail,
		DurationSeconds: int(v.Duration.Seconds()),
		PublishedAt:     v.PublishedAt,
		URL:             v.URL,
	})
}

// VideoSearchRequest searches for educational videos
type VideoSearchRequest struct {
	Query      string `json:"query" binding:"required" form:"query"`
	Subject    string `json:"subject,omitempty" form:"subject"`
	MaxResults int    `json:"max_results,omitempty" form:"max_results"`
}

// VideoSearchResponse is the search result envelope
type VideoSearchResponse struct {
	Query  string        `json:"query"`
	Videos []VideoResult `json:"videos"`
}

package events

import "desacordo-backend/internal/models"

type StatusChange struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type History struct {
	ChannelID string           `json:"channelId"`
	Messages  []models.Message `json:"messages"`
}

type TypingNotice struct {
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	UserName  string `json:"username"`
}

type ErrorNotice struct {
	Kind    ErrorKind `json:"kind"`
	Event   string    `json:"event,omitempty"`
	Message string    `json:"message"`
}

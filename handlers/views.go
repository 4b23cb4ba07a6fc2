package handlers

import (
	"time"

	"geochat/models"
)

const decryptFailedMsg = "decryption failed"

// messageView omits the body of a row that could not be decrypted and reports the failure instead.
type messageView struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	ThreadID   int64     `json:"thread_id"`
	Body       *string   `json:"body,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Error      string    `json:"error,omitempty"`
}

func newMessageView(m models.Message) messageView {
	v := messageView{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		ThreadID:   m.ThreadID,
		Timestamp:  m.Timestamp,
	}
	if m.Err != nil {
		v.Error = decryptFailedMsg
	} else {
		body := m.Body
		v.Body = &body
	}
	return v
}

func newMessageViews(msgs []models.Message) []messageView {
	views := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, newMessageView(m))
	}
	return views
}

type commentView struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id,omitempty"`
	Author      string    `json:"author"`
	Topic       string    `json:"topic"`
	Body        *string   `json:"body,omitempty"`
	Location    string    `json:"location"`
	IsPrivate   bool      `json:"is_private"`
	IsAnonymous bool      `json:"is_anonymous"`
	Timestamp   string    `json:"timestamp"`
	PostedAt    time.Time `json:"posted_at"`
	Error       string    `json:"error,omitempty"`
}

// newCommentView hides the author of an anonymous comment from everyone but the author.
func newCommentView(c models.Comment, requesterID int64) commentView {
	v := commentView{
		ID:          c.ID,
		Author:      c.DisplayName(),
		Topic:       c.Topic,
		Location:    c.Location,
		IsPrivate:   c.IsPrivate,
		IsAnonymous: c.IsAnonymous,
		Timestamp:   c.Timestamp,
		PostedAt:    c.PostedAt,
	}
	if !c.IsAnonymous || c.UserID == requesterID {
		uid := c.UserID
		v.UserID = &uid
	}
	if c.Err != nil {
		v.Error = decryptFailedMsg
	} else {
		body := c.Body
		v.Body = &body
	}
	return v
}

func newCommentViews(cs []models.Comment, requesterID int64) []commentView {
	views := make([]commentView, 0, len(cs))
	for _, c := range cs {
		views = append(views, newCommentView(c, requesterID))
	}
	return views
}

type mappedCommentView struct {
	commentView
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func newMappedCommentViews(cs []models.MappedComment, requesterID int64) []mappedCommentView {
	views := make([]mappedCommentView, 0, len(cs))
	for _, c := range cs {
		views = append(views, mappedCommentView{commentView: newCommentView(c.Comment, requesterID), Lat: c.Lat, Lon: c.Lon})
	}
	return views
}

package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"geochat/models"
)

func HandleConversations(w http.ResponseWriter, r *http.Request, app App) {
	partners, err := app.Threads().Partners(r.Context(), currentUser(r).ID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, partners, app)
}

func HandleListThreads(w http.ResponseWriter, r *http.Request, app App) {
	ids, err := app.Threads().ThreadsForUser(r.Context(), currentUser(r).ID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]int64{"thread_ids": ids}, app)
}

// HandleResolveThread returns the thread the caller shares with another user, or 404.
func HandleResolveThread(w http.ResponseWriter, r *http.Request, app App) {
	otherID, err := idParam(r, "userID")
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	threadID, found, err := app.Threads().Resolve(r.Context(), currentUser(r).ID, otherID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	if !found {
		respondError(w, r, app, models.ErrNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int64{"thread_id": threadID}, app)
}

func HandleAllocateThread(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := app.Threads().Allocate(r.Context())
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]int64{"thread_id": threadID}, app)
}

type sendRequest struct {
	ReceiverID int64  `json:"receiver_id"`
	Body       string `json:"body"`
	ThreadID   *int64 `json:"thread_id"`
}

// HandleSendMessage appends to the given thread, or to the pair's thread when none is named.
func HandleSendMessage(w http.ResponseWriter, r *http.Request, app App) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	me := currentUser(r)
	ctx := r.Context()

	if req.ReceiverID <= 0 {
		respondError(w, r, app, fmt.Errorf("%w: receiver_id is required", models.ErrPrecondition))
		return
	}
	if _, err := app.Auth().GetUser(ctx, req.ReceiverID); err != nil {
		respondError(w, r, app, err)
		return
	}

	var (
		msg models.Message
		err error
	)
	if req.ThreadID != nil {
		if *req.ThreadID > 0 {
			admitted, aerr := app.Threads().Admits(ctx, *req.ThreadID, me.ID, req.ReceiverID)
			if aerr != nil {
				respondError(w, r, app, aerr)
				return
			}
			if !admitted {
				respondError(w, r, app, models.ErrForbidden)
				return
			}
		}
		msg, err = app.Messages().Send(ctx, me.ID, req.ReceiverID, req.Body, *req.ThreadID)
	} else {
		msg, err = app.Messages().SendDirect(ctx, me.ID, req.ReceiverID, req.Body)
	}
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusCreated, newMessageView(msg), app)
}

// HandleThreadMessages lists a thread's messages between the caller and the user named by ?with=.
func HandleThreadMessages(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := idParam(r, "threadID")
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	withID, err := strconv.ParseInt(r.URL.Query().Get("with"), 10, 64)
	if err != nil || withID <= 0 {
		respondError(w, r, app, fmt.Errorf("%w: with must name a user id", models.ErrPrecondition))
		return
	}
	msgs, err := app.Messages().ListThreadMessages(r.Context(), threadID, currentUser(r).ID, withID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newMessageViews(msgs), app)
}

func HandleRecentMessages(w http.ResponseWriter, r *http.Request, app App) {
	threadID, err := idParam(r, "threadID")
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	msgs, err := app.Messages().ListRecentForUser(r.Context(), currentUser(r).ID, threadID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newMessageViews(msgs), app)
}

// HandleDeleteMessage lets the sender or receiver remove one message.
func HandleDeleteMessage(w http.ResponseWriter, r *http.Request, app App) {
	messageID, err := idParam(r, "messageID")
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	msg, err := app.Messages().Get(r.Context(), messageID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	if !msg.Involves(currentUser(r).ID) {
		respondError(w, r, app, models.ErrForbidden)
		return
	}
	if err := app.Messages().Delete(r.Context(), messageID); err != nil {
		respondError(w, r, app, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

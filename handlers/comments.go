package handlers

import (
	"fmt"
	"net/http"

	"geochat/models"
)

type commentRequest struct {
	Topic       string `json:"topic"`
	Body        string `json:"body"`
	Location    string `json:"location"`
	IsPrivate   bool   `json:"is_private"`
	IsAnonymous bool   `json:"is_anonymous"`
}

func HandleCreateComment(w http.ResponseWriter, r *http.Request, app App) {
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	user := currentUser(r)
	c, err := app.Comments().Insert(r.Context(), models.NewComment{
		UserID:      user.ID,
		Topic:       req.Topic,
		Body:        req.Body,
		Location:    req.Location,
		IsPrivate:   req.IsPrivate,
		IsAnonymous: req.IsAnonymous,
	})
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusCreated, newCommentView(c, user.ID), app)
}

// HandleListComments lists every public comment plus the caller's private ones.
func HandleListComments(w http.ResponseWriter, r *http.Request, app App) {
	user := currentUser(r)
	cs, err := app.Comments().ListVisible(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newCommentViews(cs, user.ID), app)
}

func HandleCommentMap(w http.ResponseWriter, r *http.Request, app App) {
	user := currentUser(r)
	cs, err := app.Comments().ListWithLocations(r.Context(), user.ID)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newMappedCommentViews(cs, user.ID), app)
}

func HandleSearchComments(w http.ResponseWriter, r *http.Request, app App) {
	user := currentUser(r)
	cs, err := app.Comments().Search(r.Context(), user.ID, r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newCommentViews(cs, user.ID), app)
}

// HandleSuggestLocations autocompletes the location field of a new comment.
func HandleSuggestLocations(w http.ResponseWriter, r *http.Request, app App) {
	names, err := app.Comments().SuggestLocations(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]string{"suggestions": names}, app)
}

type privacyRequest struct {
	IsPrivate *bool `json:"is_private"`
}

// HandleSetCommentPrivacy flips one of the caller's comments between public and private.
func HandleSetCommentPrivacy(w http.ResponseWriter, r *http.Request, app App) {
	commentID, err := idParam(r, "commentID")
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	var req privacyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, app, err)
		return
	}
	if req.IsPrivate == nil {
		respondError(w, r, app, fmt.Errorf("%w: is_private is required", models.ErrPrecondition))
		return
	}
	user := currentUser(r)
	c, err := app.Comments().SetPrivacy(r.Context(), commentID, user.ID, *req.IsPrivate)
	if err != nil {
		respondError(w, r, app, err)
		return
	}
	respondJSON(w, http.StatusOK, newCommentView(c, user.ID), app)
}

// Package comments stores map-pinned comments. Private comments are encrypted at rest.
package comments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"

	"geochat/config"
	"geochat/database"
	"geochat/geo"
	"geochat/models"
	"geochat/utils"
	"geochat/vault"
)

type Store struct {
	db       *database.DatabaseService
	cipher   *vault.Cipher
	resolver geo.Resolver
	workers  int
	logger   *slog.Logger
}

func NewStore(db *database.DatabaseService, cipher *vault.Cipher, resolver geo.Resolver, logger *slog.Logger) *Store {
	return &Store{
		db:       db,
		cipher:   cipher,
		resolver: resolver,
		workers:  config.GeocodeWorkers,
		logger:   logger.With("component", "comments"),
	}
}

func validateText(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", models.ErrPrecondition, field)
	}
	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s must be valid UTF-8 text", models.ErrPrecondition, field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", models.ErrPrecondition, field, maxLen)
	}
	return nil
}

// Insert stores one comment. Private comments are encrypted and flagged as such;
// anonymous comments are stored with the anonymous name in place of the username.
func (s *Store) Insert(ctx context.Context, nc models.NewComment) (models.Comment, error) {
	if nc.UserID <= 0 {
		return models.Comment{}, fmt.Errorf("%w: author is required", models.ErrPrecondition)
	}
	if err := validateText("topic", nc.Topic, config.MaxTopicLen); err != nil {
		return models.Comment{}, err
	}
	if err := validateText("body", nc.Body, config.MaxCommentLen); err != nil {
		return models.Comment{}, err
	}
	if err := validateText("location", nc.Location, config.MaxLocationLen); err != nil {
		return models.Comment{}, err
	}

	body := []byte(nc.Body)
	if nc.IsPrivate {
		ciphertext, err := s.cipher.Encrypt(nc.Body)
		if err != nil {
			return models.Comment{}, fmt.Errorf("encrypt comment: %w", err)
		}
		body = ciphertext
	}

	stored, err := s.db.InsertComment(ctx, models.StoredComment{
		UserID:      nc.UserID,
		Topic:       nc.Topic,
		Body:        body,
		Location:    strings.TrimSpace(nc.Location),
		IsPrivate:   nc.IsPrivate,
		IsEncrypted: nc.IsPrivate,
		IsAnonymous: nc.IsAnonymous,
		PostedAt:    utils.GetSQLTime(),
	})
	if err != nil {
		return models.Comment{}, err
	}

	c := toComment(stored)
	c.Body = nc.Body
	return c, nil
}

// ListVisible returns public comments plus the requester's own private ones, oldest first.
// A row that fails to decrypt carries Err and an empty Body.
func (s *Store) ListVisible(ctx context.Context, requesterID int64) ([]models.Comment, error) {
	rows, err := s.db.GetVisibleComments(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Comment, 0, len(rows))
	for _, row := range rows {
		out = append(out, s.open(row))
	}
	return out, nil
}

// ListWithLocations is ListVisible joined with resolved coordinates. Comments whose
// location cannot be resolved are left out. Input order is kept.
func (s *Store) ListWithLocations(ctx context.Context, requesterID int64) ([]models.MappedComment, error) {
	visible, err := s.ListVisible(ctx, requesterID)
	if err != nil {
		return nil, err
	}

	type result struct {
		coords models.Coordinates
		ok     bool
	}
	results := make([]result, len(visible))
	sem := make(chan struct{}, max(1, s.workers))
	var wg sync.WaitGroup
	for i := range visible {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			coords, err := s.resolver.Resolve(ctx, visible[i].Location)
			if err != nil {
				s.logger.Debug("Skipping comment with unresolved location", "comment_id", visible[i].ID, "error", err)
				return
			}
			results[i] = result{coords: coords, ok: true}
		}(i)
	}
	wg.Wait()

	mapped := make([]models.MappedComment, 0, len(visible))
	for i, r := range results {
		if r.ok {
			mapped = append(mapped, models.MappedComment{Comment: visible[i], Coordinates: r.coords})
		}
	}
	return mapped, nil
}

// Search returns visible comments whose body contains substring (case-sensitive).
// Rows that failed to decrypt never match.
func (s *Store) Search(ctx context.Context, requesterID int64, substring string) ([]models.Comment, error) {
	visible, err := s.ListVisible(ctx, requesterID)
	if err != nil {
		return nil, err
	}
	matches := make([]models.Comment, 0)
	for _, c := range visible {
		if c.Err == nil && strings.Contains(c.Body, substring) {
			matches = append(matches, c)
		}
	}
	return matches, nil
}

// SuggestLocations offers place names for a partially typed location. A geocoder
// failure is logged and yields no suggestions.
func (s *Store) SuggestLocations(ctx context.Context, prefix string) ([]string, error) {
	if err := validateText("location", prefix, config.MaxLocationLen); err != nil {
		return nil, err
	}
	suggester, ok := s.resolver.(geo.Suggester)
	if !ok {
		return []string{}, nil
	}
	names, err := suggester.Suggest(ctx, prefix, config.MaxSuggestions)
	if err != nil {
		s.logger.Warn("Location suggestions failed", "prefix", prefix, "error", err)
		return []string{}, nil
	}
	return names, nil
}

// SetPrivacy changes the privacy of one comment owned by requesterID. The body is
// re-encrypted or decrypted so is_encrypted keeps matching is_private.
func (s *Store) SetPrivacy(ctx context.Context, commentID, requesterID int64, private bool) (models.Comment, error) {
	var plaintext string
	stored, err := s.db.UpdateCommentPrivacy(ctx, commentID, requesterID, func(c *models.StoredComment) error {
		body := string(c.Body)
		if c.IsEncrypted {
			decrypted, err := s.cipher.Decrypt(c.Body)
			if err != nil {
				return fmt.Errorf("comment %d: %w", c.ID, err)
			}
			body = decrypted
		}
		plaintext = body

		if private == c.IsPrivate && private == c.IsEncrypted {
			return nil
		}
		if private {
			ciphertext, err := s.cipher.Encrypt(body)
			if err != nil {
				return fmt.Errorf("encrypt comment: %w", err)
			}
			c.Body = ciphertext
		} else {
			c.Body = []byte(body)
		}
		c.IsPrivate, c.IsEncrypted = private, private
		return nil
	})
	if err != nil {
		return models.Comment{}, err
	}

	c := toComment(stored)
	c.Body = plaintext
	return c, nil
}

func (s *Store) open(row models.StoredComment) models.Comment {
	c := toComment(row)
	if !row.IsEncrypted {
		c.Body = string(row.Body)
		return c
	}
	body, err := s.cipher.Decrypt(row.Body)
	if err != nil {
		s.logger.Warn("Failed to decrypt comment", "comment_id", row.ID, "error", err)
		c.Err = err
		return c
	}
	c.Body = body
	return c
}

func toComment(row models.StoredComment) models.Comment {
	return models.Comment{
		ID:                row.ID,
		UserID:            row.UserID,
		Topic:             row.Topic,
		Location:          row.Location,
		IsPrivate:         row.IsPrivate,
		IsEncrypted:       row.IsEncrypted,
		IsAnonymous:       row.IsAnonymous,
		AnonymousUsername: row.AnonymousUsername,
		Username:          row.Username,
		Timestamp:         utils.CommentTimestamp(row.PostedAt),
		PostedAt:          row.PostedAt,
	}
}

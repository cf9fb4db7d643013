package sharestage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/FJFJ0400/capture-ai/internal/capture"
	"github.com/FJFJ0400/capture-ai/internal/dto"
)

var ErrNoFiles = errors.New("no image files to stage")

// Uploader сохраняет файлы как снимки.
type Uploader interface {
	Upload(ctx context.Context, files []capture.UploadFile, purposeID *uuid.UUID) ([]capture.UploadResult, error)
}

// Staged - результат приёма файлов.
type Staged struct {
	Token     string
	Files     int
	ExpiresAt time.Time
}

type Service interface {
	Stage(ctx context.Context, files []dto.StagedFile) (Staged, error)
	Get(ctx context.Context, token string) (Payload, error)
	Drop(ctx context.Context, token string) error
	// Commit загружает подготовленные файлы и удаляет запись.
	Commit(ctx context.Context, token string, purposeID *uuid.UUID) ([]capture.UploadResult, error)
}

type service struct {
	store    Store
	signer   *Signer
	uploader Uploader
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewService(store Store, signer *Signer, uploader Uploader, ttl time.Duration, logger zerolog.Logger) Service {
	if ttl <= 0 {
		ttl = 20 * time.Minute
	}
	return &service{
		store:    store,
		signer:   signer,
		uploader: uploader,
		ttl:      ttl,
		log:      logger.With().Str("component", "share_stage").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Stage(ctx context.Context, files []dto.StagedFile) (Staged, error) {
	if len(files) == 0 {
		return Staged{}, ErrNoFiles
	}

	token, id, expiresAt, err := s.signer.Issue(s.ttl)
	if err != nil {
		return Staged{}, fmt.Errorf("issue share token: %w", err)
	}
	payload := Payload{CreatedAt: s.now(), Files: files}
	if err := s.store.Put(ctx, id, payload, s.ttl); err != nil {
		return Staged{}, fmt.Errorf("stage share: %w", err)
	}

	s.log.Info().Str("stage_id", id).Int("files", len(files)).Msg("share staged")
	return Staged{Token: token, Files: len(files), ExpiresAt: expiresAt.UTC()}, nil
}

func (s *service) Get(ctx context.Context, token string) (Payload, error) {
	id, err := s.resolve(token)
	if err != nil {
		return Payload{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *service) Drop(ctx context.Context, token string) error {
	id, err := s.resolve(token)
	if err != nil {
		// просроченный токен: удалять нечего
		return nil
	}
	return s.store.Delete(ctx, id)
}

func (s *service) Commit(ctx context.Context, token string, purposeID *uuid.UUID) ([]capture.UploadResult, error) {
	id, err := s.resolve(token)
	if err != nil {
		return nil, err
	}
	payload, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	files := make([]capture.UploadFile, 0, len(payload.Files))
	for _, f := range payload.Files {
		data, err := base64.StdEncoding.DecodeString(f.Base64)
		if err != nil {
			return nil, fmt.Errorf("decode staged file %q: %w", f.Name, err)
		}
		files = append(files, capture.UploadFile{Filename: f.Name, MimeType: f.Type, Data: data})
	}

	results, err := s.uploader.Upload(ctx, files, purposeID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("stage_id", id).Msg("failed to drop committed share")
	}
	return results, nil
}

func (s *service) resolve(token string) (string, error) {
	id, err := s.signer.Parse(token)
	if err != nil {
		return "", ErrNotFound
	}
	return id, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/catalog"
	"github.com/restyleworks/restyle/internal/config"
	"github.com/restyleworks/restyle/internal/generation/domain"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/observability/metrics"
	"github.com/restyleworks/restyle/internal/providers/inference"
	"github.com/restyleworks/restyle/internal/providers/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Node      *snowflake.Node
	Config    config.Config
	Repo      domain.Repository
	Ledger    ledgerdomain.Service
	Catalog   *catalog.Holder
	Store     storage.ObjectStore
	Inference inference.Client
	Metrics   *metrics.Metrics `optional:"true"`
}

type generationService struct {
	db         *gorm.DB
	log        *zap.Logger
	node       *snowflake.Node
	repo       domain.Repository
	ledger     ledgerdomain.Service
	catalog    *catalog.Holder
	store      storage.ObjectStore
	inference  inference.Client
	metrics    *metrics.Metrics
	presignTTL time.Duration
}

func New(p Params) domain.Service {
	ttl := time.Duration(p.Config.Storage.PresignTTLMins) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &generationService{
		db:         p.DB,
		log:        p.Log.Named("generation.service"),
		node:       p.Node,
		repo:       p.Repo,
		ledger:     p.Ledger,
		catalog:    p.Catalog,
		store:      p.Store,
		inference:  p.Inference,
		metrics:    p.Metrics,
		presignTTL: ttl,
	}
}

func (s *generationService) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.View, error) {
	if req.UserID == 0 || req.InputImageKey == "" {
		return nil, domain.ErrInvalidRequest
	}
	style, err := s.catalog.StyleBySlug(req.StyleSlug)
	if err != nil {
		return nil, err
	}
	room, err := s.catalog.RoomBySlug(req.RoomType)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Stat(ctx, req.InputImageKey); err != nil {
		return nil, domain.ErrInputMissing
	}

	gen := &domain.Generation{
		ID:            s.node.Generate(),
		UserID:        req.UserID,
		StyleSlug:     style.Slug,
		RoomType:      room.Slug,
		Prompt:        catalog.RenderPrompt(style, room),
		InputImageKey: req.InputImageKey,
		Status:        domain.StatusPending,
		Cost:          style.Cost,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}

	// Debit and pending record commit together: a crash between the two
	// cannot charge without leaving a refundable record behind.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		genID := gen.ID
		if _, err := s.ledger.DebitTx(ctx, tx, ledgerdomain.DebitRequest{
			UserID:       req.UserID,
			Amount:       style.Cost,
			Type:         ledgerdomain.TypeGeneration,
			Description:  fmt.Sprintf("generation %s / %s", style.Slug, room.Slug),
			GenerationID: &genID,
		}); err != nil {
			return err
		}
		return s.repo.Insert(ctx, tx, gen)
	})
	if err != nil {
		return nil, err
	}

	inputURL, err := s.store.PresignGet(ctx, gen.InputImageKey, s.presignTTL)
	if err != nil {
		return nil, s.failBeforeProcessing(ctx, gen, fmt.Sprintf("presign input: %v", err), err)
	}

	jobID, err := s.inference.Submit(ctx, inference.SubmitRequest{
		Prompt:   gen.Prompt,
		ImageURL: inputURL,
	})
	s.metrics.RecordProviderRequest(ctx, "inference", outcome(err))
	if err != nil {
		return nil, s.failBeforeProcessing(ctx, gen, fmt.Sprintf("provider submission: %v", err), err)
	}

	if _, err := s.repo.SetProcessing(ctx, s.db, gen.ID, jobID); err != nil {
		s.log.Error("mark processing failed", zap.Int64("generation_id", int64(gen.ID)), zap.Error(err))
	} else {
		gen.Status = domain.StatusProcessing
		gen.ProviderJobID = &jobID
	}

	s.metrics.RecordGeneration(ctx, string(gen.Status))
	s.log.Info("generation submitted",
		zap.Int64("generation_id", int64(gen.ID)),
		zap.Int64("user_id", int64(gen.UserID)),
		zap.String("style", gen.StyleSlug),
		zap.String("room", gen.RoomType),
		zap.String("provider_job_id", jobID),
	)
	return s.view(ctx, gen), nil
}

// failBeforeProcessing finalizes a just-created record as failed and refunds
// the debit. Used when the job never reached the provider.
func (s *generationService) failBeforeProcessing(ctx context.Context, gen *domain.Generation, msg string, cause error) error {
	applied, err := s.repo.Finalize(ctx, s.db, gen.ID, domain.StatusFailed, domain.TerminalUpdate{
		ErrorMessage: &msg,
	})
	if err != nil {
		s.log.Error("finalize after submit failure", zap.Int64("generation_id", int64(gen.ID)), zap.Error(err))
	}
	if applied {
		s.refund(ctx, gen)
		s.metrics.RecordGeneration(ctx, string(domain.StatusFailed))
	}
	return cause
}

func (s *generationService) refund(ctx context.Context, gen *domain.Generation) {
	genID := gen.ID
	result, err := s.ledger.Credit(ctx, ledgerdomain.CreditRequest{
		UserID:       gen.UserID,
		Amount:       gen.Cost,
		Type:         ledgerdomain.TypeRefund,
		Description:  fmt.Sprintf("refund generation %d", gen.ID),
		GenerationID: &genID,
	})
	if err != nil {
		// The unique (type, generation_id) index keeps a retry safe.
		s.log.Error("refund failed", zap.Int64("generation_id", int64(gen.ID)), zap.Error(err))
		return
	}
	if result.Applied {
		s.log.Info("generation refunded",
			zap.Int64("generation_id", int64(gen.ID)),
			zap.Int64("user_id", int64(gen.UserID)),
			zap.Int64("amount", gen.Cost),
		)
	}
}

func (s *generationService) Get(ctx context.Context, userID, id snowflake.ID) (*domain.View, error) {
	gen, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, domain.ErrForbidden
	}

	// In-flight records piggyback a provider poll on the read so clients
	// converge without waiting for the webhook.
	if !gen.Status.Terminal() && gen.ProviderJobID != nil {
		state, err := s.inference.CheckStatus(ctx, *gen.ProviderJobID)
		s.metrics.RecordProviderRequest(ctx, "inference", outcome(err))
		if err != nil {
			s.log.Warn("provider poll failed",
				zap.Int64("generation_id", int64(gen.ID)),
				zap.Error(err),
			)
		} else if err := s.Reconcile(ctx, InputFromState(gen.ID, state)); err != nil {
			return nil, err
		}
		if gen, err = s.repo.FindByID(ctx, s.db, id); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, gen), nil
}

func (s *generationService) List(ctx context.Context, userID snowflake.ID, limit int) ([]domain.View, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	gens, err := s.repo.ListByUser(ctx, s.db, userID, limit)
	if err != nil {
		return nil, err
	}
	views := make([]domain.View, 0, len(gens))
	for i := range gens {
		views = append(views, *s.view(ctx, &gens[i]))
	}
	return views, nil
}

func (s *generationService) Reconcile(ctx context.Context, in domain.ReconcileInput) error {
	gen, err := s.repo.FindByID(ctx, s.db, in.GenerationID)
	if err != nil {
		return err
	}
	if gen.Status.Terminal() {
		// Webhook and poll race here; the first terminal write wins.
		return nil
	}

	switch {
	case in.Succeeded:
		return s.complete(ctx, gen, in.OutputURL)
	case in.Failed:
		return s.fail(ctx, gen, in.ProviderErr)
	default:
		// Still running; nothing to persist beyond the processing flip
		// that happened at submission.
		return nil
	}
}

func (s *generationService) ReconcileByJobID(ctx context.Context, jobID string, in domain.ReconcileInput) error {
	gen, err := s.repo.FindByProviderJobID(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	in.GenerationID = gen.ID
	return s.Reconcile(ctx, in)
}

func (s *generationService) complete(ctx context.Context, gen *domain.Generation, outputURL string) error {
	if outputURL == "" {
		return s.fail(ctx, gen, "provider reported success without output")
	}

	// Re-host before finalizing; the provider does not retain assets.
	key := fmt.Sprintf("outputs/%d.png", gen.ID)
	if _, err := s.store.UploadFromURL(ctx, key, outputURL); err != nil {
		s.log.Error("output re-host failed",
			zap.Int64("generation_id", int64(gen.ID)),
			zap.Error(err),
		)
		return err
	}

	applied, err := s.repo.Finalize(ctx, s.db, gen.ID, domain.StatusCompleted, domain.TerminalUpdate{
		OutputImageKey: &key,
	})
	if err != nil {
		return err
	}
	if applied {
		s.metrics.RecordGeneration(ctx, string(domain.StatusCompleted))
		s.log.Info("generation completed",
			zap.Int64("generation_id", int64(gen.ID)),
			zap.String("output_key", key),
		)
	}
	return nil
}

func (s *generationService) fail(ctx context.Context, gen *domain.Generation, providerErr string) error {
	if providerErr == "" {
		providerErr = "provider reported failure"
	}
	applied, err := s.repo.Finalize(ctx, s.db, gen.ID, domain.StatusFailed, domain.TerminalUpdate{
		ErrorMessage: &providerErr,
	})
	if err != nil {
		return err
	}
	if applied {
		s.refund(ctx, gen)
		s.metrics.RecordGeneration(ctx, string(domain.StatusFailed))
		s.log.Info("generation failed",
			zap.Int64("generation_id", int64(gen.ID)),
			zap.String("reason", providerErr),
		)
	}
	return nil
}

func (s *generationService) Cancel(ctx context.Context, userID, id snowflake.ID) (*domain.View, error) {
	gen, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, domain.ErrForbidden
	}
	if gen.Status.Terminal() {
		return nil, domain.ErrNotCancellable
	}

	if gen.ProviderJobID != nil {
		if err := s.inference.Cancel(ctx, *gen.ProviderJobID); err != nil && !errors.Is(err, inference.ErrJobNotFound) {
			s.log.Warn("provider cancel failed",
				zap.Int64("generation_id", int64(gen.ID)),
				zap.Error(err),
			)
		}
	}

	if err := s.fail(ctx, gen, "cancelled by user"); err != nil {
		return nil, err
	}
	gen, err = s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, gen), nil
}

// view attaches pre-signed URLs. The preview link is short-lived; the HD
// link is only issued after the generation has been unlocked.
func (s *generationService) view(ctx context.Context, gen *domain.Generation) *domain.View {
	v := &domain.View{Generation: *gen}
	if url, err := s.store.PresignGet(ctx, gen.InputImageKey, s.presignTTL); err == nil {
		v.InputImageURL = url
	}
	if gen.OutputImageKey != nil {
		if url, err := s.store.PresignGet(ctx, *gen.OutputImageKey, 15*time.Minute); err == nil {
			v.OutputImageURL = url
		}
		if gen.HDUnlocked {
			if url, err := s.store.PresignGet(ctx, *gen.OutputImageKey, s.presignTTL); err == nil {
				v.HDImageURL = url
			}
		}
	}
	return v
}

// InputFromState converts a normalized provider state into a reconcile input.
func InputFromState(id snowflake.ID, state inference.JobState) domain.ReconcileInput {
	return domain.ReconcileInput{
		GenerationID: id,
		Succeeded:    state.Status == inference.StatusSucceeded,
		Failed:       state.Status == inference.StatusFailed,
		OutputURL:    state.OutputURL,
		ProviderErr:  state.Err,
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

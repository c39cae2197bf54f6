package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/catalog"
	"github.com/restyleworks/restyle/internal/config"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/observability/metrics"
	"github.com/restyleworks/restyle/internal/payment/domain"
	unlockdomain "github.com/restyleworks/restyle/internal/unlock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Node     *snowflake.Node
	Config   config.Config
	Repo     domain.Repository
	GenRepo  generationdomain.Repository
	Ledger   ledgerdomain.Service
	Unlock   unlockdomain.Service
	Catalog  *catalog.Holder
	Adapter  domain.Adapter
	Checkout domain.CheckoutClient
	Metrics  *metrics.Metrics `optional:"true"`
}

type paymentService struct {
	db       *gorm.DB
	log      *zap.Logger
	node     *snowflake.Node
	cfg      config.Config
	repo     domain.Repository
	genRepo  generationdomain.Repository
	ledger   ledgerdomain.Service
	unlock   unlockdomain.Service
	catalog  *catalog.Holder
	adapter  domain.Adapter
	checkout domain.CheckoutClient
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &paymentService{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		node:     p.Node,
		cfg:      p.Config,
		repo:     p.Repo,
		genRepo:  p.GenRepo,
		ledger:   p.Ledger,
		unlock:   p.Unlock,
		catalog:  p.Catalog,
		adapter:  p.Adapter,
		checkout: p.Checkout,
		metrics:  p.Metrics,
	}
}

func (s *paymentService) ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (domain.WebhookOutcome, error) {
	if !json.Valid(payload) {
		return domain.WebhookOutcome{}, domain.ErrInvalidPayload
	}
	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return domain.WebhookOutcome{}, err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		if errors.Is(err, domain.ErrEventIgnored) {
			return domain.WebhookOutcome{Ignored: true}, nil
		}
		return domain.WebhookOutcome{}, err
	}

	now := time.Now().UTC()
	record := &domain.EventRecord{
		ID:              s.node.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return domain.WebhookOutcome{}, err
	}
	if !inserted {
		stored, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return domain.WebhookOutcome{}, err
		}
		if stored == nil {
			return domain.WebhookOutcome{}, domain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			s.log.Debug("payment event redelivered",
				zap.String("provider", event.Provider),
				zap.String("provider_event_id", event.ProviderEventID),
			)
			return domain.WebhookOutcome{Duplicate: true, EventType: event.Type}, nil
		}
		// First delivery crashed mid-apply; finish it on the retry. The
		// dispatch below is idempotent either way.
		record = stored
	}

	if err := s.dispatch(ctx, event); err != nil {
		return domain.WebhookOutcome{}, err
	}
	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, now); err != nil {
		return domain.WebhookOutcome{}, err
	}

	s.metrics.RecordPaymentEvent(ctx, event.Provider, event.Type)
	s.log.Info("payment event processed",
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("purchase_type", event.PurchaseType),
		zap.Int64("user_id", int64(event.UserID)),
	)
	return domain.WebhookOutcome{Processed: true, EventType: event.Type}, nil
}

// dispatch routes a verified event to its side effect. Both branches are
// idempotent per session id, so redelivery and the confirm path cannot
// double-apply.
func (s *paymentService) dispatch(ctx context.Context, event *domain.ParsedEvent) error {
	switch event.PurchaseType {
	case domain.PurchaseTypeCredits:
		ref := event.SessionID
		description := "credit purchase"
		if event.PackSlug != "" {
			description = fmt.Sprintf("credit pack %s", event.PackSlug)
		}
		_, err := s.ledger.Credit(ctx, ledgerdomain.CreditRequest{
			UserID:      event.UserID,
			Amount:      event.Credits,
			Type:        ledgerdomain.TypePurchase,
			Description: description,
			ExternalRef: &ref,
		})
		return err
	case domain.PurchaseTypeHDUnlock:
		_, err := s.unlock.UnlockWithPayment(ctx, event.GenerationID, event.SessionID)
		return err
	default:
		return domain.ErrInvalidMetadata
	}
}

func (s *paymentService) CreateCheckoutSession(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	switch req.Kind {
	case domain.CheckoutCreditPack:
		pack, err := s.catalog.PackBySlug(req.PackSlug)
		if err != nil {
			return domain.CheckoutSession{}, err
		}
		return s.checkout.CreateSession(ctx, domain.CreateSessionInput{
			AmountCents: pack.AmountCents,
			Currency:    s.cfg.Stripe.Currency,
			ProductName: fmt.Sprintf("%s (%d credits)", pack.Name, pack.Credits),
			Metadata: domain.SessionMetadata{
				PurchaseType: domain.PurchaseTypeCredits,
				UserID:       req.UserID,
				Credits:      pack.Credits,
				PackSlug:     pack.Slug,
			},
			SuccessURL: s.cfg.Stripe.SuccessURL,
			CancelURL:  s.cfg.Stripe.CancelURL,
		})
	case domain.CheckoutHDUnlock:
		gen, err := s.genRepo.FindByID(ctx, s.db, req.GenerationID)
		if err != nil {
			return domain.CheckoutSession{}, err
		}
		if gen.UserID != req.UserID {
			return domain.CheckoutSession{}, generationdomain.ErrForbidden
		}
		if gen.Status != generationdomain.StatusCompleted {
			return domain.CheckoutSession{}, unlockdomain.ErrNotCompleted
		}
		return s.checkout.CreateSession(ctx, domain.CreateSessionInput{
			AmountCents: s.catalog.Get().HDUnlock.AmountCents,
			Currency:    s.cfg.Stripe.Currency,
			ProductName: "HD image unlock",
			Metadata: domain.SessionMetadata{
				PurchaseType: domain.PurchaseTypeHDUnlock,
				UserID:       req.UserID,
				GenerationID: req.GenerationID,
			},
			SuccessURL: s.cfg.Stripe.SuccessURL,
			CancelURL:  s.cfg.Stripe.CancelURL,
		})
	default:
		return domain.CheckoutSession{}, domain.ErrInvalidMetadata
	}
}

func (s *paymentService) ConfirmCheckout(ctx context.Context, userID snowflake.ID, sessionID string) (domain.WebhookOutcome, error) {
	status, err := s.checkout.RetrieveSession(ctx, sessionID)
	if err != nil {
		return domain.WebhookOutcome{}, err
	}
	if status.Metadata.UserID != userID {
		return domain.WebhookOutcome{}, generationdomain.ErrForbidden
	}
	if !status.Paid() {
		return domain.WebhookOutcome{}, domain.ErrSessionNotPaid
	}

	// The webhook may already have applied this session; the external_ref
	// and unlocked-flag guards turn the second application into a no-op.
	err = s.dispatch(ctx, &domain.ParsedEvent{
		Provider:     "stripe",
		SessionID:    status.SessionID,
		PurchaseType: status.Metadata.PurchaseType,
		UserID:       status.Metadata.UserID,
		Credits:      status.Metadata.Credits,
		PackSlug:     status.Metadata.PackSlug,
		GenerationID: status.Metadata.GenerationID,
	})
	if err != nil {
		return domain.WebhookOutcome{}, err
	}
	return domain.WebhookOutcome{Processed: true}, nil
}

package payment

import (
	"github.com/restyleworks/restyle/internal/config"
	"github.com/restyleworks/restyle/internal/payment/adapters/stripe"
	"github.com/restyleworks/restyle/internal/payment/domain"
	"github.com/restyleworks/restyle/internal/payment/repository"
	"github.com/restyleworks/restyle/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment",
	fx.Provide(
		repository.Provide,
		service.New,
		func(cfg config.Config) domain.Adapter {
			return stripe.NewAdapter(cfg.Stripe.WebhookSecret)
		},
		func(cfg config.Config) domain.CheckoutClient {
			return stripe.NewClient(cfg.Stripe.SecretKey)
		},
	),
)

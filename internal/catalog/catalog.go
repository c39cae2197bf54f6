package catalog

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/gosimple/slug"
	"github.com/restyleworks/restyle/internal/catalog/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	ErrUnknownStyle = errors.New("unknown_style")
	ErrUnknownRoom  = errors.New("unknown_room")
	ErrUnknownPack  = errors.New("unknown_pack")
)

// DefaultCatalog seeds the catalog when no file is configured.
func DefaultCatalog() domain.Catalog {
	return domain.Catalog{
		Styles: []domain.Style{
			{Slug: "moderne", Name: "Moderne", Prompt: "a {room} redesigned in a sleek modern style, clean lines, neutral palette, photorealistic interior photography", Cost: 1},
			{Slug: "scandinave", Name: "Scandinave", Prompt: "a {room} redesigned in scandinavian style, light wood, soft textiles, bright natural light, photorealistic interior photography", Cost: 1},
			{Slug: "industriel", Name: "Industriel", Prompt: "a {room} redesigned in industrial style, exposed brick, metal fixtures, concrete floors, photorealistic interior photography", Cost: 1},
			{Slug: "boheme", Name: "Bohème", Prompt: "a {room} redesigned in bohemian style, layered rugs, plants, warm eclectic decor, photorealistic interior photography", Cost: 1},
		},
		Rooms: []domain.RoomType{
			{Slug: "salon", Name: "Salon"},
			{Slug: "chambre", Name: "Chambre"},
			{Slug: "cuisine", Name: "Cuisine"},
			{Slug: "salle-de-bain", Name: "Salle de bain"},
			{Slug: "bureau", Name: "Bureau"},
		},
		Packs: []domain.CreditPack{
			{Slug: "starter", Name: "Starter", Credits: 10, AmountCents: 900},
			{Slug: "studio", Name: "Studio", Credits: 30, AmountCents: 1900},
			{Slug: "agence", Name: "Agence", Credits: 100, AmountCents: 4900},
		},
		HDUnlock: domain.HDUnlockPricing{CreditCost: 1, AmountCents: 199},
	}
}

// Holder serves the active catalog and hot-reloads it from disk.
type Holder struct {
	current atomic.Value // holds domain.Catalog
}

// NewHolder loads the catalog from path, falling back to defaults when empty.
func NewHolder(path string, log *zap.Logger) (*Holder, error) {
	log = log.Named("catalog")
	holder := &Holder{}

	if strings.TrimSpace(path) == "" {
		holder.current.Store(normalize(DefaultCatalog()))
		return holder, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg domain.Catalog
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg = normalize(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated domain.Catalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Error("catalog reload failed", zap.Error(err))
			return
		}
		updated = normalize(updated)
		if err := validate(updated); err != nil {
			log.Warn("invalid catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// NewStatic builds a holder around a fixed catalog, used in tests.
func NewStatic(cfg domain.Catalog) *Holder {
	holder := &Holder{}
	holder.current.Store(normalize(cfg))
	return holder
}

func (h *Holder) Get() domain.Catalog {
	return h.current.Load().(domain.Catalog)
}

// StyleBySlug resolves a style, normalizing the slug first.
func (h *Holder) StyleBySlug(raw string) (domain.Style, error) {
	key := slug.Make(raw)
	for _, s := range h.Get().Styles {
		if s.Slug == key {
			return s, nil
		}
	}
	return domain.Style{}, ErrUnknownStyle
}

// RoomBySlug resolves a room type, normalizing the slug first.
func (h *Holder) RoomBySlug(raw string) (domain.RoomType, error) {
	key := slug.Make(raw)
	for _, r := range h.Get().Rooms {
		if r.Slug == key {
			return r, nil
		}
	}
	return domain.RoomType{}, ErrUnknownRoom
}

// PackBySlug resolves a credit pack, normalizing the slug first.
func (h *Holder) PackBySlug(raw string) (domain.CreditPack, error) {
	key := slug.Make(raw)
	for _, p := range h.Get().Packs {
		if p.Slug == key {
			return p, nil
		}
	}
	return domain.CreditPack{}, ErrUnknownPack
}

// RenderPrompt expands a style's prompt template for a room type.
func RenderPrompt(style domain.Style, room domain.RoomType) string {
	name := strings.ToLower(strings.TrimSpace(room.Name))
	if name == "" {
		name = room.Slug
	}
	return strings.ReplaceAll(style.Prompt, "{room}", name)
}

func normalize(cfg domain.Catalog) domain.Catalog {
	for i := range cfg.Styles {
		cfg.Styles[i].Slug = slug.Make(cfg.Styles[i].Slug)
		if cfg.Styles[i].Cost <= 0 {
			cfg.Styles[i].Cost = 1
		}
	}
	for i := range cfg.Rooms {
		cfg.Rooms[i].Slug = slug.Make(cfg.Rooms[i].Slug)
	}
	for i := range cfg.Packs {
		cfg.Packs[i].Slug = slug.Make(cfg.Packs[i].Slug)
	}
	if cfg.HDUnlock.CreditCost <= 0 {
		cfg.HDUnlock.CreditCost = 1
	}
	return cfg
}

func validate(cfg domain.Catalog) error {
	if len(cfg.Styles) == 0 {
		return errors.New("catalog styles cannot be empty")
	}
	if len(cfg.Rooms) == 0 {
		return errors.New("catalog rooms cannot be empty")
	}
	for _, s := range cfg.Styles {
		if strings.TrimSpace(s.Prompt) == "" {
			return errors.New("catalog style prompt cannot be empty")
		}
	}
	return nil
}

package domain

// Style is a redecoration style offered to users.
type Style struct {
	Slug   string `mapstructure:"slug" json:"slug"`
	Name   string `mapstructure:"name" json:"name"`
	Prompt string `mapstructure:"prompt" json:"prompt"`
	Cost   int64  `mapstructure:"cost" json:"cost"`
}

// RoomType is a room category a photo can be tagged with.
type RoomType struct {
	Slug string `mapstructure:"slug" json:"slug"`
	Name string `mapstructure:"name" json:"name"`
}

// CreditPack is a purchasable bundle of credits.
type CreditPack struct {
	Slug        string `mapstructure:"slug" json:"slug"`
	Name        string `mapstructure:"name" json:"name"`
	Credits     int64  `mapstructure:"credits" json:"credits"`
	AmountCents int64  `mapstructure:"amount_cents" json:"amount_cents"`
}

// HDUnlockPricing is the price of unlocking a generation's HD output,
// payable either in credits or directly by card.
type HDUnlockPricing struct {
	CreditCost  int64 `mapstructure:"credit_cost" json:"credit_cost"`
	AmountCents int64 `mapstructure:"amount_cents" json:"amount_cents"`
}

// Catalog is the full reference data set served to clients.
type Catalog struct {
	Styles   []Style         `mapstructure:"styles" json:"styles"`
	Rooms    []RoomType      `mapstructure:"rooms" json:"rooms"`
	Packs    []CreditPack    `mapstructure:"packs" json:"packs"`
	HDUnlock HDUnlockPricing `mapstructure:"hd_unlock" json:"hd_unlock"`
}

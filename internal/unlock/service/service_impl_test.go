package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/restyleworks/restyle/internal/catalog"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	generationrepo "github.com/restyleworks/restyle/internal/generation/repository"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	ledgerrepo "github.com/restyleworks/restyle/internal/ledger/repository"
	ledgerservice "github.com/restyleworks/restyle/internal/ledger/service"
	"github.com/restyleworks/restyle/internal/unlock/domain"
	userdomain "github.com/restyleworks/restyle/internal/user/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	ledger ledgerdomain.Service
	db     *gorm.DB
	node   *snowflake.Node
}

func setup(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&userdomain.User{},
		&ledgerdomain.CreditTransaction{},
		&generationdomain.Generation{},
	)
	require.NoError(t, err)

	node, _ := snowflake.NewNode(1)
	log := zap.NewNop()

	ledgerSvc := ledgerservice.New(ledgerservice.Params{
		DB:   db,
		Log:  log,
		Node: node,
		Repo: ledgerrepo.Provide(),
	})

	svc := New(Params{
		DB:      db,
		Log:     log,
		Repo:    generationrepo.Provide(),
		Ledger:  ledgerSvc,
		Catalog: catalog.NewStatic(catalog.DefaultCatalog()),
	})

	return &fixture{svc: svc, ledger: ledgerSvc, db: db, node: node}
}

func (f *fixture) seedUser(t *testing.T, balance int64) snowflake.ID {
	t.Helper()
	id := f.node.Generate()
	require.NoError(t, f.db.Create(&userdomain.User{
		ID:    id,
		Email: fmt.Sprintf("%d@example.com", id),
	}).Error)
	if balance > 0 {
		_, err := f.ledger.Credit(context.Background(), ledgerdomain.CreditRequest{
			UserID:      id,
			Amount:      balance,
			Type:        ledgerdomain.TypeBonus,
			Description: "seed",
		})
		require.NoError(t, err)
	}
	return id
}

func (f *fixture) countCharges(t *testing.T, genID snowflake.ID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&ledgerdomain.CreditTransaction{}).
		Where("type = ? AND generation_id = ?", ledgerdomain.TypeHDUnlock, genID).
		Count(&n).Error)
	return n
}

func (f *fixture) seedGeneration(t *testing.T, userID snowflake.ID, status generationdomain.Status) snowflake.ID {
	t.Helper()
	key := "outputs/test.png"
	gen := &generationdomain.Generation{
		ID:            f.node.Generate(),
		UserID:        userID,
		StyleSlug:     "moderne",
		RoomType:      "salon",
		Prompt:        "test",
		InputImageKey: "inputs/test.jpg",
		Status:        status,
		Cost:          1,
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	if status == generationdomain.StatusCompleted {
		gen.OutputImageKey = &key
	}
	require.NoError(t, f.db.Create(gen).Error)
	return gen.ID
}

func TestUnlockWithCredit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := f.seedUser(t, 2)
	genID := f.seedGeneration(t, userID, generationdomain.StatusCompleted)

	result, err := f.svc.UnlockWithCredit(ctx, userID, genID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyUnlocked)
	assert.Equal(t, int64(1), result.Balance)

	// Flag and charge landed together.
	var gen generationdomain.Generation
	require.NoError(t, f.db.First(&gen, "id = ?", genID).Error)
	assert.True(t, gen.HDUnlocked)
	assert.Nil(t, gen.PaymentRef)
	assert.Equal(t, int64(1), f.countCharges(t, genID))
}

func TestUnlockWithCredit_RepeatIsFree(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := f.seedUser(t, 2)
	genID := f.seedGeneration(t, userID, generationdomain.StatusCompleted)

	_, err := f.svc.UnlockWithCredit(ctx, userID, genID)
	require.NoError(t, err)

	result, err := f.svc.UnlockWithCredit(ctx, userID, genID)
	require.NoError(t, err)
	assert.True(t, result.AlreadyUnlocked)

	// Charged exactly once.
	balance, err := f.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)
}

func TestUnlockWithCredit_InsufficientCreditsCommitsNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := f.seedUser(t, 0)
	genID := f.seedGeneration(t, userID, generationdomain.StatusCompleted)

	_, err := f.svc.UnlockWithCredit(ctx, userID, genID)
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientCredits)

	// The failed debit rolls the flag flip back with it.
	var gen generationdomain.Generation
	require.NoError(t, f.db.First(&gen, "id = ?", genID).Error)
	assert.False(t, gen.HDUnlocked)
	assert.Equal(t, int64(0), f.countCharges(t, genID))
}

func TestUnlockWithCredit_ExistingChargeDeliversUnlock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := f.seedUser(t, 2)
	genID := f.seedGeneration(t, userID, generationdomain.StatusCompleted)

	// An earlier attempt got as far as the ledger row before being
	// interrupted; the retry must deliver the unlock without a second
	// charge.
	require.NoError(t, f.db.Create(&ledgerdomain.CreditTransaction{
		ID:           f.node.Generate(),
		UserID:       userID,
		Amount:       -1,
		Type:         ledgerdomain.TypeHDUnlock,
		Description:  "seed charge",
		GenerationID: &genID,
	}).Error)

	result, err := f.svc.UnlockWithCredit(ctx, userID, genID)
	require.NoError(t, err)
	assert.True(t, result.AlreadyUnlocked)

	var gen generationdomain.Generation
	require.NoError(t, f.db.First(&gen, "id = ?", genID).Error)
	assert.True(t, gen.HDUnlocked)
	assert.Equal(t, int64(1), f.countCharges(t, genID))

	balance, err := f.ledger.GetBalance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance)
}

func TestUnlockWithCredit_NotCompleted(t *testing.T) {
	f := setup(t)
	userID := f.seedUser(t, 2)
	genID := f.seedGeneration(t, userID, generationdomain.StatusProcessing)

	_, err := f.svc.UnlockWithCredit(context.Background(), userID, genID)
	assert.ErrorIs(t, err, domain.ErrNotCompleted)
}

func TestUnlockWithCredit_Forbidden(t *testing.T) {
	f := setup(t)
	owner := f.seedUser(t, 2)
	other := f.seedUser(t, 2)
	genID := f.seedGeneration(t, owner, generationdomain.StatusCompleted)

	_, err := f.svc.UnlockWithCredit(context.Background(), other, genID)
	assert.ErrorIs(t, err, generationdomain.ErrForbidden)
}

func TestUnlockWithPayment_Idempotent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	userID := f.seedUser(t, 0)
	genID := f.seedGeneration(t, userID, generationdomain.StatusCompleted)

	result, err := f.svc.UnlockWithPayment(ctx, genID, "cs_test_1")
	require.NoError(t, err)
	assert.False(t, result.AlreadyUnlocked)

	// Redelivery, even with a different session id, keeps the original
	// payment reference.
	result, err = f.svc.UnlockWithPayment(ctx, genID, "cs_test_2")
	require.NoError(t, err)
	assert.True(t, result.AlreadyUnlocked)

	var gen generationdomain.Generation
	require.NoError(t, f.db.First(&gen, "id = ?", genID).Error)
	assert.True(t, gen.HDUnlocked)
	require.NotNil(t, gen.PaymentRef)
	assert.Equal(t, "cs_test_1", *gen.PaymentRef)
}

package seed

import (
	"context"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	callbackauthdomain "github.com/smallbiznis/vouchr/internal/callbackauth/domain"
	callbackauthrepository "github.com/smallbiznis/vouchr/internal/callbackauth/repository"
	callbackauthservice "github.com/smallbiznis/vouchr/internal/callbackauth/service"
	"github.com/smallbiznis/vouchr/internal/clock"
	"github.com/smallbiznis/vouchr/internal/config"
	"github.com/smallbiznis/vouchr/internal/dbtest"
	dealrepository "github.com/smallbiznis/vouchr/internal/deal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newSecrets(t *testing.T, db *gorm.DB, node *snowflake.Node) callbackauthdomain.Service {
	t.Helper()
	return callbackauthservice.NewService(callbackauthservice.Params{
		DB:     db,
		Log:    zap.NewNop(),
		Cfg:    config.Config{CallbackConfigSecret: "config-encryption-secret"},
		Policy: config.NewStaticIssuancePolicy(config.DefaultIssuancePolicy()),
		Clock:  clock.SystemClock{},
		GenID:  node,
		Repo:   callbackauthrepository.Provide(),
	})
}

func TestEnsureDemoIsRepeatable(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	secrets := newSecrets(t, db, node)

	ctx := context.Background()
	first, err := EnsureDemo(ctx, db, node, secrets, "whsec_demo_0123456789")
	require.NoError(t, err)
	second, err := EnsureDemo(ctx, db, node, secrets, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), dbtest.Count(t, db, "businesses", "1 = 1"))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "subscriptions", "1 = 1"))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "deals", "1 = 1"))
	assert.Equal(t, int64(1), dbtest.Count(t, db, "deal_callback_configs", "deal_id = ?", int64(first.DealID)))

	deal, err := dealrepository.Provide().GetDealWithBusiness(ctx, db, first.DealID)
	require.NoError(t, err)
	require.NotNil(t, deal)
	assert.Equal(t, "10", deal.Deal.Price.String())
	require.NotNil(t, deal.Subscription)
	assert.True(t, deal.Subscription.ActiveAt(clock.SystemClock{}.Now()))
}

func TestEnsureDemoRejectsShortSecret(t *testing.T) {
	db := dbtest.Open(t)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)

	short := strings.Repeat("s", callbackauthdomain.MinSecretLength-1)
	_, err = EnsureDemo(context.Background(), db, node, newSecrets(t, db, node), short)
	assert.ErrorIs(t, err, callbackauthdomain.ErrInvalidSecret)
	assert.Zero(t, dbtest.Count(t, db, "deal_callback_configs", "1 = 1"))
}

func TestEnsureDemoRequiresHandles(t *testing.T) {
	_, err := EnsureDemo(context.Background(), nil, nil, nil, "")
	assert.Error(t, err)
}

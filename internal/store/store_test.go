package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*HybridStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb, nil), mr
}

func TestGet_MissingKeyIsEmpty(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	val, err := st.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestGet_ExistingKey(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	mr.Set("solvers:137:success:paraswap", "42")
	val, err := st.Get(context.Background(), "solvers:137:success:paraswap")
	require.NoError(t, err)
	assert.Equal(t, "42", val)
}

func TestIncr_SetsValueAndTTL(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	key := "solvers:137:failure:odos"
	require.NoError(t, st.Incr(context.Background(), key, time.Hour))
	require.NoError(t, st.Incr(context.Background(), key, time.Hour))

	val, err := st.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "2", val)
	assert.Greater(t, mr.TTL(key), time.Duration(0))
}

func TestSetGetJSON_RoundTrip(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	type price struct {
		Usd float64 `json:"usd"`
	}
	require.NoError(t, st.SetJSON(context.Background(), "price2:137:0xabc", price{Usd: 1.23}, time.Minute))

	var got price
	require.NoError(t, st.GetJSON(context.Background(), "price2:137:0xabc", &got))
	assert.Equal(t, 1.23, got.Usd)
}

func TestGetJSON_MissReturnsRedisNil(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	var got map[string]any
	err := st.GetJSON(context.Background(), "missing", &got)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestPublish_EncodesPayload(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	// miniredis counts the publish even with no subscribers.
	err := st.Publish(context.Background(), "rfq", map[string]string{"sessionId": "s-1"})
	require.NoError(t, err)

	var payload map[string]string
	data, merr := json.Marshal(map[string]string{"sessionId": "s-1"})
	require.NoError(t, merr)
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "s-1", payload["sessionId"])
}

func TestHealthCheck(t *testing.T) {
	st, mr := newTestStore(t)

	require.NoError(t, st.HealthCheck(context.Background()))

	mr.Close()
	err := st.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}

func TestHealthCheck_NilRedis(t *testing.T) {
	st := &HybridStore{}
	err := st.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis not initialized")
}

func TestRecordAuctionRound_NilPGIsNoop(t *testing.T) {
	st, mr := newTestStore(t)
	defer mr.Close()

	err := st.RecordAuctionRound(context.Background(), AuctionRoundRow{
		SessionID: "s-1",
		ChainID:   137,
		Winner:    "paraswap",
	})
	require.NoError(t, err)
}

func TestClose_NilComponents(t *testing.T) {
	st := &HybridStore{}
	require.NoError(t, st.Close())
}

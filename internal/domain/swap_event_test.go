package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNotification_RoundsUSDToCents(t *testing.T) {
	contract := "Prog1"
	e := &SwapEvent{
		Kind:            SwapKindBuy,
		Signature:       "S1",
		SolAmount:       decimal.RequireFromString("0.123456789"),
		TokenAmount:     decimal.NewFromInt(50),
		TokenMint:       "M",
		ContractAddress: &contract,
		Timestamp:       1700000000000,
	}

	n := NewNotification(e, decimal.RequireFromString("187.35"))

	assert.Equal(t, SwapKindBuy, n.Type)
	assert.Equal(t, 23.13, n.UsdValue)
	assert.Equal(t, 0.123456789, n.SolSpent)
	assert.Equal(t, 50.0, n.TokenAmount)
	assert.Equal(t, "2023-11-14T22:13:20Z", n.Timestamp)
	require.NotNil(t, n.ContractAddress)
	assert.Equal(t, "Prog1", *n.ContractAddress)
}

func TestNewNotification_ZeroPrice(t *testing.T) {
	e := &SwapEvent{Kind: SwapKindSell, SolAmount: decimal.NewFromInt(2)}

	n := NewNotification(e, decimal.Zero)

	assert.Equal(t, 0.0, n.UsdValue)
	assert.Equal(t, 2.0, n.SolSpent)
}

func TestNotification_JSONShape(t *testing.T) {
	n := NewNotification(&SwapEvent{Kind: SwapKindBuy, SolAmount: decimal.NewFromInt(1)}, decimal.NewFromInt(100))

	data, err := json.Marshal(n)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"solSpent", "usdValue", "tokenAmount", "tokenMint", "contractAddress", "timestamp"} {
		assert.Contains(t, m, key)
	}
	assert.Nil(t, m["contractAddress"])
	assert.Equal(t, 100.0, m["usdValue"])
}

func TestTransactionRecord_DecodeHeliusShape(t *testing.T) {
	payload := `{
		"signature": "S1",
		"feePayer": "U",
		"timestamp": 1700000000,
		"nativeTransfers": [{"fromUserAccount": "U", "toUserAccount": "P", "amount": 100000000}],
		"tokenTransfers": [{"fromUserAccount": "", "toUserAccount": "U", "mint": "M", "tokenAmount": 50.25, "decimals": 6}],
		"accountData": [{"account": "U", "nativeBalanceChange": -100005000}],
		"instructions": [{"programId": "P", "accounts": ["U", "X"]}]
	}`

	var rec TransactionRecord
	require.NoError(t, json.Unmarshal([]byte(payload), &rec))

	assert.Equal(t, "S1", rec.Signature)
	assert.Equal(t, int64(100000000), rec.NativeTransfers[0].Amount)
	assert.True(t, rec.TokenTransfers[0].TokenAmount.Equal(decimal.RequireFromString("50.25")))
	require.NotNil(t, rec.TokenTransfers[0].Decimals)
	assert.Equal(t, int32(6), *rec.TokenTransfers[0].Decimals)
	assert.Equal(t, int64(-100005000), rec.AccountData[0].NativeBalanceChange)
	assert.True(t, rec.Instructions[0].HasAccount("X"))
	assert.False(t, rec.Instructions[0].HasAccount("Y"))
}

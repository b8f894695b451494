package classifier

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-swap-feed/internal/domain"
	"solana-swap-feed/internal/solana"
)

func decimals(d int32) *int32 { return &d }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

// buyRecord is the canonical end-to-end example: user U spends 0.1 SOL through program P.
func buyRecord() *domain.TransactionRecord {
	return &domain.TransactionRecord{
		Signature: "S1",
		FeePayer:  "U",
		Timestamp: 1700000000000,
		AccountData: []domain.AccountDelta{
			{Account: "U", NativeBalanceChange: -100000000},
		},
		TokenTransfers: []domain.TokenTransfer{
			{To: "U", Mint: "M", TokenAmount: dec("50"), Decimals: decimals(0)},
		},
		NativeTransfers: []domain.NativeTransfer{
			{From: "U", To: "P", Amount: 100000000},
		},
		Instructions: []domain.Instruction{
			{ProgramID: "P", Accounts: []string{"U"}},
		},
	}
}

func sellRecord() *domain.TransactionRecord {
	return &domain.TransactionRecord{
		Signature: "S2",
		FeePayer:  "U",
		AccountData: []domain.AccountDelta{
			{Account: "U", NativeBalanceChange: 249995000},
		},
		TokenTransfers: []domain.TokenTransfer{
			{From: "U", To: "pool", Mint: "M", TokenAmount: dec("1234567"), Decimals: decimals(6)},
		},
		NativeTransfers: []domain.NativeTransfer{
			{From: "pool", To: "U", Amount: 200000000},
			{From: "vault", To: "U", Amount: 50000000},
			{From: "pool", To: "other", Amount: 7},
		},
		Instructions: []domain.Instruction{
			{ProgramID: solana.ComputeBudgetProgramID, Accounts: nil},
			{ProgramID: "AMM", Accounts: []string{"U", "pool"}},
		},
	}
}

func TestClassify_EndToEndBuy(t *testing.T) {
	c := New(Options{})

	ev, ok := c.Classify(buyRecord())
	require.True(t, ok)

	assert.Equal(t, domain.SwapKindBuy, ev.Kind)
	assert.Equal(t, "S1", ev.Signature)
	assertDecimal(t, "0.1", ev.SolAmount)
	assertDecimal(t, "50", ev.TokenAmount)
	assert.Equal(t, "M", ev.TokenMint)
	require.NotNil(t, ev.ContractAddress)
	assert.Equal(t, "P", *ev.ContractAddress)
	assert.Equal(t, int64(1700000000000), ev.Timestamp)
	assert.False(t, ev.MissingDecimals)
}

func TestClassify_Sell(t *testing.T) {
	c := New(Options{})

	ev, ok := c.Classify(sellRecord())
	require.True(t, ok)

	assert.Equal(t, domain.SwapKindSell, ev.Kind)
	assertDecimal(t, "0.25", ev.SolAmount)
	assertDecimal(t, "1.234567", ev.TokenAmount)
	require.NotNil(t, ev.ContractAddress)
	assert.Equal(t, "AMM", *ev.ContractAddress)
}

func TestClassify_Ignore(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tx *domain.TransactionRecord)
	}{
		{
			name:   "no token transfers",
			mutate: func(tx *domain.TransactionRecord) { tx.TokenTransfers = nil },
		},
		{
			name:   "no native transfers",
			mutate: func(tx *domain.TransactionRecord) { tx.NativeTransfers = nil },
		},
		{
			name:   "no fee payer",
			mutate: func(tx *domain.TransactionRecord) { tx.FeePayer = "" },
		},
		{
			name:   "zero balance delta",
			mutate: func(tx *domain.TransactionRecord) { tx.AccountData[0].NativeBalanceChange = 0 },
		},
		{
			name:   "user missing from account data",
			mutate: func(tx *domain.TransactionRecord) { tx.AccountData[0].Account = "someone" },
		},
		{
			name: "balance decreased but only outgoing token",
			mutate: func(tx *domain.TransactionRecord) {
				tx.TokenTransfers[0].From, tx.TokenTransfers[0].To = "U", "P"
			},
		},
		{
			name: "balance increased but only incoming token",
			mutate: func(tx *domain.TransactionRecord) {
				tx.AccountData[0].NativeBalanceChange = 5000
			},
		},
	}

	c := New(Options{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := buyRecord()
			tt.mutate(tx)

			ev, ok := c.Classify(tx)
			assert.False(t, ok)
			assert.Nil(t, ev)
		})
	}
}

func TestClassify_BothDirectionsDecidedByDelta(t *testing.T) {
	c := New(Options{})

	tx := buyRecord()
	tx.TokenTransfers = append(tx.TokenTransfers,
		domain.TokenTransfer{From: "U", To: "P", Mint: "OTHER", TokenAmount: dec("3"), Decimals: decimals(0)})
	tx.NativeTransfers = append(tx.NativeTransfers, domain.NativeTransfer{From: "P", To: "U", Amount: 1})

	ev, ok := c.Classify(tx)
	require.True(t, ok)
	assert.Equal(t, domain.SwapKindBuy, ev.Kind)
	assert.Equal(t, "M", ev.TokenMint)

	tx.AccountData[0].NativeBalanceChange = 1
	ev, ok = c.Classify(tx)
	require.True(t, ok)
	assert.Equal(t, domain.SwapKindSell, ev.Kind)
	assert.Equal(t, "OTHER", ev.TokenMint)
	assertDecimal(t, "0.000000001", ev.SolAmount)
}

func TestClassify_SolSpentOnlyCountsSwapAccounts(t *testing.T) {
	c := New(Options{})

	tx := buyRecord()
	tx.NativeTransfers = append(tx.NativeTransfers,
		domain.NativeTransfer{From: "U", To: "tip-account", Amount: 5000000},
		domain.NativeTransfer{From: "U", To: "P", Amount: -10},
	)
	tx.Instructions = append([]domain.Instruction{
		{ProgramID: solana.SystemProgramID, Accounts: []string{"U", "tip-account"}},
	}, tx.Instructions...)

	ev, ok := c.Classify(tx)
	require.True(t, ok)
	assertDecimal(t, "0.1", ev.SolAmount)
	require.NotNil(t, ev.ContractAddress)
	assert.Equal(t, "P", *ev.ContractAddress)
}

func TestClassify_NoContractAddress(t *testing.T) {
	c := New(Options{})

	tx := buyRecord()
	tx.Instructions = []domain.Instruction{
		{ProgramID: solana.TokenProgramID, Accounts: []string{"U"}},
		{ProgramID: "P", Accounts: []string{"someone-else"}},
	}

	ev, ok := c.Classify(tx)
	require.True(t, ok)
	assert.Nil(t, ev.ContractAddress)
	assert.True(t, ev.SolAmount.IsZero(), "no swap accounts means nothing spent")
}

func TestClassify_MissingDecimals(t *testing.T) {
	c := New(Options{})

	tx := buyRecord()
	tx.TokenTransfers[0].TokenAmount = dec("12.5")
	tx.TokenTransfers[0].Decimals = nil

	ev, ok := c.Classify(tx)
	require.True(t, ok)
	assertDecimal(t, "12.5", ev.TokenAmount)
	assert.True(t, ev.MissingDecimals)
}

func TestClassify_NetDeltaMode(t *testing.T) {
	c := New(Options{Mode: AmountModeNetDelta})

	tx := buyRecord()
	tx.AccountData[0].NativeBalanceChange = -100005000

	ev, ok := c.Classify(tx)
	require.True(t, ok)
	assertDecimal(t, "0.100005", ev.SolAmount)

	ev, ok = c.Classify(sellRecord())
	require.True(t, ok)
	assertDecimal(t, "0.249995", ev.SolAmount)
}

func TestParseAmountMode(t *testing.T) {
	mode, err := ParseAmountMode("")
	require.NoError(t, err)
	assert.Equal(t, AmountModeFiltered, mode)

	mode, err = ParseAmountMode("net-delta")
	require.NoError(t, err)
	assert.Equal(t, AmountModeNetDelta, mode)

	_, err = ParseAmountMode("gross")
	assert.Error(t, err)
}

func TestLamportsToSOL(t *testing.T) {
	assertDecimal(t, "1", LamportsToSOL(LamportsPerSOL))
	assertDecimal(t, "0.000000001", LamportsToSOL(1))
	assertDecimal(t, "0", LamportsToSOL(0))
}

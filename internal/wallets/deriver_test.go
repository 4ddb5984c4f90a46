package wallets

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveAllIsDeterministic(t *testing.T) {
	d := NewClassicalDeriver()
	seed := []byte("identity-seed-material")

	a1, err := d.DeriveAll(seed)
	require.NoError(t, err)
	a2, err := d.DeriveAll(seed)
	require.NoError(t, err)

	require.Equal(t, a1, a2)
	require.False(t, a1.IsZero())
}

func TestDeriveAllDiffersAcrossChains(t *testing.T) {
	d := NewClassicalDeriver()
	addrs, err := d.DeriveAll([]byte("seed-2"))
	require.NoError(t, err)

	require.NotEqual(t, addrs.BTC, addrs.Backbone)
	require.NotEmpty(t, addrs.ETH)
	require.NotEmpty(t, addrs.SOL)
	require.NotEmpty(t, addrs.TRX)
}

func TestDeriveAllDiffersAcrossSeeds(t *testing.T) {
	d := NewClassicalDeriver()
	a1, err := d.DeriveAll([]byte("seed-a"))
	require.NoError(t, err)
	a2, err := d.DeriveAll([]byte("seed-b"))
	require.NoError(t, err)

	require.NotEqual(t, a1.ETH, a2.ETH)
}

func TestSendTokensWithoutRPCFails(t *testing.T) {
	d := NewClassicalDeriver()
	_, err := d.SendTokens(context.Background(), ChainETH, "0xabc", "1.0")
	require.ErrorIs(t, err, ErrNoRPCConfigured)
}

func TestGetBalancesEmptyWithoutRPC(t *testing.T) {
	d := NewClassicalDeriver()
	addrs, _ := d.DeriveAll([]byte("seed-3"))
	balances, err := d.GetBalances(context.Background(), addrs)
	require.NoError(t, err)
	require.Empty(t, balances)
}

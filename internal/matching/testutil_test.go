package matching

import (
	"testing"

	"fenrir/internal/account"
	"fenrir/internal/coin"
	"fenrir/internal/common"
	"fenrir/internal/fees"
	"fenrir/internal/fixedpoint"

	"github.com/stretchr/testify/require"
)

const (
	testIDecimals = fixedpoint.Scale
	testQDecimals = fixedpoint.Scale
)

func newTestBook(maxCacheSize int) (*Book, *coin.MemoryStore, *coin.MemoryStore, *common.RecordingSink) {
	iStore := coin.NewMemoryStore(testIDecimals)
	qStore := coin.NewMemoryStore(testQDecimals)
	accounts := account.NewRegistry(iStore, qStore, testIDecimals, testQDecimals)
	sink := &common.RecordingSink{}
	book := NewBook(testIDecimals, testQDecimals, maxCacheSize, accounts, sink, fees.ZeroSchedule{}, fees.Standard, "INST", "QUOTE")
	return book, iStore, qStore, sink
}

func openFunded(t *testing.T, book *Book, iStore, qStore *coin.MemoryStore, owner string, iAmt, qAmt uint64) common.AccountKey {
	t.Helper()
	key := common.AccountKey{ProtocolAddress: "protocol", UserAddress: owner}
	_, err := book.Accounts.Open(key, owner)
	require.NoError(t, err)
	if iAmt > 0 {
		iStore.Credit(owner, iAmt)
	}
	if qAmt > 0 {
		qStore.Credit(owner, qAmt)
	}
	require.NoError(t, book.Accounts.Deposit(owner, key, iAmt, qAmt))
	return key
}

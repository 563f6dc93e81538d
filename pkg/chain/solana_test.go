package chain

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type handlerFunc func(params []json.RawMessage) interface{}

// fakeRPC is a minimal JSON-RPC endpoint answering from per-method handlers.
type fakeRPC struct {
	mu       sync.Mutex
	handlers map[string]handlerFunc
	calls    map[string]int
}

func newFakeRPC(t *testing.T) (*fakeRPC, *httptest.Server) {
	t.Helper()
	f := &fakeRPC{handlers: map[string]handlerFunc{}, calls: map[string]int{}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		f.mu.Lock()
		f.calls[req.Method]++
		h, ok := f.handlers[req.Method]
		f.mu.Unlock()

		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if ok {
			resp["result"] = h(req.Params)
		} else {
			resp["error"] = map[string]interface{}{"code": -32601, "message": "method not found: " + req.Method}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeRPC) on(method string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method] = h
}

func (f *fakeRPC) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func withContext(value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": 1000},
		"value":   value,
	}
}

func newTestConnection(t *testing.T, url string, cfg Config) *Connection {
	t.Helper()
	cfg.RPCURL = url
	conn, err := NewConnection(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return conn
}

func TestNewConnectionRequiresURL(t *testing.T) {
	_, err := NewConnection(Config{}, nil)
	assert.Error(t, err)
}

func TestParseCommitment(t *testing.T) {
	assert.Equal(t, rpc.CommitmentFinalized, ParseCommitment("Finalized"))
	assert.Equal(t, rpc.CommitmentProcessed, ParseCommitment("processed"))
	assert.Equal(t, rpc.CommitmentConfirmed, ParseCommitment(""))
	assert.Equal(t, rpc.CommitmentConfirmed, ParseCommitment("bogus"))
}

func TestReached(t *testing.T) {
	assert.True(t, Reached(rpc.ConfirmationStatusFinalized, rpc.CommitmentConfirmed))
	assert.True(t, Reached(rpc.ConfirmationStatusConfirmed, rpc.CommitmentConfirmed))
	assert.False(t, Reached(rpc.ConfirmationStatusProcessed, rpc.CommitmentConfirmed))
	assert.False(t, Reached("", rpc.CommitmentProcessed))
}

func TestLatestBlockhashAndSend(t *testing.T) {
	f, srv := newFakeRPC(t)
	hash := solana.HashFromBytes(make([]byte, 32))
	hash[0] = 7
	sig := solana.SignatureFromBytes(make([]byte, 64))
	sig[0] = 9

	f.on("getLatestBlockhash", func([]json.RawMessage) interface{} {
		return withContext(map[string]interface{}{"blockhash": hash.String(), "lastValidBlockHeight": 200})
	})
	f.on("sendTransaction", func(params []json.RawMessage) interface{} {
		var raw string
		_ = json.Unmarshal(params[0], &raw)
		decoded, err := base64.StdEncoding.DecodeString(raw)
		assert.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, decoded)
		return sig.String()
	})

	conn := newTestConnection(t, srv.URL, Config{})

	got, err := conn.LatestBlockhash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	sent, err := conn.SendRawTransaction(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, sig, sent)
}

func TestConfirmTransaction(t *testing.T) {
	f, srv := newFakeRPC(t)

	var polls int
	f.on("getSignatureStatuses", func([]json.RawMessage) interface{} {
		polls++
		switch polls {
		case 1:
			return withContext([]interface{}{nil})
		case 2:
			return withContext([]interface{}{map[string]interface{}{"slot": 10, "confirmations": 0, "err": nil, "confirmationStatus": "processed"}})
		default:
			return withContext([]interface{}{map[string]interface{}{"slot": 10, "confirmations": nil, "err": nil, "confirmationStatus": "confirmed"}})
		}
	})

	conn := newTestConnection(t, srv.URL, Config{PollInterval: time.Millisecond, ConfirmTimeout: 5 * time.Second})

	status, err := conn.ConfirmTransaction(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Equal(t, rpc.ConfirmationStatusConfirmed, status)
	assert.Equal(t, 3, f.count("getSignatureStatuses"))
}

func TestConfirmTransactionFailedOnChain(t *testing.T) {
	f, srv := newFakeRPC(t)
	f.on("getSignatureStatuses", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{map[string]interface{}{
			"slot":               10,
			"err":                map[string]interface{}{"InstructionError": []interface{}{2, map[string]interface{}{"Custom": 6001}}},
			"confirmationStatus": "confirmed",
		}})
	})

	conn := newTestConnection(t, srv.URL, Config{PollInterval: time.Millisecond})

	_, err := conn.ConfirmTransaction(context.Background(), solana.Signature{})
	assert.ErrorIs(t, err, ErrTransactionFailed)
}

func TestConfirmTransactionTimeout(t *testing.T) {
	f, srv := newFakeRPC(t)
	f.on("getSignatureStatuses", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{nil})
	})

	conn := newTestConnection(t, srv.URL, Config{PollInterval: 5 * time.Millisecond, ConfirmTimeout: 30 * time.Millisecond})

	_, err := conn.ConfirmTransaction(context.Background(), solana.Signature{})
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
}

func TestConfirmTransactionCancelled(t *testing.T) {
	f, srv := newFakeRPC(t)
	f.on("getSignatureStatuses", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{nil})
	})

	conn := newTestConnection(t, srv.URL, Config{PollInterval: 5 * time.Millisecond, ConfirmTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := conn.ConfirmTransaction(ctx, solana.Signature{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrConfirmationTimeout)
}

// lookupTableData encodes an address lookup table account.
func lookupTableData(addrs ...solana.PublicKey) []byte {
	const metaSize = 56
	data := make([]byte, metaSize, metaSize+32*len(addrs))
	binary.LittleEndian.PutUint32(data[0:4], 1)
	binary.LittleEndian.PutUint64(data[4:12], ^uint64(0))
	for _, a := range addrs {
		data = append(data, a[:]...)
	}
	return data
}

func TestLookupTablesCached(t *testing.T) {
	f, srv := newFakeRPC(t)

	table := solana.NewWallet().PublicKey()
	entries := []solana.PublicKey{solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()}

	f.on("getMultipleAccounts", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{map[string]interface{}{
			"data":       []string{base64.StdEncoding.EncodeToString(lookupTableData(entries...)), "base64"},
			"executable": false,
			"lamports":   1,
			"owner":      "AddressLookupTab1e1111111111111111111111111",
			"rentEpoch":  0,
		}})
	})

	conn := newTestConnection(t, srv.URL, Config{})

	for i := 0; i < 2; i++ {
		tables, err := conn.LookupTables(context.Background(), []solana.PublicKey{table})
		require.NoError(t, err)
		require.Contains(t, tables, table)
		assert.Equal(t, solana.PublicKeySlice(entries), tables[table])
	}
	assert.Equal(t, 1, f.count("getMultipleAccounts"))
}

func TestLookupTableMissing(t *testing.T) {
	f, srv := newFakeRPC(t)
	f.on("getMultipleAccounts", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{nil})
	})

	conn := newTestConnection(t, srv.URL, Config{})
	_, err := conn.LookupTables(context.Background(), []solana.PublicKey{solana.NewWallet().PublicKey()})
	assert.ErrorContains(t, err, "not found")
}

func TestAccountExistsAndBalances(t *testing.T) {
	f, srv := newFakeRPC(t)

	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)

	f.on("getAccountInfo", func(params []json.RawMessage) interface{} {
		var key string
		_ = json.Unmarshal(params[0], &key)
		if key != ata.String() {
			return withContext(nil)
		}
		return withContext(map[string]interface{}{
			"data":       []string{"", "base64"},
			"executable": false,
			"lamports":   2039280,
			"owner":      solana.TokenProgramID.String(),
			"rentEpoch":  0,
		})
	})
	f.on("getBalance", func([]json.RawMessage) interface{} {
		return withContext(1_500_000_000)
	})
	f.on("getTokenAccountBalance", func([]json.RawMessage) interface{} {
		return withContext(map[string]interface{}{"amount": "2500000", "decimals": 6, "uiAmountString": "2.5"})
	})

	conn := newTestConnection(t, srv.URL, Config{})
	ctx := context.Background()

	exists, err := conn.AccountExists(ctx, ata)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = conn.AccountExists(ctx, owner)
	require.NoError(t, err)
	assert.False(t, exists)

	lamports, err := conn.Balance(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), lamports)

	bal, err := conn.TokenBalance(ctx, owner, mint)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000), bal)

	// no associated account for this mint
	bal, err = conn.TokenBalance(ctx, owner, solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Zero(t, bal)
	assert.Equal(t, 1, f.count("getTokenAccountBalance"))
}

func TestSignatureStatusUnknown(t *testing.T) {
	f, srv := newFakeRPC(t)
	f.on("getSignatureStatuses", func([]json.RawMessage) interface{} {
		return withContext([]interface{}{nil})
	})

	conn := newTestConnection(t, srv.URL, Config{})
	status, err := conn.SignatureStatus(context.Background(), solana.Signature{})
	require.NoError(t, err)
	assert.Nil(t, status)
}

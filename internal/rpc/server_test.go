package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/chaincore/node/config"
	"github.com/chaincore/node/internal/chain"
	"github.com/chaincore/node/internal/consensus"
	klog "github.com/chaincore/node/internal/log"
	"github.com/chaincore/node/internal/mempool"
	"github.com/chaincore/node/internal/miner"
	"github.com/chaincore/node/internal/storage"
	"github.com/chaincore/node/internal/utxo"
	"github.com/chaincore/node/pkg/block"
	"github.com/chaincore/node/pkg/crypto"
	"github.com/chaincore/node/pkg/types"
)

// testEnv holds all components for an RPC test.
type testEnv struct {
	server        *Server
	chain         *chain.Chain
	utxoStore     *utxo.Store
	pool          *mempool.Pool
	genesis       *config.Genesis
	validatorKey  *crypto.PrivateKey
	validatorAddr types.Address
	addrHex       string
	url           string
	db            storage.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	// Generate validator key.
	validatorKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	validatorPub := validatorKey.PublicKey()
	validatorAddr := crypto.AddressFromPubKey(validatorPub)
	addrHex := validatorAddr.String()

	// Create genesis.
	gen := &config.Genesis{
		ChainID:   "klingnet-test-rpc",
		ChainName: "RPC Test",
		Timestamp: uint64(time.Now().Unix()),
		Alloc:     map[string]uint64{addrHex: 100_000 * config.Coin},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{
				BlockTime:         1,
				InitialDifficulty: 1,
				BlockReward:       config.MilliCoin,
				MaxSupply:         2_000_000 * config.Coin,
				MinFeeRate:        10,
			},
		},
	}

	// Create components.
	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	engine, err := consensus.NewPoW(gen.Protocol.Consensus.InitialDifficulty, gen.Protocol.Consensus.DifficultyAdjust, gen.Protocol.Consensus.BlockTime)
	if err != nil {
		t.Fatalf("create pow: %v", err)
	}

	ch, err := chain.New(types.ChainID{}, db, utxoStore, engine)
	if err != nil {
		t.Fatalf("create chain: %v", err)
	}
	if err := ch.InitFromGenesis(gen); err != nil {
		t.Fatalf("init genesis: %v", err)
	}

	adapter := miner.NewUTXOAdapter(utxoStore)
	pool := mempool.New(adapter, 1000)
	pool.SetMinFeeRate(gen.Protocol.Consensus.MinFeeRate)

	// Create and start RPC server on random port.
	srv := New("127.0.0.1:0", ch, utxoStore, pool, nil, gen, engine)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:        srv,
		chain:         ch,
		utxoStore:     utxoStore,
		pool:          pool,
		genesis:       gen,
		validatorKey:  validatorKey,
		validatorAddr: validatorAddr,
		addrHex:       addrHex,
		url:           fmt.Sprintf("http://%s/", srv.Addr()),
		db:            db,
	}
}

func rpcCall(t *testing.T, url, method string, params interface{}) Response {
	t.Helper()
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

// ── Tests ───────────────────────────────────────────────────────────────

func TestRPC_ChainGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result ChainInfoResult
	json.Unmarshal(data, &result)

	if result.ChainID != "klingnet-test-rpc" {
		t.Errorf("chain_id = %q, want %q", result.ChainID, "klingnet-test-rpc")
	}
	if result.Height != 0 {
		t.Errorf("height = %d, want 0", result.Height)
	}
	if result.TipHash == "" {
		t.Error("tip_hash is empty")
	}
}

func TestRPC_ChainGetBlockByHeight(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "chain_getBlockByHeight", HeightParam{Height: 0})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatal("result is nil")
	}

	data, _ := json.Marshal(resp.Result)
	var result BlockResult
	json.Unmarshal(data, &result)

	if result.Hash == "" {
		t.Error("block hash is empty")
	}
	if result.Header == nil {
		t.Error("block header is nil")
	}
	if len(result.Transactions) == 0 {
		t.Error("block has no transactions")
	}
	if result.Transactions[0].Hash == "" {
		t.Error("transaction hash is empty")
	}
}

func TestRPC_ChainGetBlockByHash(t *testing.T) {
	env := setupTestEnv(t)

	tipHash := env.chain.TipHash().String()
	resp := rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: tipHash})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatal("result is nil")
	}

	data, _ := json.Marshal(resp.Result)
	var result BlockResult
	json.Unmarshal(data, &result)

	if result.Hash == "" {
		t.Error("block hash is empty")
	}
	if result.Hash != tipHash {
		t.Errorf("block hash = %q, want %q", result.Hash, tipHash)
	}
}

func TestRPC_ChainGetBlockByHash_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	fakeHash := hex.EncodeToString(make([]byte, 32))
	resp := rpcCall(t, env.url, "chain_getBlockByHash", HashParam{Hash: fakeHash})
	if resp.Error == nil {
		t.Fatal("expected error for non-existent block")
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeNotFound)
	}
}

func TestRPC_ChainGetTransaction(t *testing.T) {
	env := setupTestEnv(t)

	// Get the genesis block's coinbase tx hash.
	blk, err := env.chain.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("get genesis: %v", err)
	}
	if len(blk.Transactions) == 0 {
		t.Fatal("genesis has no transactions")
	}
	txHash := blk.Transactions[0].Hash().String()

	resp := rpcCall(t, env.url, "chain_getTransaction", HashParam{Hash: txHash})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatal("result is nil")
	}

	data, _ := json.Marshal(resp.Result)
	var result TxResult
	json.Unmarshal(data, &result)

	if result.Hash == "" {
		t.Error("tx hash is empty")
	}
	if result.Hash != txHash {
		t.Errorf("tx hash = %q, want %q", result.Hash, txHash)
	}
	if result.Version != 1 {
		t.Errorf("tx version = %d, want 1", result.Version)
	}
}

func TestRPC_ChainGetTransaction_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	fakeHash := hex.EncodeToString(make([]byte, 32))
	resp := rpcCall(t, env.url, "chain_getTransaction", HashParam{Hash: fakeHash})
	if resp.Error == nil {
		t.Fatal("expected error for non-existent tx")
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeNotFound)
	}
}

func TestRPC_UTXOGetByAddress(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "utxo_getByAddress", AddressParam{Address: env.addrHex})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result UTXOListResult
	json.Unmarshal(data, &result)

	if len(result.UTXOs) == 0 {
		t.Fatal("expected at least one UTXO for validator address")
	}
}

func TestRPC_UTXOGetBalance(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "utxo_getBalance", AddressParam{Address: env.addrHex})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result BalanceResult
	json.Unmarshal(data, &result)

	expected := uint64(100_000) * config.Coin
	if result.Balance != expected {
		t.Errorf("balance = %d, want %d", result.Balance, expected)
	}
	// Genesis alloc UTXOs (height=0) are NOT marked coinbase, so fully spendable.
	if result.Spendable != expected {
		t.Errorf("spendable = %d, want %d", result.Spendable, expected)
	}
	if result.Immature != 0 {
		t.Errorf("immature = %d, want 0", result.Immature)
	}
	if result.Locked != 0 {
		t.Errorf("locked = %d, want 0", result.Locked)
	}
}

func TestRPC_UTXOGet(t *testing.T) {
	env := setupTestEnv(t)

	// Get the genesis coinbase tx to find its outpoint.
	blk, _ := env.chain.GetBlockByHeight(0)
	txHash := blk.Transactions[0].Hash().String()

	resp := rpcCall(t, env.url, "utxo_get", OutpointParam{TxID: txHash, Index: 0})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	if resp.Result == nil {
		t.Fatal("result is nil")
	}
}

func TestRPC_UTXOGet_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	fakeHash := hex.EncodeToString(make([]byte, 32))
	resp := rpcCall(t, env.url, "utxo_get", OutpointParam{TxID: fakeHash, Index: 99})
	if resp.Error == nil {
		t.Fatal("expected error for non-existent UTXO")
	}
	if resp.Error.Code != CodeNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeNotFound)
	}
}

func TestRPC_MempoolGetInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mempool_getInfo", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result MempoolInfoResult
	json.Unmarshal(data, &result)

	if result.Count != 0 {
		t.Errorf("count = %d, want 0", result.Count)
	}
	if result.MinFeeRate != 10 {
		t.Errorf("min_fee_rate = %d, want %d", result.MinFeeRate, 10)
	}
}

func TestRPC_MempoolGetContent(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mempool_getContent", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result MempoolContentResult
	json.Unmarshal(data, &result)

	if len(result.Hashes) != 0 {
		t.Errorf("hashes count = %d, want 0", len(result.Hashes))
	}
}

func TestRPC_NetGetNodeInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "net_getNodeInfo", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result NodeInfoResult
	json.Unmarshal(data, &result)

	// P2P node is nil in test, so ID should be empty.
	if result.ID != "" {
		t.Errorf("expected empty ID without P2P node, got %q", result.ID)
	}
}

func TestRPC_NetGetPeerInfo(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "net_getPeerInfo", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result PeerInfoResult
	json.Unmarshal(data, &result)

	if result.Count != 0 {
		t.Errorf("count = %d, want 0", result.Count)
	}
}

func TestRPC_MethodNotFound(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "nonexistent_method", nil)
	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestRPC_InvalidParams(t *testing.T) {
	env := setupTestEnv(t)

	// chain_getBlockByHash requires params.
	resp := rpcCall(t, env.url, "chain_getBlockByHash", nil)
	if resp.Error == nil {
		t.Fatal("expected error for missing params")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_InvalidAddress(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "utxo_getBalance", AddressParam{Address: "xyz"})
	if resp.Error == nil {
		t.Fatal("expected error for invalid address")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_InvalidJSON(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Post(env.url, "application/json", bytes.NewReader([]byte("not json")))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if rpcResp.Error.Code != CodeParseError {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeParseError)
	}
}

func TestRPC_GetMethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t)

	resp, err := http.Get(env.url)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for GET request")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// --- IP Filtering ---

func setupTestEnvWithConfig(t *testing.T, rpcCfg config.RPCConfig) *testEnv {
	t.Helper()
	klog.Init("error", false, "")

	validatorKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	validatorPub := validatorKey.PublicKey()
	validatorAddr := crypto.AddressFromPubKey(validatorPub)
	addrHex := validatorAddr.String()

	gen := &config.Genesis{
		ChainID:   "klingnet-test-rpc",
		ChainName: "RPC Test",
		Timestamp: uint64(time.Now().Unix()),
		Alloc:     map[string]uint64{addrHex: 100_000 * config.Coin},
		Protocol: config.ProtocolConfig{
			Consensus: config.ConsensusRules{
				BlockTime:         1,
				InitialDifficulty: 1,
				BlockReward:       config.MilliCoin,
				MaxSupply:         2_000_000 * config.Coin,
				MinFeeRate:        10,
			},
		},
	}

	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	engine, _ := consensus.NewPoW(gen.Protocol.Consensus.InitialDifficulty, gen.Protocol.Consensus.DifficultyAdjust, gen.Protocol.Consensus.BlockTime)

	ch, _ := chain.New(types.ChainID{}, db, utxoStore, engine)
	ch.InitFromGenesis(gen)

	adapter := miner.NewUTXOAdapter(utxoStore)
	pool := mempool.New(adapter, 1000)
	pool.SetMinFeeRate(gen.Protocol.Consensus.MinFeeRate)

	srv := New("127.0.0.1:0", ch, utxoStore, pool, nil, gen, engine, rpcCfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("start rpc: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testEnv{
		server:        srv,
		chain:         ch,
		utxoStore:     utxoStore,
		pool:          pool,
		genesis:       gen,
		validatorKey:  validatorKey,
		validatorAddr: validatorAddr,
		addrHex:       addrHex,
		url:           fmt.Sprintf("http://%s/", srv.Addr()),
	}
}

func TestRPC_IPFilter_Allowed(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"127.0.0.1"},
	})

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("expected success for 127.0.0.1, got error: %s", resp.Error.Message)
	}
}

func TestRPC_IPFilter_Blocked(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: []string{"10.0.0.0/8"}, // Only allow 10.x.x.x.
	})

	// Request comes from 127.0.0.1 → should be blocked.
	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	resp, err := http.Post(env.url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRPC_IPFilter_Empty_AllowsAll(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		AllowedIPs: nil, // Empty = allow all.
	})

	resp := rpcCall(t, env.url, "chain_getInfo", nil)
	if resp.Error != nil {
		t.Errorf("empty AllowedIPs should allow all: %s", resp.Error.Message)
	}
}

// --- CORS ---

func TestRPC_CORS_WildcardOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("CORS origin = %q, want %q", origin, "*")
	}
}

func TestRPC_CORS_SpecificOrigin(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"http://myapp.com"},
	})

	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)

	// Matching origin.
	httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", "http://myapp.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin != "http://myapp.com" {
		t.Errorf("CORS origin = %q, want %q", origin, "http://myapp.com")
	}

	// Non-matching origin.
	body2, _ := json.Marshal(req)
	httpReq2, _ := http.NewRequest("POST", env.url, bytes.NewReader(body2))
	httpReq2.Header.Set("Content-Type", "application/json")
	httpReq2.Header.Set("Origin", "http://evil.com")

	resp2, err := http.DefaultClient.Do(httpReq2)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp2.Body.Close()

	origin2 := resp2.Header.Get("Access-Control-Allow-Origin")
	if origin2 != "" {
		t.Errorf("non-matching origin should have no CORS header, got %q", origin2)
	}
}

func TestRPC_CORS_Preflight(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: []string{"*"},
	})

	httpReq, _ := http.NewRequest("OPTIONS", env.url, nil)
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") == "" {
		t.Error("preflight should have Allow-Methods header")
	}
}

func TestRPC_CORS_Disabled(t *testing.T) {
	env := setupTestEnvWithConfig(t, config.RPCConfig{
		CORSOrigins: nil, // Disabled.
	})

	req := Request{JSONRPC: "2.0", Method: "chain_getInfo", ID: 1}
	body, _ := json.Marshal(req)
	httpReq, _ := http.NewRequest("POST", env.url, bytes.NewReader(body))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", "http://example.com")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	origin := resp.Header.Get("Access-Control-Allow-Origin")
	if origin != "" {
		t.Errorf("disabled CORS should have no origin header, got %q", origin)
	}
}


// ── Mining endpoint tests ───────────────────────────────────────────────

func TestRPC_MiningGetBlockTemplate_Success(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mining_getBlockTemplate", MiningGetBlockTemplateParam{
		CoinbaseAddress: env.addrHex,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var result MiningBlockTemplateResult
	json.Unmarshal(data, &result)

	if result.Height != 1 {
		t.Errorf("height = %d, want 1", result.Height)
	}
	if result.Difficulty != 1 {
		t.Errorf("difficulty = %d, want 1", result.Difficulty)
	}
	if result.Target == "" {
		t.Error("target is empty")
	}
	if len(result.Target) != 64 {
		t.Errorf("target length = %d, want 64", len(result.Target))
	}
	if result.PrevHash == "" {
		t.Error("prev_hash is empty")
	}
	if result.Block == nil {
		t.Fatal("block is nil")
	}
	if result.Block.Header == nil {
		t.Fatal("block header is nil")
	}
	if result.Block.Header.Nonce != 0 {
		t.Errorf("template nonce = %d, want 0", result.Block.Header.Nonce)
	}
	if len(result.Block.Transactions) < 1 {
		t.Fatal("block has no transactions (expected coinbase)")
	}
}

func TestRPC_MiningGetBlockTemplate_NoCoinbaseAddress(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mining_getBlockTemplate", MiningGetBlockTemplateParam{})
	if resp.Error == nil {
		t.Fatal("expected error when coinbase_address is missing")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_MiningSubmitBlock_Success(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mining_getBlockTemplate", MiningGetBlockTemplateParam{
		CoinbaseAddress: env.addrHex,
	})
	if resp.Error != nil {
		t.Fatalf("get template error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var tmpl MiningBlockTemplateResult
	json.Unmarshal(data, &tmpl)

	// Re-marshal and unmarshal the block to simulate what an external miner does.
	blkJSON, _ := json.Marshal(tmpl.Block)
	var blk block.Block
	if err := json.Unmarshal(blkJSON, &blk); err != nil {
		t.Fatalf("unmarshal block: %v", err)
	}

	// Mine the block (difficulty 1 = almost any nonce works).
	targetInt := new(big.Int)
	targetInt.SetString(tmpl.Target, 16)

	mined := false
	for nonce := uint64(0); nonce < 1_000_000; nonce++ {
		blk.Header.Nonce = nonce
		hash := crypto.Hash(blk.Header.SigningBytes())
		hashInt := new(big.Int).SetBytes(hash[:])
		if hashInt.Cmp(targetInt) <= 0 {
			mined = true
			break
		}
	}
	if !mined {
		t.Fatal("failed to mine block with difficulty 1")
	}

	submitResp := rpcCall(t, env.url, "mining_submitBlock", MiningSubmitBlockParam{
		Block: &blk,
	})
	if submitResp.Error != nil {
		t.Fatalf("submit error: %v", submitResp.Error.Message)
	}

	submitData, _ := json.Marshal(submitResp.Result)
	var submitResult MiningSubmitBlockResult
	json.Unmarshal(submitData, &submitResult)

	if submitResult.Height != 1 {
		t.Errorf("height = %d, want 1", submitResult.Height)
	}
	if submitResult.BlockHash == "" {
		t.Error("block_hash is empty")
	}

	// Verify chain advanced.
	infoResp := rpcCall(t, env.url, "chain_getInfo", nil)
	if infoResp.Error != nil {
		t.Fatalf("chain_getInfo error: %v", infoResp.Error.Message)
	}
	infoData, _ := json.Marshal(infoResp.Result)
	var info ChainInfoResult
	json.Unmarshal(infoData, &info)

	if info.Height != 1 {
		t.Errorf("chain height = %d, want 1", info.Height)
	}
}

func TestRPC_MiningSubmitBlock_BadNonce(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mining_getBlockTemplate", MiningGetBlockTemplateParam{
		CoinbaseAddress: env.addrHex,
	})
	if resp.Error != nil {
		t.Fatalf("get template error: %v", resp.Error.Message)
	}

	data, _ := json.Marshal(resp.Result)
	var tmpl MiningBlockTemplateResult
	json.Unmarshal(data, &tmpl)

	blkJSON, _ := json.Marshal(tmpl.Block)
	var blk block.Block
	json.Unmarshal(blkJSON, &blk)

	// Override difficulty to something impossibly high (nonce 0 won't satisfy it).
	blk.Header.Difficulty = ^uint64(0)

	submitResp := rpcCall(t, env.url, "mining_submitBlock", MiningSubmitBlockParam{
		Block: &blk,
	})
	if submitResp.Error == nil {
		t.Fatal("expected error for bad nonce/difficulty")
	}
	if submitResp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", submitResp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_MiningSubmitBlock_NoBlock(t *testing.T) {
	env := setupTestEnv(t)

	resp := rpcCall(t, env.url, "mining_submitBlock", MiningSubmitBlockParam{})
	if resp.Error == nil {
		t.Fatal("expected error when block is missing")
	}
	if resp.Error.Code != CodeInvalidParams {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeInvalidParams)
	}
}

func TestRPC_BodySizeLimit(t *testing.T) {
	env := setupTestEnv(t)

	// Build a request body that exceeds 1 MB (maxBodySize = 1 << 20).
	bigPayload := make([]byte, (1<<20)+1024)
	for i := range bigPayload {
		bigPayload[i] = 'A'
	}

	resp, err := http.Post(env.url, "application/json", bytes.NewReader(bigPayload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	json.NewDecoder(resp.Body).Decode(&rpcResp)

	if rpcResp.Error == nil {
		t.Fatal("expected error for oversized request body")
	}
	if rpcResp.Error.Code != CodeInvalidRequest {
		t.Errorf("error code = %d, want %d", rpcResp.Error.Code, CodeInvalidRequest)
	}
}

// Copyright (c) 2024 djtezos contributors

// Package ethprovider adapts a legacy Ethereum JSON-RPC endpoint to the
// provider.Provider interface (spec §4.1, §9 "providers other than Tezos
// are a documented extension point"). It is grounded on tezosprovider for
// overall shape and on tezos/crypto.go's ecSign for the ECDSA signing
// primitive: both chains sign a 32-byte digest with a secp256k1 (Tezos
// secp256k1 curve; Ethereum's is the same curve) key via crypto/ecdsa, so
// the signing step here reuses the same crypto/ecdsa + dcrd/secp256k1
// pairing, generalized to Ethereum's legacy RLP transaction encoding and
// recoverable-signature (v,r,s) format instead of Tezos's fixed-length
// (r,s) watermarked bytes.
package ethprovider

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1"
	"github.com/echa/log"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/sha3"

	djerrors "github.com/yourlabs/djtezos/engine/errors"
	"github.com/yourlabs/djtezos/model"
	"github.com/yourlabs/djtezos/provider"
)

func init() {
	provider.Register("ethereum", New)
}

// Ethereum is the Provider for an Ethereum-family chain speaking legacy
// (pre-EIP-1559) JSON-RPC. One instance is constructed per Blockchain row.
type Ethereum struct {
	bc      *model.Blockchain
	client  *rpcClient
	chainID int64
}

// New constructs an Ethereum Provider against bc.Endpoint. Chain ID is
// resolved lazily on first use, the same deferred-dial convention
// tezosprovider.New uses, since registry.New (spec §9) runs without a
// context to query the endpoint with.
func New(bc *model.Blockchain) (provider.Provider, error) {
	return &Ethereum{bc: bc, client: newRPCClient(bc.Endpoint)}, nil
}

func (e *Ethereum) ensureChainID(ctx context.Context) error {
	if e.chainID != 0 {
		return nil
	}
	var hexID string
	if err := e.client.call(ctx, "eth_chainId", nil, &hexID); err != nil {
		return djerrors.WrapTemporary(err, "ethprovider: eth_chainId")
	}
	id, err := parseQuantity(hexID)
	if err != nil {
		return djerrors.WrapPermanent(err, "ethprovider: parse chain id")
	}
	e.chainID = id
	return nil
}

// CreateWallet generates a fresh secp256k1 keypair and derives its
// Ethereum address, the same GenerateKey-then-Address shape
// tezosprovider.CreateWallet uses for ed25519.
func (e *Ethereum) CreateWallet(ctx context.Context, passphrase string) (string, []byte, error) {
	sk, err := ecdsa.GenerateKey(secp256k1.S256(), rand.Reader)
	if err != nil {
		return "", nil, djerrors.WrapPermanent(err, "ethprovider: generate key")
	}
	addr := addressFromPublicKey(&sk.PublicKey)
	return addr, encodePrivateKey(sk), nil
}

// GetBalance returns address's balance in wei at the latest block.
// privateKey is unused; balances are queried by address alone.
func (e *Ethereum) GetBalance(ctx context.Context, address string, privateKey []byte) (int64, error) {
	var hexBal string
	params := []any{address, "latest"}
	if err := e.client.call(ctx, "eth_getBalance", params, &hexBal); err != nil {
		return 0, djerrors.Classify(err)
	}
	bal, err := parseQuantity(hexBal)
	if err != nil {
		return 0, djerrors.WrapPermanent(err, "ethprovider: parse balance")
	}
	return bal, nil
}

func (e *Ethereum) privateKeyFor(tx *model.Transaction) (*ecdsa.PrivateKey, error) {
	if len(tx.ArgsResolved) == 0 {
		return nil, djerrors.Permanentf("ethprovider: transaction has no resolved signer key")
	}
	pk := gjson.GetBytes(tx.ArgsResolved, "private_key")
	if !pk.Exists() {
		return nil, djerrors.Permanentf("ethprovider: resolved args missing private_key")
	}
	return decodePrivateKey(pk.String())
}

// Deploy dispatches tx to Transfer, Send or Originate by Variant, the
// uniform entry point the engine calls (spec §4.1).
func (e *Ethereum) Deploy(ctx context.Context, tx *model.Transaction) error {
	switch tx.Variant() {
	case model.VariantTransfer:
		return e.Transfer(ctx, tx)
	case model.VariantCall:
		return e.Send(ctx, tx)
	case model.VariantContract:
		return e.Originate(ctx, tx)
	default:
		return djerrors.Validationf("ethprovider: transaction is not a valid variant")
	}
}

// Transfer broadcasts a plain value transfer of tx.Amount wei to the
// address stored in tx's resolved args.
func (e *Ethereum) Transfer(ctx context.Context, tx *model.Transaction) error {
	dest := gjson.GetBytes(tx.ArgsResolved, "destination").String()
	if dest == "" {
		return djerrors.Validationf("ethprovider: transaction missing destination")
	}
	amount := int64(0)
	if tx.Amount != nil {
		amount = *tx.Amount
	}
	return e.submit(ctx, tx, &dest, amount, nil)
}

// Send invokes tx.Function on tx's contract by treating tx.Args as raw
// ABI-encoded calldata the caller has already packed (no on-the-fly ABI
// encoding is attempted; spec's Args/ArgsResolved are loose JSON/bytes
// columns, and legacy calldata is itself just bytes).
func (e *Ethereum) Send(ctx context.Context, tx *model.Transaction) error {
	if tx.ContractAddress == nil {
		return djerrors.Validationf("ethprovider: call transaction missing contract_address")
	}
	amount := int64(0)
	if tx.Amount != nil {
		amount = *tx.Amount
	}
	data := tx.Args
	if len(data) > 0 {
		if decoded, ok := decodeHexData(data); ok {
			data = decoded
		}
	}
	return e.submit(ctx, tx, tx.ContractAddress, amount, data)
}

// Originate deploys tx.ContractCode (raw or hex-encoded EVM init bytecode)
// as a new contract.
func (e *Ethereum) Originate(ctx context.Context, tx *model.Transaction) error {
	if len(tx.ContractCode) == 0 {
		return djerrors.Validationf("ethprovider: contract_code is empty")
	}
	data := tx.ContractCode
	if decoded, ok := decodeHexData(data); ok {
		data = decoded
	}
	amount := int64(0)
	if tx.Amount != nil {
		amount = *tx.Amount
	}
	return e.submit(ctx, tx, nil, amount, data)
}

// submit builds, signs and broadcasts one legacy transaction, then applies
// the resulting hash to tx. to == nil means contract creation.
func (e *Ethereum) submit(ctx context.Context, tx *model.Transaction, to *string, amount int64, data []byte) error {
	if err := e.ensureChainID(ctx); err != nil {
		return err
	}
	sk, err := e.privateKeyFor(tx)
	if err != nil {
		return err
	}
	from := addressFromPublicKey(&sk.PublicKey)

	nonce, err := e.nonceFor(ctx, from)
	if err != nil {
		return err
	}
	gasPrice, err := e.gasPrice(ctx)
	if err != nil {
		return err
	}
	gasLimit, err := e.estimateGas(ctx, from, to, amount, data)
	if err != nil {
		return err
	}

	ltx := &legacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		GasLimit: gasLimit,
		To:       to,
		Value:    amount,
		Data:     data,
		ChainID:  e.chainID,
	}
	raw, hash, err := signLegacyTx(ltx, sk)
	if err != nil {
		return djerrors.WrapPermanent(err, "ethprovider: sign transaction")
	}

	var txHash string
	if err := e.client.call(ctx, "eth_sendRawTransaction", []any{"0x" + hex.EncodeToString(raw)}, &txHash); err != nil {
		log.Errorf("ethprovider: tx %s: sendRawTransaction: %v", tx.ID, err)
		return djerrors.Classify(err)
	}
	log.Infof("ethprovider: tx %s: broadcast as %s", tx.ID, txHash)
	tx.TxHash = &txHash
	_ = hash
	return nil
}

func (e *Ethereum) nonceFor(ctx context.Context, address string) (int64, error) {
	var hexNonce string
	if err := e.client.call(ctx, "eth_getTransactionCount", []any{address, "pending"}, &hexNonce); err != nil {
		return 0, djerrors.WrapTemporary(err, "ethprovider: eth_getTransactionCount")
	}
	return parseQuantity(hexNonce)
}

func (e *Ethereum) gasPrice(ctx context.Context) (int64, error) {
	var hexPrice string
	if err := e.client.call(ctx, "eth_gasPrice", nil, &hexPrice); err != nil {
		return 0, djerrors.WrapTemporary(err, "ethprovider: eth_gasPrice")
	}
	return parseQuantity(hexPrice)
}

func (e *Ethereum) estimateGas(ctx context.Context, from string, to *string, amount int64, data []byte) (int64, error) {
	call := map[string]any{
		"from":  from,
		"value": "0x" + big.NewInt(amount).Text(16),
	}
	if to != nil {
		call["to"] = *to
	}
	if len(data) > 0 {
		call["data"] = "0x" + hex.EncodeToString(data)
	}
	var hexGas string
	if err := e.client.call(ctx, "eth_estimateGas", []any{call}, &hexGas); err != nil {
		return 0, djerrors.Classify(err)
	}
	return parseQuantity(hexGas)
}

// Watch checks tx.TxHash's inclusion depth against bc.ConfirmationBlocks,
// the same shared rule tezosprovider.Watch applies (spec §4.5, §4.6).
func (e *Ethereum) Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error {
	if tx.TxHash == nil {
		return djerrors.Temporaryf("ethprovider: transaction has no txhash yet")
	}
	var receipt *txReceipt
	if err := e.client.call(ctx, "eth_getTransactionReceipt", []any{*tx.TxHash}, &receipt); err != nil {
		return djerrors.Classify(err)
	}
	if receipt == nil {
		return djerrors.Temporaryf("ethprovider: receipt not yet available for %s", *tx.TxHash)
	}
	status, err := parseQuantity(receipt.Status)
	if err == nil && status == 0 {
		return djerrors.Permanentf("ethprovider: transaction %s reverted", *tx.TxHash)
	}
	level, err := parseQuantity(receipt.BlockNumber)
	if err != nil {
		return djerrors.WrapTemporary(err, "ethprovider: parse blockNumber")
	}
	tx.Level = &level
	if gas, err := parseQuantity(receipt.GasUsed); err == nil {
		tx.Gas = &gas
	}
	if receipt.ContractAddress != "" {
		tx.ContractAddress = &receipt.ContractAddress
	}
	head, err := e.HeadLevel(ctx, bc)
	if err != nil {
		return err
	}
	if head-level < bc.ConfirmationBlocks {
		return djerrors.Temporaryf("ethprovider: %d/%d confirmations", head-level, bc.ConfirmationBlocks)
	}
	return nil
}

// WatchBlockchain is a no-op: djtezos's Chain Watcher owns reconciliation
// and watermark advancement across every registered Provider (spec §4.5).
func (e *Ethereum) WatchBlockchain(ctx context.Context, bc *model.Blockchain) error {
	return nil
}

// HeadLevel returns the current chain head's block number.
func (e *Ethereum) HeadLevel(ctx context.Context, bc *model.Blockchain) (int64, error) {
	var hexNum string
	if err := e.client.call(ctx, "eth_blockNumber", nil, &hexNum); err != nil {
		return 0, djerrors.Classify(err)
	}
	return parseQuantity(hexNum)
}

// FindOperation scans blocks [fromLevel, toLevel] by number for a
// transaction matching txHash, the same linear range scan
// tezosprovider.FindOperation uses for reconciliation (spec §4.5, §4.6).
func (e *Ethereum) FindOperation(ctx context.Context, bc *model.Blockchain, txHash string, fromLevel, toLevel int64) (*provider.Operation, error) {
	for level := fromLevel; level <= toLevel; level++ {
		var block *blockByNumber
		hexLevel := "0x" + big.NewInt(level).Text(16)
		if err := e.client.call(ctx, "eth_getBlockByNumber", []any{hexLevel, true}, &block); err != nil {
			return nil, djerrors.Classify(err)
		}
		if block == nil {
			continue
		}
		for _, t := range block.Transactions {
			if !strings.EqualFold(t.Hash, txHash) {
				continue
			}
			return operationFromTx(ctx, e, t, level)
		}
	}
	return nil, djerrors.Temporaryf("ethprovider: operation %s not found in [%d,%d]", txHash, fromLevel, toLevel)
}

// FindOperationsByDestination scans blocks [fromLevel, toLevel] for
// transactions whose "to" address is in addresses, the discovery path
// for spec §4.5's "transaction with destination ∈ A" scan clause.
func (e *Ethereum) FindOperationsByDestination(ctx context.Context, bc *model.Blockchain, addresses []string, fromLevel, toLevel int64) ([]*provider.Operation, error) {
	if len(addresses) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		want[strings.ToLower(a)] = true
	}
	var out []*provider.Operation
	for level := fromLevel; level <= toLevel; level++ {
		var block *blockByNumber
		hexLevel := "0x" + big.NewInt(level).Text(16)
		if err := e.client.call(ctx, "eth_getBlockByNumber", []any{hexLevel, true}, &block); err != nil {
			return nil, djerrors.Classify(err)
		}
		if block == nil {
			continue
		}
		for _, t := range block.Transactions {
			if t.To == "" || !want[strings.ToLower(t.To)] {
				continue
			}
			op, err := operationFromTx(ctx, e, t, level)
			if err != nil {
				continue
			}
			op.TxHash = t.Hash
			out = append(out, op)
		}
	}
	return out, nil
}

func operationFromTx(ctx context.Context, e *Ethereum, t *rpcTx, level int64) (*provider.Operation, error) {
	out := &provider.Operation{Level: level}
	gasPrice, _ := parseQuantity(t.GasPrice)
	gas, _ := parseQuantity(t.Gas)
	out.Fee = gasPrice * gas
	if t.To != "" {
		out.Destination = t.To
	}
	var receipt *txReceipt
	if err := e.client.call(ctx, "eth_getTransactionReceipt", []any{t.Hash}, &receipt); err == nil && receipt != nil {
		if receipt.ContractAddress != "" {
			out.OriginatedAddress = receipt.ContractAddress
		}
	}
	return out, nil
}

// addressFromPublicKey derives the lower 20 bytes of the Keccak256 hash of
// the uncompressed public key's X||Y coordinates, Ethereum's address
// derivation rule.
func addressFromPublicKey(pub *ecdsa.PublicKey) string {
	buf := make([]byte, 64)
	pub.X.FillBytes(buf[:32])
	pub.Y.FillBytes(buf[32:])
	h := sha3.NewLegacyKeccak256()
	h.Write(buf)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}

func encodePrivateKey(sk *ecdsa.PrivateKey) []byte {
	buf := make([]byte, 32)
	sk.D.FillBytes(buf)
	return []byte("0x" + hex.EncodeToString(buf))
}

func decodePrivateKey(s string) (*ecdsa.PrivateKey, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, djerrors.Validationf("ethprovider: invalid private key hex: %s", err)
	}
	curve := secp256k1.S256()
	k := new(big.Int).SetBytes(raw)
	if k.Cmp(curve.Params().N) >= 0 || k.Sign() == 0 {
		return nil, djerrors.Validationf("ethprovider: private key out of range for secp256k1")
	}
	sk := &ecdsa.PrivateKey{D: k}
	sk.PublicKey.Curve = curve
	sk.PublicKey.X, sk.PublicKey.Y = curve.ScalarBaseMult(raw)
	return sk, nil
}

func decodeHexData(b []byte) ([]byte, bool) {
	s := strings.TrimSpace(string(b))
	s = strings.Trim(s, `"`)
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return raw, true
}

func parseQuantity(hexStr string) (int64, error) {
	s := strings.TrimPrefix(hexStr, "0x")
	if s == "" {
		return 0, nil
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("ethprovider: invalid quantity %q", hexStr)
	}
	return n.Int64(), nil
}

// --- JSON-RPC transport ---

type rpcClient struct {
	endpoint string
	http     *http.Client
}

func newRPCClient(endpoint string) *rpcClient {
	return &rpcClient{endpoint: endpoint, http: &http.Client{Timeout: 30 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("ethprovider: rpc error %d: %s", e.Code, e.Message)
}

func (c *rpcClient) call(ctx context.Context, method string, params []any, out any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return djerrors.WrapTemporary(err, "ethprovider: "+method)
	}
	defer resp.Body.Close()
	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return djerrors.WrapTemporary(err, "ethprovider: decode "+method+" response")
	}
	if rr.Error != nil {
		return rr.Error
	}
	if out == nil || len(rr.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rr.Result, out)
}

type txReceipt struct {
	Status          string `json:"status"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	ContractAddress string `json:"contractAddress"`
}

type rpcTx struct {
	Hash     string `json:"hash"`
	To       string `json:"to"`
	GasPrice string `json:"gasPrice"`
	Gas      string `json:"gas"`
}

type blockByNumber struct {
	Number       string   `json:"number"`
	Transactions []*rpcTx `json:"transactions"`
}

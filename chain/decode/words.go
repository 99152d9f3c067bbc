// Package decode turns raw EVM logs into the events.LogEvent/payload shapes
// the rest of the pipeline consumes. Every event kind's ABI layout is fixed
// here: which fields are indexed (topics) and which are packed into the
// log's data words, in the standard 32-byte-word ABI encoding.
package decode

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const wordSize = 32

// word returns the i'th 32-byte word of data.
func word(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if start+wordSize > len(data) {
		return nil, fmt.Errorf("decode: word %d out of range (data len %d)", i, len(data))
	}
	return data[start : start+wordSize], nil
}

func addressAt(data []byte, i int) (common.Address, error) {
	w, err := word(data, i)
	if err != nil {
		return common.Address{}, err
	}
	return common.BytesToAddress(w[12:]), nil
}

func uint256At(data []byte, i int) (*big.Int, error) {
	w, err := word(data, i)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

func uint8At(data []byte, i int) (uint8, error) {
	v, err := uint256At(data, i)
	if err != nil {
		return 0, err
	}
	return uint8(v.Uint64()), nil
}

func uint16At(data []byte, i int) (uint16, error) {
	v, err := uint256At(data, i)
	if err != nil {
		return 0, err
	}
	return uint16(v.Uint64()), nil
}

func uint64At(data []byte, i int) (uint64, error) {
	v, err := uint256At(data, i)
	if err != nil {
		return 0, err
	}
	return v.Uint64(), nil
}

// stringAt reads a dynamic ABI string whose offset word lives at index i:
// the word at i gives a byte offset (from the start of data) to a length
// word, immediately followed by the UTF-8 bytes, right-padded to a word
// boundary.
func stringAt(data []byte, i int) (string, error) {
	offsetWord, err := word(data, i)
	if err != nil {
		return "", err
	}
	offset := new(big.Int).SetBytes(offsetWord).Int64()
	if offset < 0 || int(offset)+wordSize > len(data) {
		return "", fmt.Errorf("decode: string offset %d out of range", offset)
	}
	lengthWord := data[offset : offset+wordSize]
	length := new(big.Int).SetBytes(lengthWord).Int64()
	start := offset + wordSize
	if length < 0 || int(start+length) > len(data) {
		return "", fmt.Errorf("decode: string length %d out of range", length)
	}
	return string(data[start : start+length]), nil
}

func addressFromTopic(topic common.Hash) common.Address {
	return common.BytesToAddress(topic.Bytes()[12:])
}

func uint8FromTopic(topic common.Hash) uint8 {
	return uint8(topic.Big().Uint64())
}

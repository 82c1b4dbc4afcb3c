// Copyright (c) 2024 djtezos contributors

package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporaryf(t *testing.T) {
	err := Temporaryf("rpc: %s", "timeout")
	assert.EqualError(t, err, "rpc: timeout")
	assert.True(t, IsTemporary(err))
	assert.False(t, IsPermanent(err))
	assert.False(t, IsValidation(err))
}

func TestWrapTemporaryNilIsNil(t *testing.T) {
	assert.Nil(t, WrapTemporary(nil, "ignored"))
}

func TestWrapTemporaryPreservesCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := WrapTemporary(cause, "broadcast failed")
	assert.EqualError(t, err, "broadcast failed: connection reset")
	assert.True(t, IsTemporary(err))

	var t1 *Temporary
	require.ErrorAs(t, err, &t1)
	assert.Equal(t, cause, t1.Unwrap())
}

func TestPermanentfClassification(t *testing.T) {
	err := Permanentf("script rejected operation")
	assert.True(t, IsPermanent(err))
	assert.False(t, IsTemporary(err))
}

func TestValidationfClassification(t *testing.T) {
	err := Validationf("transaction: invalid state %q", "bogus")
	assert.True(t, IsValidation(err))
	assert.False(t, IsTemporary(err))
	assert.False(t, IsPermanent(err))
}

func TestClassifyPreservesKnownClasses(t *testing.T) {
	perm := Permanentf("boom")
	assert.Same(t, perm, Classify(perm))

	temp := Temporaryf("boom")
	assert.Same(t, temp, Classify(temp))

	val := Validationf("boom")
	assert.Same(t, val, Classify(val))
}

func TestClassifyDefaultsUnknownToTemporary(t *testing.T) {
	plain := fmt.Errorf("some opaque provider error")
	classified := Classify(plain)
	assert.True(t, IsTemporary(classified))
	assert.False(t, IsPermanent(classified))
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, Classify(nil))
}

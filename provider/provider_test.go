// Copyright (c) 2024 djtezos contributors

package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourlabs/djtezos/model"
)

type stubProvider struct{ class string }

func (s *stubProvider) CreateWallet(ctx context.Context, passphrase string) (string, []byte, error) {
	return "", nil, nil
}
func (s *stubProvider) GetBalance(ctx context.Context, address string, privateKey []byte) (int64, error) {
	return 0, nil
}
func (s *stubProvider) Deploy(ctx context.Context, tx *model.Transaction) error    { return nil }
func (s *stubProvider) Transfer(ctx context.Context, tx *model.Transaction) error  { return nil }
func (s *stubProvider) Send(ctx context.Context, tx *model.Transaction) error      { return nil }
func (s *stubProvider) Originate(ctx context.Context, tx *model.Transaction) error { return nil }
func (s *stubProvider) Watch(ctx context.Context, bc *model.Blockchain, tx *model.Transaction) error {
	return nil
}
func (s *stubProvider) WatchBlockchain(ctx context.Context, bc *model.Blockchain) error { return nil }
func (s *stubProvider) HeadLevel(ctx context.Context, bc *model.Blockchain) (int64, error) {
	return 0, nil
}
func (s *stubProvider) FindOperation(ctx context.Context, bc *model.Blockchain, txHash string, fromLevel, toLevel int64) (*Operation, error) {
	return nil, nil
}
func (s *stubProvider) FindOperationsByDestination(ctx context.Context, bc *model.Blockchain, addresses []string, fromLevel, toLevel int64) ([]*Operation, error) {
	return nil, nil
}

func TestRegisterAndNewNormalizeProviderClass(t *testing.T) {
	Register("Stub Chain", func(bc *model.Blockchain) (Provider, error) {
		return &stubProvider{class: "stub_chain"}, nil
	})

	assert.True(t, Registered("stub_chain"))
	assert.True(t, Registered("Stub Chain"))
	assert.True(t, Registered("STUB_CHAIN"))

	p, err := New("stub chain", &model.Blockchain{Name: "x"})
	require.NoError(t, err)
	sp, ok := p.(*stubProvider)
	require.True(t, ok)
	assert.Equal(t, "stub_chain", sp.class)
}

func TestNewUnknownProviderClass(t *testing.T) {
	_, err := New("does-not-exist-xyz", &model.Blockchain{})
	require.Error(t, err)
	var unk ErrUnknownProviderClass
	require.ErrorAs(t, err, &unk)
	assert.Equal(t, "does-not-exist-xyz", unk.Class)
}

func TestRegisteredFalseForUnknown(t *testing.T) {
	assert.False(t, Registered("totally-unregistered-class"))
}

package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMoveMoney(t *testing.T) {
	valid := MoveMoney{Amount: 25.50, Note: "top up"}
	assert.NoError(t, valid.ValidateMoveMoney())

	for _, amount := range []float64{0, -10, math.NaN(), math.Inf(1)} {
		bad := MoveMoney{Amount: amount}
		assert.Error(t, bad.ValidateMoveMoney())
	}
}

func TestValidateCreateTransfer(t *testing.T) {
	valid := CreateTransfer{ToAccount: "BM1234567890", Amount: 40}
	assert.NoError(t, valid.ValidateCreateTransfer())

	// Canonicalisation happens downstream; format still has to hold.
	mixedCase := CreateTransfer{ToAccount: "bm1234567890", Amount: 40}
	assert.NoError(t, mixedCase.ValidateCreateTransfer())

	missingTarget := CreateTransfer{Amount: 40}
	assert.Error(t, missingTarget.ValidateCreateTransfer())

	badTarget := CreateTransfer{ToAccount: "XYZ123", Amount: 40}
	assert.Error(t, badTarget.ValidateCreateTransfer())

	badAmount := CreateTransfer{ToAccount: "BM1234567890", Amount: -1}
	assert.Error(t, badAmount.ValidateCreateTransfer())
}

func TestValidateCreateLink(t *testing.T) {
	valid := CreateLink{AccountNumber: "BM1234567890"}
	assert.NoError(t, valid.ValidateCreateLink())

	assert.Error(t, (&CreateLink{}).ValidateCreateLink())
	assert.Error(t, (&CreateLink{AccountNumber: "nope"}).ValidateCreateLink())
}

// Copyright (c) 2022 Blockwatch Data Inc.
// Author: alex@blockwatch.cc

package chain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMoneyBips(t *testing.T) {
	assert.Equal(t, Money(100), Money(10000).Bips(100), "one percent")
	assert.Equal(t, Money(0), Money(99).Bips(100), "rounds down")
	assert.Equal(t, Unit/100, Unit.Bips(100), "no overflow on large amounts")
	assert.Equal(t, Unit, Unit.Bips(10000), "full amount")
	assert.Equal(t, Money(0), Unit.Bips(0), "zero bips")
}

func TestAccountValid(t *testing.T) {
	assert.True(t, AccountID("station.op").IsValid())
	assert.False(t, AccountID("").IsValid(), "empty")
	assert.False(t, ZeroAccount.IsValid(), "zero address")
}

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"1", Unit},
		{"0.01", Unit / 100},
		{".5", Unit / 2},
		{"0.000000000000000001", 1},
		{"18", 18 * Unit},
	}
	for _, c := range cases {
		got, err := ParseMoney(c.in)
		assert.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
	for _, in := range []string{"", ".", "abc", "1.2.3", "0.0000000000000000001", "19", "-1"} {
		_, err := ParseMoney(in)
		assert.ErrorIs(t, err, ErrInvalidMoney, in)
	}
}

/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package crash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSharedConfigClampsNumMajorFrames(t *testing.T) {
	cfg := NewSharedConfig(ConfigOptions{NumMajorFrames: 0})
	assert.Equal(t, KMajorDefault, cfg.NumMajorFrames)

	cfg = NewSharedConfig(ConfigOptions{NumMajorFrames: 99})
	assert.Equal(t, 16, cfg.NumMajorFrames)

	cfg = NewSharedConfig(ConfigOptions{NumMajorFrames: 3})
	assert.Equal(t, 3, cfg.NumMajorFrames)
}

func TestNewSharedConfigDryRun(t *testing.T) {
	cfg := NewSharedConfig(ConfigOptions{FlipRate: 0.0, UseVerifier: true})
	assert.True(t, cfg.DryRun)

	cfg = NewSharedConfig(ConfigOptions{FlipRate: 0.5, UseVerifier: true})
	assert.False(t, cfg.DryRun)

	cfg = NewSharedConfig(ConfigOptions{FlipRate: 0.0, UseVerifier: false})
	assert.False(t, cfg.DryRun)
}

func TestBlacklistedHashBinarySearch(t *testing.T) {
	cfg := NewSharedConfig(ConfigOptions{
		StackHashBlacklist: []uint64{500, 100, 900, 300},
	})

	assert.True(t, cfg.BlacklistedHash(StackHash(100)))
	assert.True(t, cfg.BlacklistedHash(StackHash(900)))
	assert.False(t, cfg.BlacklistedHash(StackHash(101)))
	assert.False(t, cfg.BlacklistedHash(StackHash(0)))
}

func TestWhitelistedAndBlacklistedSymbol(t *testing.T) {
	cfg := NewSharedConfig(ConfigOptions{
		SymbolWhitelist: []string{"known_good"},
		SymbolBlacklist: []string{"known_bad"},
	})

	stack := CallStack{{PC: 1, Symbol: "unrelated"}, {PC: 2, Symbol: "known_bad"}}
	assert.Equal(t, "", cfg.WhitelistedSymbol(stack))
	assert.Equal(t, "known_bad", cfg.BlacklistedSymbol(stack))

	stack2 := CallStack{{PC: 1, Symbol: "known_good"}}
	assert.Equal(t, "known_good", cfg.WhitelistedSymbol(stack2))
	assert.Equal(t, "", cfg.BlacklistedSymbol(stack2))
}

func TestWhitelistedSymbolEmptySetNeverMatches(t *testing.T) {
	cfg := NewSharedConfig(ConfigOptions{})
	stack := CallStack{{PC: 1, Symbol: "anything"}}
	assert.Equal(t, "", cfg.WhitelistedSymbol(stack))
}

/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubDisassembler struct {
	mnemonic string
	ok       bool
}

func (s stubDisassembler) Disassemble(_ []byte, _ uint64, _ Mode) (string, bool) {
	return s.mnemonic, s.ok
}

func TestFormatNotMapped(t *testing.T) {
	assert.Equal(t, "[NOT_MMAPED]", Format(nil, nil, 0x1000, ModeX86_64))
}

func TestFormatUnknownModeOrBackend(t *testing.T) {
	assert.Equal(t, "[UNKNOWN]", Format(nil, []byte{0x90}, 0x1000, ModeX86_64))
	assert.Equal(t, "[UNKNOWN]", Format(stubDisassembler{ok: true, mnemonic: "nop"}, []byte{0x90}, 0x1000, ModeUnknown))
}

func TestFormatBackendFailure(t *testing.T) {
	backend := stubDisassembler{ok: false}
	assert.Equal(t, "[UNKNOWN]", Format(backend, []byte{0x90}, 0x1000, ModeX86_64))
}

func TestFormatSanitizesAndTruncates(t *testing.T) {
	backend := stubDisassembler{ok: true, mnemonic: "mov\teax, [ebx+0x10]\n"}
	got := Format(backend, []byte{0x89}, 0x1000, ModeX86_32)
	assert.NotContains(t, got, "\t")
	assert.NotContains(t, got, "\n")
	assert.LessOrEqual(t, len(got), 32)
}

func TestDeriveMode(t *testing.T) {
	assert.Equal(t, ModeThumb, DeriveMode("arm", true, true))
	assert.Equal(t, ModeARM, DeriveMode("arm", true, false))
	assert.Equal(t, ModeARM64, DeriveMode("arm64", false, false))
	assert.Equal(t, ModeX86_32, DeriveMode("amd64", true, false))
	assert.Equal(t, ModeX86_64, DeriveMode("amd64", false, false))
	assert.Equal(t, ModeUnknown, DeriveMode("riscv64", false, false))
}

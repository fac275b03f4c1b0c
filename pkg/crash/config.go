/*
 * Copyright (c) 2020. Ant Group. All rights reserved.
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package crash

import "sort"

// SharedConfig is a read-only snapshot established before attach and
// treated as immutable thereafter (spec.md §4.12): mutation requires a
// stop-the-world phase outside this core, so every field here is set once
// by the constructor and never written again.
type SharedConfig struct {
	WorkDir              string
	FileExt              string
	IgnoreBelowAddr      uint64
	SaveUnique           bool
	DisableRandomization bool
	DryRun               bool
	UseVerifier          bool
	SaveMaps             bool
	NumMajorFrames       int
	SymbolWhitelist      map[string]struct{}
	SymbolBlacklist      map[string]struct{}
	StackHashBlacklist   []uint64 // sorted ascending, searched by binary search
	LogPrefix            string   // sanitizer log filename prefix, e.g. "ASAN"
}

// NewSharedConfig builds an immutable config snapshot. whitelist/blacklist
// are copied into sets; hashBlacklist is copied and sorted so BlacklistedHash can
// binary-search it, matching spec.md §4.8 step 10's "sorted hash blacklist".
func NewSharedConfig(opts ConfigOptions) *SharedConfig {
	numMajor := opts.NumMajorFrames
	if numMajor <= 0 {
		numMajor = KMajorDefault
	}
	if numMajor > 16 {
		numMajor = 16
	}

	wl := make(map[string]struct{}, len(opts.SymbolWhitelist))
	for _, s := range opts.SymbolWhitelist {
		wl[s] = struct{}{}
	}
	bl := make(map[string]struct{}, len(opts.SymbolBlacklist))
	for _, s := range opts.SymbolBlacklist {
		bl[s] = struct{}{}
	}

	hashBl := make([]uint64, len(opts.StackHashBlacklist))
	copy(hashBl, opts.StackHashBlacklist)
	sort.Slice(hashBl, func(i, j int) bool { return hashBl[i] < hashBl[j] })

	logPrefix := opts.LogPrefix
	if logPrefix == "" {
		logPrefix = "ASAN"
	}

	return &SharedConfig{
		WorkDir:              opts.WorkDir,
		FileExt:              opts.FileExt,
		IgnoreBelowAddr:      opts.IgnoreBelowAddr,
		SaveUnique:           opts.SaveUnique,
		DisableRandomization: opts.DisableRandomization,
		DryRun:               opts.FlipRate == 0.0 && opts.UseVerifier,
		UseVerifier:          opts.UseVerifier,
		SaveMaps:             opts.SaveMaps,
		NumMajorFrames:       numMajor,
		SymbolWhitelist:      wl,
		SymbolBlacklist:      bl,
		StackHashBlacklist:   hashBl,
		LogPrefix:            logPrefix,
	}
}

// ConfigOptions is the set of recognized configuration keys (spec.md §6).
type ConfigOptions struct {
	WorkDir              string
	FileExt              string
	IgnoreBelowAddr      uint64
	SaveUnique           bool
	DisableRandomization bool
	FlipRate             float64 // dry_run == (FlipRate == 0.0 && UseVerifier)
	UseVerifier          bool
	SaveMaps             bool
	NumMajorFrames       int
	SymbolWhitelist      []string
	SymbolBlacklist      []string
	StackHashBlacklist   []uint64
	LogPrefix            string
}

// BlacklistedHash reports whether hash appears in the sorted hash
// blacklist, via binary search (spec.md §4.8 step 10).
func (c *SharedConfig) BlacklistedHash(hash StackHash) bool {
	list := c.StackHashBlacklist
	target := uint64(hash)
	lo, hi := 0, len(list)
	for lo < hi {
		mid := (lo + hi) / 2
		if list[mid] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(list) && list[lo] == target
}

// WhitelistedSymbol returns the first frame symbol in stack that appears
// in the whitelist, or "" if none does.
func (c *SharedConfig) WhitelistedSymbol(stack CallStack) string {
	return firstMatch(c.SymbolWhitelist, stack)
}

// BlacklistedSymbol returns the first frame symbol in stack that appears
// in the blacklist, or "" if none does.
func (c *SharedConfig) BlacklistedSymbol(stack CallStack) string {
	return firstMatch(c.SymbolBlacklist, stack)
}

func firstMatch(set map[string]struct{}, stack CallStack) string {
	if len(set) == 0 {
		return ""
	}
	for _, f := range stack {
		if f.Symbol == "" {
			continue
		}
		if _, ok := set[f.Symbol]; ok {
			return f.Symbol
		}
	}
	return ""
}

// Package factbook reproduces the NationStates factbook category table,
// ported verbatim (names and numeric codes) from
// original_source/src/ns/dispatch.rs's FactbookCategory/*Subcategory enums.
package factbook

import "github.com/pkg/errors"

// ErrInvalidFactbookCategory is returned by Validate for any (category,
// subcategory) pair outside the closed set below.
var ErrInvalidFactbookCategory = errors.New("invalid factbook category")

// Pair is the (category, subcategory) wire projection sent to the remote.
type Pair struct {
	Category    int16
	Subcategory int16
}

// the fixed closed set, category -> subcategory -> numeric pair.
var table = map[int16]map[int16]bool{
	1: { // Factbook
		100: true, // Overview
		101: true, // History
		102: true, // Geography
		103: true, // Culture
		104: true, // Politics
		105: true, // Legislation
		106: true, // Religion
		107: true, // Military
		108: true, // Economy
		109: true, // International
		110: true, // Trivia
		111: true, // Miscellaneous
	},
	3: { // Bulletin
		305: true, // Policy
		315: true, // News
		325: true, // Opinion
		385: true, // Campaign
	},
	5: { // Account
		505: true, // Military
		515: true, // Trade
		525: true, // Sport
		535: true, // Drama
		545: true, // Diplomacy
		555: true, // Science
		565: true, // Culture
		595: true, // Other
	},
	8: { // Meta
		835: true, // Gameplay
		845: true, // Reference
	},
}

// Validate checks a (category, subcategory) pair against the closed set,
// returning ErrInvalidFactbookCategory if it is not a recognized
// combination.
func Validate(category, subcategory int16) (Pair, error) {
	subs, ok := table[category]
	if !ok || !subs[subcategory] {
		return Pair{}, ErrInvalidFactbookCategory
	}
	return Pair{Category: category, Subcategory: subcategory}, nil
}

// Package model holds the value types shared by every stage of the
// discovery pipeline: raw items, classified items, source descriptors
// and the closed category enumeration.
package model

import (
	"fmt"
	"strings"
)

// Category is the closed content-type classification of a discovered item.
type Category string

const (
	Text  Category = "TEXT"
	Audio Category = "AUDIO"
	Image Category = "IMAGE"
	Music Category = "MUSIC"
	Drama Category = "DRAMA"
	File  Category = "FILE"

	// All is a virtual aggregate used for queries. Never assigned to an item.
	All Category = "ALL"
)

// Categories lists every assignable category in a fixed order.
// Scoring loops iterate in this order so ties resolve deterministically.
var Categories = []Category{Text, Audio, Image, Music, Drama, File}

// Assignable reports whether c may be attached to an item.
func (c Category) Assignable() bool {
	switch c {
	case Text, Audio, Image, Music, Drama, File:
		return true
	}
	return false
}

// Valid reports whether c is a member of the enumeration, including All.
func (c Category) Valid() bool {
	return c == All || c.Assignable()
}

func (c Category) String() string { return string(c) }

// Matches reports whether an item of category item belongs in a query for c.
func (c Category) Matches(item Category) bool {
	return c == All || c == item
}

// ParseCategory parses a category name case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

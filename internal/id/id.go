// Package id provides ID generation helpers used across packages.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const (
	PrefixProgram    = "prog"
	PrefixInvocation = "inv"
	PrefixNode       = "node"
	PrefixRun        = "run"
)

func New(prefix string) string {
	id, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

func NewWithLength(prefix string, length int) string {
	id, err := nanoid.New(length)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + id
}

const nodeLength = 12

func NewProgram() string    { return New(PrefixProgram) }
func NewInvocation() string { return New(PrefixInvocation) }
func NewRun() string        { return New(PrefixRun) }

// NewNode uses a shorter alphabet length; node ids appear by the dozen in
// search reports.
func NewNode() string { return NewWithLength(PrefixNode, nodeLength) }

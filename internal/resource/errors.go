// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resource

import "errors"

var (
	// ErrUnknownKind classifies kinds outside the closed video/document set.
	ErrUnknownKind = errors.New("unknown resource kind")
	// ErrInvalidID classifies empty or malformed resource ids.
	ErrInvalidID = errors.New("invalid resource id")
	// ErrExpired means the descriptor's signed URLs must not be used anymore.
	ErrExpired = errors.New("resource url expired")
	// ErrInvalidDescriptor classifies provider payloads that cannot be normalised.
	ErrInvalidDescriptor = errors.New("invalid resource descriptor")
	// ErrSelfReference means a descriptor names itself as its successor.
	ErrSelfReference = errors.New("resource sequence references itself")
	// ErrCircularChain means following successors eventually loops.
	ErrCircularChain = errors.New("resource sequence is circular")
)

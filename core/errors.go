// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a DocumentText failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidEmbedding indicates an Embedding failed validation.
	ErrInvalidEmbedding = errors.New("invalid embedding")

	// ErrInvalidCluster indicates a Cluster failed validation.
	ErrInvalidCluster = errors.New("invalid cluster")

	// ErrZeroID indicates an ID field was left unset.
	ErrZeroID = errors.New("id cannot be zero")

	// ErrNegativeFrequency indicates a term frequency below zero.
	ErrNegativeFrequency = errors.New("term frequency cannot be negative")

	// ErrEmptyVector indicates an embedding without a vector.
	ErrEmptyVector = errors.New("vector cannot be empty")

	// ErrTooFewMembers indicates a cluster with fewer than MinClusterSize members.
	ErrTooFewMembers = errors.New("cluster has too few members")
)

// OpError records a failed collaborator call with enough context for the
// caller to log it and surface a generic failure.
type OpError struct {
	Op  string // operation name, e.g. "index", "semantic-search"
	ID  string // document, user or query identifier
	Err error
}

func (e *OpError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// WrapOp wraps err in an OpError. It returns nil when err is nil.
func WrapOp(op string, id any, err error) error {
	if err == nil {
		return nil
	}
	var ident string
	if id != nil {
		ident = fmt.Sprint(id)
	}
	return &OpError{Op: op, ID: ident, Err: err}
}

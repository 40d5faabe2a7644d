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


package cluster

import "errors"

var (
	// ErrStoreRequired is returned when no cluster store is provided.
	ErrStoreRequired = errors.New("cluster store required")

	// ErrTermRepositoryRequired is returned when a term index repository is not provided.
	ErrTermRepositoryRequired = errors.New("term index repository required")

	// ErrUserRequired is returned when clustering is requested for user ID zero.
	ErrUserRequired = errors.New("user ID required")

	// ErrCommandRequired is returned when a CommandClusterer has no command.
	ErrCommandRequired = errors.New("clustering command required")

	// ErrExternalClusterer wraps every failure of the external clustering process.
	ErrExternalClusterer = errors.New("external clusterer failed")
)

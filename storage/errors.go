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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record, blob or artifact does
	// not exist.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey indicates an insert over an existing key.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrMissingID indicates a record whose caller-assigned identifier is empty.
	ErrMissingID = errors.New("record identifier is empty")

	// ErrSerializationFailed wraps every record codec failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates an encoded record that ended early.
	ErrTruncatedData = errors.New("truncated data")

	// ErrCorruptArtifact indicates a chunk or index artifact that cannot be decoded.
	ErrCorruptArtifact = errors.New("corrupt artifact")
)

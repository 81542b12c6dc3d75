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


package badger

import "errors"

// NewMemoryIndex opens an in-memory backend and returns a vector index and
// crawl ledger on it. Callers close the backend.
func NewMemoryIndex() (*VectorIndex, *Ledger, *Backend, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, nil, nil, err
	}

	index, err := NewVectorIndex(backend)
	if err != nil {
		return nil, nil, nil, errors.Join(err, backend.Close())
	}
	return index, NewLedger(backend), backend, nil
}

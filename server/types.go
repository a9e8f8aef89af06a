// Copyright 2016 Google Inc. All Rights Reserved.
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

package server

// STH is the signed commitment to the log at a given size.
// TimestampMillis is non-decreasing across successive STHs from the
// same log.
type STH struct {
	TreeSize        int64
	TimestampMillis int64
	RootHash        []byte
	Signature       []byte
}

// addChainRequest is the JSON body of add-chain / add-pre-chain. See
// RFC 6962 §4.1/§4.2.
type addChainRequest struct {
	Chain []string `json:"chain"`
}

// addChainResponse is the JSON reply to add-chain / add-pre-chain.
type addChainResponse struct {
	SCTVersion int    `json:"sct_version"`
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"`
	Extensions string `json:"extensions"`
	Signature  string `json:"signature"`
}

// getEntriesEntry is one element of a get-entries response. SCT is
// populated only when the request carried the include_scts extension
// (§4.5), a non-standard addition used by peer nodes following this
// one.
type getEntriesEntry struct {
	LeafInput []byte `json:"leaf_input"`
	ExtraData []byte `json:"extra_data"`
	SCT       []byte `json:"sct,omitempty"`
}

// getEntriesResponse is the JSON reply to get-entries. See RFC 6962 §4.6.
type getEntriesResponse struct {
	Entries []getEntriesEntry `json:"entries"`
}

// getSTHResponse is the JSON reply to get-sth. See RFC 6962 §4.3.
type getSTHResponse struct {
	TreeSize        int64  `json:"tree_size"`
	TimestampMillis int64  `json:"timestamp"`
	RootHash        []byte `json:"sha256_root_hash"`
	Signature       []byte `json:"tree_head_signature"`
}

// getProofByHashResponse is the JSON reply to get-proof-by-hash. See
// RFC 6962 §4.5.
type getProofByHashResponse struct {
	LeafIndex int64    `json:"leaf_index"`
	AuditPath [][]byte `json:"audit_path"`
}

// getSTHConsistencyResponse is the JSON reply to get-sth-consistency.
// See RFC 6962 §4.4.
type getSTHConsistencyResponse struct {
	Consistency [][]byte `json:"consistency"`
}

// getRootsResponse is the JSON reply to get-roots. See RFC 6962 §4.7.
type getRootsResponse struct {
	Certificates [][]byte `json:"certificates"`
}

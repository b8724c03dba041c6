package models

import (
	"fmt"
	"strings"
)

// Purpose tags what a stored blob is for.
type Purpose string

const (
	// PurposePayload is the primary uploaded document.
	PurposePayload Purpose = "payload"
	// PurposeDerived is a secondary artifact derived from the payload,
	// such as an extracted-text spreadsheet.
	PurposeDerived Purpose = "derived-payload"
)

// BlobKey identifies a stored blob: a purpose tag plus the owning node id.
//
// The serialized form is "<purpose>_<id>". Legacy archives used "pdf_" and
// "excel_" prefixes, or a bare node id for the primary payload; ParseBlobKey
// accepts all of them so old exports keep importing.
type BlobKey struct {
	Purpose Purpose
	NodeID  ID
}

// PayloadKey returns the primary payload key for a node.
func PayloadKey(id ID) BlobKey {
	return BlobKey{Purpose: PurposePayload, NodeID: id}
}

// DerivedKey returns the derived artifact key for a node.
func DerivedKey(id ID) BlobKey {
	return BlobKey{Purpose: PurposeDerived, NodeID: id}
}

// String returns the serialized "<purpose>_<id>" form.
func (k BlobKey) String() string {
	return string(k.Purpose) + "_" + k.NodeID.String()
}

// Validate checks that the key has a known purpose and a non-zero node id.
func (k BlobKey) Validate() error {
	if k.Purpose != PurposePayload && k.Purpose != PurposeDerived {
		return fmt.Errorf("unknown blob purpose: %q", k.Purpose)
	}
	if k.NodeID.IsZero() {
		return fmt.Errorf("blob key has no node id")
	}
	return nil
}

// legacyPrefixes maps prefixes from older exports to current purposes.
var legacyPrefixes = map[string]Purpose{
	"pdf":   PurposePayload,
	"excel": PurposeDerived,
}

// ParseBlobKey decodes a serialized blob key.
//
// Keys without a recognized purpose prefix are treated as bare node ids for
// the primary payload.
func ParseBlobKey(s string) (BlobKey, error) {
	// A bare id is exactly one encoded ID; it may itself contain '_' since
	// the sortable alphabet includes it, so try this before prefix splitting.
	if len(s) == idEncodedLen {
		if id, err := DecodeID(s); err == nil {
			return PayloadKey(id), nil
		}
	}
	if prefix, rest, ok := strings.Cut(s, "_"); ok {
		purpose := Purpose(prefix)
		if purpose != PurposePayload && purpose != PurposeDerived {
			p, legacy := legacyPrefixes[prefix]
			if !legacy {
				return parseBareKey(s)
			}
			purpose = p
		}
		id, err := DecodeID(rest)
		if err != nil {
			return BlobKey{}, fmt.Errorf("invalid blob key %q: %w", s, err)
		}
		return BlobKey{Purpose: purpose, NodeID: id}, nil
	}
	return parseBareKey(s)
}

func parseBareKey(s string) (BlobKey, error) {
	id, err := DecodeID(s)
	if err != nil {
		return BlobKey{}, fmt.Errorf("invalid blob key %q: %w", s, err)
	}
	return PayloadKey(id), nil
}

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainPayload = "chronicle/payload/v1"
	DomainVersion = "chronicle/version/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data). The null separator
// prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// PayloadDigest computes a content digest of a payload. Two payloads with
// the same digest are equal field-for-field. A nil payload (concept
// version) has a fixed digest.
func PayloadDigest(p Payload) (string, error) {
	doc := Doc{}
	if p != nil {
		doc = Doc{
			"semantic_type": Str(p.SemanticType().String()),
			"fields":        p.Doc(),
		}
	}
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("PayloadDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainPayload, canonical), nil
}

// PayloadsEqual reports whether two payloads carry the same content.
func PayloadsEqual(a, b Payload) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.SemanticType() != b.SemanticType() {
		return false
	}
	da, errA := PayloadDigest(a)
	db, errB := PayloadDigest(b)
	return errA == nil && errB == nil && da == db
}

// VersionDoc renders a version (stamp and payload) as a canonical document.
func VersionDoc(v Version) Doc {
	d := stampDoc(v.Stamp)
	if v.Payload != nil {
		d["payload"] = v.Payload.Doc()
	}
	return d
}

// VersionDigest computes a content digest over stamp and payload.
func VersionDigest(v Version) (string, error) {
	canonical, err := MarshalCanonical(VersionDoc(v))
	if err != nil {
		return "", fmt.Errorf("VersionDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainVersion, canonical), nil
}

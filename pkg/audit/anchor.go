package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Merkle anchoring over audit entries. Governance events and exported logs
// are anchored by building a tree over per-entry canonical leaf bytes; the
// root is the value handed to an external anchoring service, inclusion
// proofs let a third party check a single entry against that root.

const (
	leafPrefix = "psimesh:audit:leaf:v1"
	nodePrefix = "psimesh:audit:node:v1"
)

// AnchorLeaf is one hashed entry.
type AnchorLeaf struct {
	Seq      uint64 `json:"seq"`
	LeafHash string `json:"leaf_hash"`
}

// AnchorTree is a merkle tree over a log's entries in sequence order.
type AnchorTree struct {
	Leaves []AnchorLeaf `json:"leaves"`
	Levels [][]string   `json:"levels"`
	Root   string       `json:"root"`
}

// ProofStep is one sibling on the path from a leaf to the root.
type ProofStep struct {
	Side        string `json:"side"` // "L" or "R"
	SiblingHash string `json:"sibling_hash"`
}

// InclusionProof proves one entry's membership under Root.
type InclusionProof struct {
	Seq      uint64      `json:"seq"`
	LeafHash string      `json:"leaf_hash"`
	Root     string      `json:"root"`
	Path     []ProofStep `json:"path"`
}

// BuildAnchorTree constructs the merkle tree for the log's current entries.
// An empty log yields a tree with an empty root.
func BuildAnchorTree(l *Log) (*AnchorTree, error) {
	entries := l.Entries()
	leaves := make([]AnchorLeaf, len(entries))
	for i, e := range entries {
		lb, err := leafBytes(e)
		if err != nil {
			return nil, err
		}
		leaves[i] = AnchorLeaf{Seq: e.Seq, LeafHash: sha256Hex(lb)}
	}
	tree := &AnchorTree{Leaves: leaves}
	if len(leaves) == 0 {
		return tree, nil
	}
	level := make([]string, len(leaves))
	for i, lf := range leaves {
		level[i] = lf.LeafHash
	}
	for len(level) > 1 {
		tree.Levels = append(tree.Levels, level)
		level = nextLevel(level)
	}
	tree.Levels = append(tree.Levels, level)
	tree.Root = level[0]
	return tree, nil
}

// Prove builds the inclusion proof for the entry at seq.
func (t *AnchorTree) Prove(seq uint64) (*InclusionProof, error) {
	if seq >= uint64(len(t.Leaves)) {
		return nil, fmt.Errorf("audit: no leaf at sequence %d", seq)
	}
	proof := &InclusionProof{Seq: seq, LeafHash: t.Leaves[seq].LeafHash, Root: t.Root}
	idx := int(seq)
	for _, level := range t.Levels[:len(t.Levels)-1] {
		sibIdx := idx ^ 1
		sib := level[len(level)-1] // odd level: last node is its own sibling
		if sibIdx < len(level) {
			sib = level[sibIdx]
		}
		side := "R"
		if sibIdx < idx {
			side = "L"
		}
		proof.Path = append(proof.Path, ProofStep{Side: side, SiblingHash: sib})
		idx /= 2
	}
	return proof, nil
}

// VerifyInclusionProof recomputes the path and compares against the trusted
// root.
func VerifyInclusionProof(proof *InclusionProof, trustedRoot string) bool {
	if trustedRoot != "" && proof.Root != trustedRoot {
		return false
	}
	cur := proof.LeafHash
	for _, step := range proof.Path {
		if step.Side == "L" {
			cur = nodeHash(step.SiblingHash, cur)
		} else {
			cur = nodeHash(cur, step.SiblingHash)
		}
	}
	return cur == proof.Root
}

func leafBytes(e Entry) ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("audit: leaf marshal failed: %w", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("audit: leaf canonicalization failed: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString(leafPrefix)
	buf.WriteByte(0)
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], e.Seq)
	buf.Write(seq[:])
	buf.WriteByte(0)
	buf.Write(canon)
	return buf.Bytes(), nil
}

func nextLevel(hashes []string) []string {
	count := len(hashes)
	if count%2 != 0 {
		hashes = append(hashes, hashes[count-1])
		count++
	}
	next := make([]string, count/2)
	for i := 0; i < count; i += 2 {
		next[i/2] = nodeHash(hashes[i], hashes[i+1])
	}
	return next
}

func nodeHash(left, right string) string {
	var buf bytes.Buffer
	buf.WriteString(nodePrefix)
	buf.WriteByte(0)
	buf.Write(hexToBytes(left))
	buf.Write(hexToBytes(right))
	return sha256Hex(buf.Bytes())
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func hexToBytes(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}

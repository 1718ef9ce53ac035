package audit_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noetic-labs/psimesh/core/pkg/audit"
)

func anchorLog(n int) *audit.Log {
	l := audit.NewLog("anchor-test")
	for i := 0; i < n; i++ {
		l.Append("add", []string{fmt.Sprintf("%d", i), "1"}, fmt.Sprintf("%d", i+1), nil)
	}
	return l
}

// TestAnchorTreeDeterministic verifies the root depends only on the entry
// sequence.
func TestAnchorTreeDeterministic(t *testing.T) {
	t1, err := audit.BuildAnchorTree(anchorLog(5))
	require.NoError(t, err)
	t2, err := audit.BuildAnchorTree(anchorLog(5))
	require.NoError(t, err)
	assert.Equal(t, t1.Root, t2.Root)
	assert.NotEmpty(t, t1.Root)
}

// TestAnchorTreeEmptyLog verifies an empty log yields an empty root rather
// than an error.
func TestAnchorTreeEmptyLog(t *testing.T) {
	tree, err := audit.BuildAnchorTree(audit.NewLog(""))
	require.NoError(t, err)
	assert.Empty(t, tree.Root)
	assert.Empty(t, tree.Leaves)
}

// TestInclusionProofsVerify verifies every leaf proves against the root,
// including the odd trailing leaf that pairs with itself.
func TestInclusionProofsVerify(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8} {
		tree, err := audit.BuildAnchorTree(anchorLog(n))
		require.NoError(t, err)
		for seq := 0; seq < n; seq++ {
			proof, err := tree.Prove(uint64(seq))
			require.NoError(t, err, "n=%d seq=%d", n, seq)
			assert.True(t, audit.VerifyInclusionProof(proof, tree.Root), "n=%d seq=%d", n, seq)
		}
	}
}

// TestTamperedProofRejected verifies a flipped sibling hash breaks
// verification.
func TestTamperedProofRejected(t *testing.T) {
	tree, err := audit.BuildAnchorTree(anchorLog(4))
	require.NoError(t, err)
	proof, err := tree.Prove(2)
	require.NoError(t, err)

	proof.Path[0].SiblingHash = proof.Path[len(proof.Path)-1].SiblingHash
	if len(proof.Path) == 1 {
		proof.LeafHash = tree.Root
	}
	assert.False(t, audit.VerifyInclusionProof(proof, tree.Root))
}

// TestProofBoundToTrustedRoot verifies a proof carrying a different root is
// rejected even if internally consistent.
func TestProofBoundToTrustedRoot(t *testing.T) {
	tree1, err := audit.BuildAnchorTree(anchorLog(4))
	require.NoError(t, err)
	tree2, err := audit.BuildAnchorTree(anchorLog(6))
	require.NoError(t, err)

	proof, err := tree1.Prove(0)
	require.NoError(t, err)
	assert.False(t, audit.VerifyInclusionProof(proof, tree2.Root))
}

// TestProveOutOfRange verifies sequence bounds are checked.
func TestProveOutOfRange(t *testing.T) {
	tree, err := audit.BuildAnchorTree(anchorLog(2))
	require.NoError(t, err)
	_, err = tree.Prove(2)
	assert.Error(t, err)
}

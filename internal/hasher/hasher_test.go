package hasher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash_Deterministic(t *testing.T) {
	content := []byte("// @flow\nexport const x = 1;\n")
	assert.Equal(t, Hash(content), Hash(content))
}

func TestHash_DifferentContentDiffers(t *testing.T) {
	a := Hash([]byte("export const x = 1;"))
	b := Hash([]byte("export const x = 2;"))
	assert.NotEqual(t, a, b)
}

func TestHasher_StreamingMatchesOneShot(t *testing.T) {
	content := []byte("const a = require('./a');\nconst b = require('./b');\n")

	h := New()
	h.Update(content[:10])
	h.Update(content[10:])

	assert.Equal(t, Hash(content), h.Digest())
}

func TestHash_EmptyInput(t *testing.T) {
	assert.Equal(t, Hash(nil), Hash([]byte{}))
}

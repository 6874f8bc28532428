package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fast = Params{Memory: 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestHashVerify(t *testing.T) {
	phc, err := Hash(fast, "correct horse")
	require.NoError(t, err)
	assert.Contains(t, phc, "$argon2id$v=19$m=1024,t=1,p=1$")

	assert.True(t, Verify("correct horse", phc))
	assert.False(t, Verify("wrong horse", phc))
}

func TestHash_Empty(t *testing.T) {
	_, err := Hash(fast, "")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestVerify_Malformed(t *testing.T) {
	for _, phc := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1,t=1,p=1$AAAA$AAAA",
		"$argon2id$v=18$m=1024,t=1,p=1$AAAA$AAAA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$AAAA",
	} {
		assert.False(t, Verify("x", phc), phc)
	}
}

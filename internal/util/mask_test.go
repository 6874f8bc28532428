package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	assert.Equal(t, "a…e", MaskIdentifier("alice"))
	assert.Equal(t, "***", MaskIdentifier("bob"))
	assert.Equal(t, "", MaskIdentifier("  "))
	assert.Equal(t, "a…@e….com", MaskIdentifier("Alice@Example.com"))
	assert.Equal(t, "a…@e….com", MaskEmail("alice@example.com"))
}

package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	assert.Equal(t, "crowd dev (git unknown, built unknown)", String("crowd"))
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateTitle(t *testing.T) {
	assert.Equal(t, "Kurz", truncateTitle("Kurz", 10))
	assert.Equal(t, "Elektroauto", truncateTitle("Elektroauto", 11))
	assert.Equal(t, "Größe...", truncateTitle("Größere Akkus", 8), "cuts on runes, not bytes")
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPairFormatting(t *testing.T) {
	pair := Pair{From: "XRP", To: "PHP"}

	assert.Equal(t, "XRP_PHP", pair.String())
	assert.Equal(t, "XRPPHP", pair.Symbol())
}

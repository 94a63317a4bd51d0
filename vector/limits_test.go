package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsCheck(t *testing.T) {
	limits := Limits{MaxRecordChars: 4, MaxMetadataKeys: 1}

	assert.NoError(t, limits.Check("add", nil))
	assert.NoError(t, limits.Check("add", []Record{{ID: "a", Content: "ñññ"}}))

	err := limits.Check("add", []Record{{ID: "a", Content: strings.Repeat("x", 5)}})
	assert.Equal(t, KindTooLarge, Classify(err))

	err = limits.Check("add", []Record{{ID: "a", Metadata: map[string]string{"k1": "v", "k2": "v"}}})
	assert.Equal(t, KindPermanent, Classify(err))

	err = limits.Check("add", []Record{{Content: "x"}})
	assert.Equal(t, KindPermanent, Classify(err))
}

func TestLimitsCheck_ZeroMeansUnlimited(t *testing.T) {
	err := Limits{}.Check("add", []Record{{ID: "a", Content: strings.Repeat("x", 100000)}})
	assert.NoError(t, err)
}

func TestDefaultLimits(t *testing.T) {
	l := DefaultLimits()
	assert.Equal(t, 32000, l.MaxRecordChars)
	assert.Equal(t, 16, l.MaxMetadataKeys)
}

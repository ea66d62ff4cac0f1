package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract_DropsStopwordsAndShortTokens(t *testing.T) {
	got := Extract("What did I write about the budget meeting in March?")
	assert.Equal(t, []string{"write", "budget", "meeting", "march"}, got)
}

func TestExtract_Deduplicates(t *testing.T) {
	got := Extract("budget budget report budget")
	assert.Equal(t, []string{"budget", "report"}, got)
}

func TestCoverage_MissingKeywords(t *testing.T) {
	missing := Coverage([]string{"budget", "march", "invoice"}, "The budget report covers March spending.")
	assert.Equal(t, []string{"invoice"}, missing)
}

func TestCoverage_AllPresentYieldsNil(t *testing.T) {
	missing := Coverage([]string{"budget"}, "budget report")
	assert.Nil(t, missing)
}

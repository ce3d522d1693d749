package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggest(t *testing.T) {
	candidates := []string{"errorlimit", "exitonlimit", "toolname", "verbose"}
	assert.Equal(t, []string{"errorlimit"}, Suggest("errorlimt", candidates, 2))
	assert.Equal(t, []string{}, Suggest("colours", candidates, 2))
}

func TestDidYouMean(t *testing.T) {
	assert.Equal(t, " (did you mean warning?)", DidYouMean("warnign", []string{"error", "warning", "remark", "note"}, 2))
	assert.Equal(t, " (did you mean note or nots?)", DidYouMean("nota", []string{"note", "nots", "remark"}, 2))
	assert.Equal(t, "", DidYouMean("catastrophe", []string{"error", "warning"}, 2))
}

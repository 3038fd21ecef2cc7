package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/floodcat/internal/scoring"
)

func TestSelectExperiments(t *testing.T) {
	all := scoring.DefaultExperiments("s3://models/")

	got, err := selectExperiments(all, nil)
	require.NoError(t, err)
	assert.Len(t, got, len(all))

	got, err = selectExperiments(all, []string{"usfimr_tt", "SEN1FLOODS11_HAND"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "USFIMR_TT", got[0].ID)
	assert.Equal(t, "SEN1FLOODS11_HAND", got[1].ID)

	_, err = selectExperiments(all, []string{"nope"})
	assert.Error(t, err)
}

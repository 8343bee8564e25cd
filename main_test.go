package main

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	d, err := parseDate("2024-03-07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("")
	require.NoError(t, err)
	now := time.Now().UTC()
	assert.Equal(t, now.Format(time.DateOnly), d.Format(time.DateOnly))
	assert.Zero(t, d.Hour())

	_, err = parseDate("07/03/2024")
	assert.ErrorContains(t, err, "YYYY-MM-DD")
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "read: eof", oneLine("read:\neof"))
	long := oneLine(strings.Repeat("x", 200))
	assert.Len(t, long, 80)
	assert.True(t, strings.HasSuffix(long, "..."))

	accented := oneLine(strings.Repeat("é", 100))
	assert.True(t, utf8.ValidString(accented))
	assert.Equal(t, 80, utf8.RuneCountInString(accented))
	assert.Equal(t, "façade", oneLine("façade"))
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "load", "run", "schedule", "sources", "history"} {
		assert.True(t, names[want], want)
	}
	assert.NotNil(t, extractCmd.Flags().Lookup("output"))
	assert.NotNil(t, loadCmd.Flags().Lookup("table"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("verbose"))
}

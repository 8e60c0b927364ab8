package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cwbudde/clcore/internal/kcache"
)

func keys(infos []kcache.Info) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.Key
	}
	return out
}

func sampleInfos(now time.Time) []kcache.Info {
	return []kcache.Info{
		{Key: "k1", Created: now.AddDate(0, 0, -10)}, // 10 days old
		{Key: "k2", Created: now.AddDate(0, 0, -5)},  // 5 days old
		{Key: "k3", Created: now.AddDate(0, 0, -1)},  // 1 day old
		{Key: "k4", Created: now.AddDate(0, 0, -30)}, // 30 days old
	}
}

func TestSelectEntriesForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	toDelete := selectEntriesForDeletion(sampleInfos(now), 0, 7, now)
	assert.ElementsMatch(t, []string{"k1", "k4"}, keys(toDelete))
}

func TestSelectEntriesForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	toDelete := selectEntriesForDeletion(sampleInfos(now), 2, 0, now)
	assert.ElementsMatch(t, []string{"k4", "k1"}, keys(toDelete))
}

func TestSelectEntriesForDeletion_Combined(t *testing.T) {
	now := time.Now()
	// age selects k4; count keeps the newest three and also selects k4
	toDelete := selectEntriesForDeletion(sampleInfos(now), 3, 20, now)
	assert.Equal(t, []string{"k4"}, keys(toDelete))
}

func TestSelectEntriesForDeletion_NoLimitsSelectsAll(t *testing.T) {
	now := time.Now()
	toDelete := selectEntriesForDeletion(sampleInfos(now), 0, 0, now)
	assert.Len(t, toDelete, 4)
}

func TestSelectEntriesForDeletion_KeepMoreThanExist(t *testing.T) {
	now := time.Now()
	assert.Empty(t, selectEntriesForDeletion(sampleInfos(now), 10, 0, now))
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1 << 30, "1.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatBytes(tt.in))
	}
}

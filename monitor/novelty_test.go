package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoveltyFirstDescriptionAlwaysSpeaks(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	assert.True(t, n.shouldSpeak("I can see a desk with a laptop on it", time.Unix(100, 0)))
}

func TestNoveltyRepeatWithinWindowSuppressed(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	now := time.Unix(100, 0)

	text := "I can see a person sitting at a desk working on a laptop"
	n.spoke(text, now)

	assert.False(t, n.shouldSpeak(text, now.Add(10*time.Second)))
}

func TestNoveltyRepeatAfterWindowSpeaks(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	now := time.Unix(100, 0)

	text := "I can see a person sitting at a desk working on a laptop"
	n.spoke(text, now)

	assert.True(t, n.shouldSpeak(text, now.Add(61*time.Second)))
}

func TestNoveltyDifferentDescriptionSpeaks(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	now := time.Unix(100, 0)

	n.spoke("I can see a person sitting at a desk working on a laptop", now)

	assert.True(t, n.shouldSpeak("I notice the room is now empty and the lights are off",
		now.Add(5*time.Second)))
}

func TestNoveltySuppressionKeepsBaseline(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	now := time.Unix(100, 0)

	text := "I can see a person sitting at a desk working on a laptop"
	n.spoke(text, now)

	// Suppressed repeats do not refresh the baseline timestamp, so the
	// same text is spoken again once the original window lapses.
	assert.False(t, n.shouldSpeak(text, now.Add(30*time.Second)))
	assert.False(t, n.shouldSpeak(text, now.Add(59*time.Second)))
	assert.True(t, n.shouldSpeak(text, now.Add(61*time.Second)))
}

func TestNoveltyCaseInsensitive(t *testing.T) {
	n := newNoveltyFilter(0.90, time.Minute)
	now := time.Unix(100, 0)

	n.spoke("I can see a person sitting at a desk working on a laptop", now)

	assert.False(t, n.shouldSpeak("I CAN SEE A PERSON SITTING AT A DESK WORKING ON A LAPTOP",
		now.Add(5*time.Second)))
}

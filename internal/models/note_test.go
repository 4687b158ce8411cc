package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=abc", "youtube"},
		{"https://youtu.be/abc", "youtube"},
		{"https://instagram.com/p/xyz", "instagram"},
		{"https://TWITTER.com/someone/status/1", "twitter"},
		{"https://x.com/someone", "twitter"},
		{"https://www.tiktok.com/@user/video/1", "tiktok"},
		{"https://old.reddit.com/r/golang", "reddit"},
		{"https://www.linkedin.com/in/person", "linkedin"},
		{"https://github.com/golang/go", "github"},
		{"https://medium.com/@writer/post", "medium"},
		{"https://example.com/article", "web"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectPlatform(tt.url), "url %q", tt.url)
	}
}

func TestNewNoteID(t *testing.T) {
	id := NewNoteID()
	assert.True(t, strings.HasPrefix(id, "note_"))
	assert.Len(t, id, len("note_")+12)

	assert.NotEqual(t, id, NewNoteID())
}

func TestValidType(t *testing.T) {
	for _, valid := range []NoteType{LinkNote, TextNote, VoiceNote, ImageNote} {
		assert.True(t, ValidType(valid))
	}
	assert.False(t, ValidType("video"))
	assert.False(t, ValidType(""))
}

func TestCloneIsDeep(t *testing.T) {
	note := &Note{ID: "note_1", Tags: []string{"a"}}
	clone := note.Clone()

	clone.Tags[0] = "mutated"
	assert.Equal(t, "a", note.Tags[0])
}

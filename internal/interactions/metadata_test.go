package interactions

import (
	"testing"

	"github.com/agora-forum/agora/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]interface{}
		want string
	}{
		{"plain", map[string]interface{}{"category": "tech"}, "tech"},
		{"normalized", map[string]interface{}{"category": "  #Tech "}, "tech"},
		{"not a string", map[string]interface{}{"category": 12}, ""},
		{"missing", map[string]interface{}{"tags": []interface{}{"go"}}, ""},
		{"nil", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Category(tt.meta))
		})
	}
}

func TestTopics(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]interface{}
		want []string
	}{
		{
			name: "array",
			meta: map[string]interface{}{"tags": []interface{}{"Go", "#databases"}},
			want: []string{"go", "databases"},
		},
		{
			name: "legacy string",
			meta: map[string]interface{}{"tags": "go, rust  zig"},
			want: []string{"go", "rust", "zig"},
		},
		{
			name: "tags and topics merged",
			meta: map[string]interface{}{"tags": []interface{}{"go"}, "topics": []interface{}{"go", "backend"}},
			want: []string{"go", "backend"},
		},
		{
			name: "non-string items skipped",
			meta: map[string]interface{}{"tags": []interface{}{1, "ok"}},
			want: []string{"ok"},
		},
		{
			name: "none",
			meta: map[string]interface{}{"category": "tech"},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Topics(tt.meta))
		})
	}
}

func TestNormalizeKeyTruncates(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	assert.Len(t, NormalizeKey(long), 32)
}

func TestWeights(t *testing.T) {
	w := DefaultWeights()

	assert.Equal(t, 3.0, w.Weight(models.ActionLikePost))
	assert.Equal(t, -2.0, w.Weight(models.ActionVotePostDown))
	assert.Equal(t, DefaultWeight, w.Weight(models.ActionFollowUser))

	custom := NewWeights(map[string]float64{"view_post": 0.5})
	assert.Equal(t, 0.5, custom.Weight(models.ActionViewPost))
	assert.Equal(t, DefaultWeight, custom.Weight(models.ActionLikePost))
}

package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soyeahso/roombot/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixture() *Base {
	return New([]Policy{
		{Category: "Facilities", Question: "What is the wifi password?", Keywords: []string{"WiFi", "internet"}, Answer: "Use Mate-Guest."},
		{Category: "Visitors", Question: "How do I register a guest?", Keywords: []string{"guest"}, Answer: "Register a day ahead."},
		{Category: "Facilities", Question: "Where is coffee?", Keywords: []string{"coffee"}, Answer: "In the lounge, next to the wifi router."},
		{Category: "Office", Question: "Opening hours?", Keywords: []string{"hours"}, Answer: "07:00 to 22:00."},
	})
}

func TestSearch_EmptyQuery(t *testing.T) {
	assert.Equal(t, EmptyQueryMessage, fixture().Search(context.Background(), "   "))
}

func TestSearch_NoMatch(t *testing.T) {
	assert.Equal(t, NoMatchMessage, fixture().Search(context.Background(), "zebra"))
}

func TestSearch_KeywordsAreCaseInsensitive(t *testing.T) {
	out := fixture().Search(context.Background(), "wifi")
	parts := strings.Split(out, "\n---\n")
	require.Len(t, parts, 2)
	assert.Equal(t, "[Facilities] Q: What is the wifi password?\nA: Use Mate-Guest.", parts[0])
	assert.True(t, strings.HasPrefix(parts[1], "[Facilities] Q: Where is coffee?"))
}

func TestSearch_WholeQuestionBoost(t *testing.T) {
	out := fixture().Search(context.Background(), "opening hours?")
	assert.True(t, strings.HasPrefix(out, "[Office] Q: Opening hours?"))
}

func TestSearch_TopThree(t *testing.T) {
	b := New([]Policy{
		{Category: "a", Question: "room one", Answer: "x"},
		{Category: "b", Question: "room two", Answer: "x"},
		{Category: "c", Question: "room three", Answer: "x"},
		{Category: "d", Question: "room four", Answer: "x"},
	})
	out := b.Search(context.Background(), "room")
	parts := strings.Split(out, "\n---\n")
	require.Len(t, parts, 3)
	// Equal scores keep declaration order.
	assert.True(t, strings.HasPrefix(parts[0], "[a]"))
	assert.True(t, strings.HasPrefix(parts[2], "[c]"))
}

func TestScore(t *testing.T) {
	p := Policy{Question: "Where is coffee?", Keywords: []string{"coffee"}, Answer: "lounge coffee bar"}
	// keyword +5, whole query in question +10, term in question +1, term in answer +0.5
	assert.Equal(t, 16.5, score(p, "coffee", []string{"coffee"}))
}

func TestDefaultAndLoad(t *testing.T) {
	log := logging.New(nil, "silent")
	def := Default()
	assert.Greater(t, def.Len(), 3)
	assert.Contains(t, def.Search(context.Background(), "what is the wifi password"), "Mate-Guest")

	b, err := Load(filepath.Join(t.TempDir(), "missing.json"), log)
	require.NoError(t, err)
	assert.Equal(t, def.Len(), b.Len())

	path := filepath.Join(t.TempDir(), "policies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"category":"X","question":"Q?","keywords":["zebra"],"answer":"A."}]`), 0o600))
	b, err = Load(path, log)
	require.NoError(t, err)
	assert.Equal(t, "[X] Q: Q?\nA: A.", b.Search(context.Background(), "zebra"))

	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))
	_, err = Load(path, log)
	assert.Error(t, err)
}

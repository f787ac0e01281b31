package algorithm

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devrev/taskqueue/internal/model"
)

func TestRank_Formulas(t *testing.T) {
	tests := []struct {
		name    string
		class   model.TaskClass
		seconds int64
		want    float64
	}{
		{name: "normal is linear", class: model.TaskClassNormal, seconds: 100, want: 100},
		{name: "priority", class: model.TaskClassPriority, seconds: 100, want: 100 * math.Log(100)},
		{name: "priority older", class: model.TaskClassPriority, seconds: 200, want: 200 * math.Log(200)},
		{name: "vip", class: model.TaskClassVIP, seconds: 100, want: 2 * 100 * math.Log(100)},
		{name: "vip older", class: model.TaskClassVIP, seconds: 200, want: 2 * 200 * math.Log(200)},
		{name: "override reports age", class: model.TaskClassManagementOverride, seconds: 42, want: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Rank(tt.class, tt.seconds), 1e-9)
		})
	}
}

// Short waits hit the floor constants; the logarithm never leaks NaN or -Inf.
func TestRank_ShortWaitBoundary(t *testing.T) {
	for _, s := range []int64{-5, 0, 1, 2} {
		assert.Equal(t, PriorityRankFloor, Rank(model.TaskClassPriority, s), "priority at %ds", s)
		assert.Equal(t, VIPRankFloor, Rank(model.TaskClassVIP, s), "vip at %ds", s)
	}
	assert.Equal(t, 0.0, Rank(model.TaskClassNormal, 0))
	assert.Equal(t, 0.0, Rank(model.TaskClassNormal, -3), "negative waits clamp to zero")

	assert.InDelta(t, 3*math.Log(3), Rank(model.TaskClassPriority, 3), 1e-9)
	assert.Greater(t, Rank(model.TaskClassPriority, 3), PriorityRankFloor)
	assert.InDelta(t, 6*math.Log(3), Rank(model.TaskClassVIP, 3), 1e-9)
}

func TestRank_MonotonicWithinClass(t *testing.T) {
	for _, class := range Precedence {
		prev := Rank(class, 0)
		for s := int64(1); s <= 5000; s++ {
			r := Rank(class, s)
			require.False(t, math.IsNaN(r))
			require.GreaterOrEqual(t, r, prev, "%s rank decreased at %ds", class, s)
			prev = r
		}
	}
}

func TestSelect(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	at := func(id, ago int64) *model.Task { return model.NewTask(id, now.Unix()-ago) }

	t.Run("no candidates", func(t *testing.T) {
		_, ok := Select(Candidates{}, now)
		assert.False(t, ok)
	})

	t.Run("override is ignored", func(t *testing.T) {
		var c Candidates
		c[model.TaskClassManagementOverride] = at(15, 1000)
		_, ok := Select(c, now)
		assert.False(t, ok)
	})

	t.Run("highest rank wins", func(t *testing.T) {
		var c Candidates
		c[model.TaskClassNormal] = at(7, 200)   // 200
		c[model.TaskClassPriority] = at(9, 200) // ~1059
		c[model.TaskClassVIP] = at(25, 100)     // ~921
		class, ok := Select(c, now)
		require.True(t, ok)
		assert.Equal(t, model.TaskClassPriority, class)
	})

	t.Run("fresh normal task is still selectable", func(t *testing.T) {
		var c Candidates
		c[model.TaskClassNormal] = at(1, 0)
		class, ok := Select(c, now)
		require.True(t, ok)
		assert.Equal(t, model.TaskClassNormal, class)
	})

	t.Run("ties follow precedence", func(t *testing.T) {
		var c Candidates
		c[model.TaskClassNormal] = at(1, 4)   // 4
		c[model.TaskClassVIP] = at(5, 1)      // floor 4
		c[model.TaskClassPriority] = at(3, 0) // floor 3
		class, ok := Select(c, now)
		require.True(t, ok)
		assert.Equal(t, model.TaskClassVIP, class)

		c[model.TaskClassVIP] = nil
		c[model.TaskClassNormal] = at(1, 3) // 3
		class, ok = Select(c, now)
		require.True(t, ok)
		assert.Equal(t, model.TaskClassPriority, class)
	})
}

package bisect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGap_LenAndOrder(t *testing.T) {
	g := Gap{Lo: 3, Hi: 7}
	assert.Equal(t, 5, g.Len())

	g2 := Gap{Lo: 0, Hi: 4}
	assert.Equal(t, 5, g2.Len())
	assert.True(t, g2.before(g), "equal length: smaller lo wins")
	assert.False(t, g.before(g2))

	assert.True(t, Gap{Lo: 5, Hi: 9}.before(Gap{Lo: 0, Hi: 1}), "longer gap wins regardless of lo")
}

func TestGaps(t *testing.T) {
	tests := []struct {
		name    string
		covered []bool
		want    []Gap
	}{
		{"empty", nil, nil},
		{"all covered", []bool{true, true}, nil},
		{"all uncovered", []bool{false, false, false}, []Gap{{0, 2}}},
		{"edges", []bool{false, true, true, false, false}, []Gap{{0, 0}, {3, 4}}},
		{"middle", []bool{true, false, false, true}, []Gap{{1, 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Gaps(tt.covered))
		})
	}
}

func TestPlan(t *testing.T) {
	F, T := false, true

	tests := []struct {
		name    string
		covered []bool
		limit   *int
		want    []bool
	}{
		{"unlimited covers all uncovered", []bool{F, F, T, F}, nil, []bool{T, T, F, T}},
		{"unlimited matches negation", []bool{F, T, F, T, F}, nil, []bool{T, F, T, F, T}},
		{"even length gap picks lower mid", []bool{F, F, F, F}, Limit(1), []bool{F, T, F, F}},
		{"two mids split largest gap first", []bool{F, F, F, F}, Limit(2), []bool{F, T, T, F}},
		{"odd length gap floor mid", []bool{F, F, F}, Limit(1), []bool{F, T, F}},
		{"existing pending exhausts budget", []bool{F, T, F, F}, Limit(1), []bool{F, F, F, F}},
		{"single uncovered within budget", []bool{T, T, F, T}, Limit(5), []bool{F, F, T, F}},
		{"single uncovered no budget", []bool{T, T, F, T}, Limit(1), []bool{F, F, F, F}},
		{"limit beyond uncovered", []bool{T, F, F, T, F}, Limit(10), []bool{F, T, T, F, T}},
		{"no uncovered unlimited", []bool{T, T, T}, nil, []bool{F, F, F}},
		{"no uncovered zero limit", []bool{T, T, T}, Limit(0), []bool{F, F, F}},
		{"no uncovered limit equal", []bool{T, T, T}, Limit(3), []bool{F, F, F}},
		{"limit lower than current", []bool{T, F, T, F, T, T}, Limit(2), []bool{F, F, F, F, F, F}},
		{"negative limit", []bool{F, F}, Limit(-3), []bool{F, F}},
		{"equal gaps pick left", []bool{F, F, T, F, F}, Limit(2), []bool{T, F, F, F, F}},
		{"empty input", []bool{}, Limit(3), []bool{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Plan(tt.covered, tt.limit))
		})
	}
}

func TestPlan_BudgetProperty(t *testing.T) {
	F, T := false, true
	covered := []bool{
		F, F, T, F, F, F, T, T, F, T,
		F, F, F, T, F, T, F, F, T, F,
	}
	assert.Equal(t, 7, Count(covered))

	uncovered := len(covered) - Count(covered)
	for limit := 0; limit <= len(covered)+2; limit++ {
		res := Plan(covered, Limit(limit))

		want := max(0, limit-Count(covered))
		want = min(want, uncovered)
		assert.Equal(t, want, Count(res), "limit=%d", limit)

		for i := range res {
			if covered[i] {
				assert.False(t, res[i], "limit=%d marked covered index %d", limit, i)
			}
		}
	}
}

func TestPlan_Deterministic(t *testing.T) {
	covered := []bool{false, false, false, true, false, false, false}
	first := Plan(covered, Limit(2))
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Plan(covered, Limit(2)))
	}
	// Gaps [0,2] and [4,6] tie on length; the left one is probed first.
	assert.Equal(t, []bool{false, true, false, false, false, false, false}, first)
}

func TestPlan_DoesNotMutateInput(t *testing.T) {
	covered := []bool{false, true, false, false}
	snapshot := append([]bool(nil), covered...)
	Plan(covered, Limit(4))
	assert.Equal(t, snapshot, covered)
}

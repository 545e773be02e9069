package services

import (
	"testing"

	"fitroomapi/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(name string) TryOnItem {
	return TryOnItem{
		Garment: models.Garment{Name: name},
		Image:   ImageInput{Data: []byte(name), MIMEType: "image/png"},
	}
}

func names(combination Combination) []string {
	out := make([]string, 0, len(combination))
	for _, it := range combination {
		out = append(out, it.Garment.Name)
	}
	return out
}

func TestGenerateCombinationsTopsCrossBottoms(t *testing.T) {
	sel := Selection{
		Tops:    []TryOnItem{item("tee"), item("shirt")},
		Bottoms: []TryOnItem{item("jeans")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 2)
	assert.Equal(t, []string{"tee", "jeans"}, names(combos[0]))
	assert.Equal(t, []string{"shirt", "jeans"}, names(combos[1]))
}

func TestGenerateCombinationsTopMajorOrder(t *testing.T) {
	sel := Selection{
		Tops:    []TryOnItem{item("t1"), item("t2")},
		Bottoms: []TryOnItem{item("b1"), item("b2")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 4)
	assert.Equal(t, []string{"t1", "b1"}, names(combos[0]))
	assert.Equal(t, []string{"t1", "b2"}, names(combos[1]))
	assert.Equal(t, []string{"t2", "b1"}, names(combos[2]))
	assert.Equal(t, []string{"t2", "b2"}, names(combos[3]))
}

func TestGenerateCombinationsOutfitsOverrideTopsAndBottoms(t *testing.T) {
	sel := Selection{
		Outfits: []TryOnItem{item("dress")},
		Tops:    []TryOnItem{item("tee")},
		Bottoms: []TryOnItem{item("jeans")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 1)
	assert.Equal(t, []string{"dress"}, names(combos[0]))
}

func TestGenerateCombinationsAccessoriesCross(t *testing.T) {
	sel := Selection{
		Tops:     []TryOnItem{item("tee")},
		Footwear: []TryOnItem{item("boots"), item("sneakers")},
		Headwear: []TryOnItem{item("cap")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 2)
	assert.Equal(t, []string{"tee", "boots", "cap"}, names(combos[0]))
	assert.Equal(t, []string{"tee", "sneakers", "cap"}, names(combos[1]))
}

func TestGenerateCombinationsAccessoriesOnly(t *testing.T) {
	sel := Selection{
		Accessories: []TryOnItem{item("scarf"), item("belt")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 2)
	assert.Equal(t, []string{"scarf"}, names(combos[0]))
	assert.Equal(t, []string{"belt"}, names(combos[1]))
}

func TestGenerateCombinationsEmptySelection(t *testing.T) {
	assert.Empty(t, GenerateCombinations(Selection{}))
}

func TestGenerateCombinationsCategoryTagging(t *testing.T) {
	sel := Selection{
		Tops:     []TryOnItem{item("tee")},
		Bottoms:  []TryOnItem{item("jeans")},
		Footwear: []TryOnItem{item("boots")},
	}

	combos := GenerateCombinations(sel)

	require.Len(t, combos, 1)
	require.Len(t, combos[0], 3)
	assert.Equal(t, models.CategoryTops, combos[0][0].Category)
	assert.Equal(t, models.CategoryBottoms, combos[0][1].Category)
	assert.Equal(t, models.CategoryFootwear, combos[0][2].Category)
}

func TestGenerateCombinationsDeterministic(t *testing.T) {
	sel := Selection{
		Tops:        []TryOnItem{item("t1"), item("t2")},
		Bottoms:     []TryOnItem{item("b1")},
		Accessories: []TryOnItem{item("a1"), item("a2")},
	}

	first := GenerateCombinations(sel)
	second := GenerateCombinations(sel)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, names(first[i]), names(second[i]))
	}
}

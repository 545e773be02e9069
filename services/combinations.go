package services

import (
	"fitroomapi/models"
)

// ImageInput is one reference image handed to the generation service.
type ImageInput struct {
	Data     []byte
	MIMEType string
}

func (i ImageInput) Empty() bool {
	return len(i.Data) == 0
}

// TryOnItem is a garment tagged with the category it was selected from,
// carrying the resolved image bytes for request construction.
type TryOnItem struct {
	Garment  models.Garment
	Category models.GarmentCategory
	Image    ImageInput
}

// Selection is the per-category pick of the current try-on request, in
// selection order. Outfits are a full look: when any outfit is selected the
// base layer comes from outfits alone and tops/bottoms are ignored for it.
type Selection struct {
	Outfits     []TryOnItem
	Tops        []TryOnItem
	Bottoms     []TryOnItem
	Footwear    []TryOnItem
	Headwear    []TryOnItem
	Accessories []TryOnItem
}

// Combination is one concrete render request: at most one base layer
// followed by at most one item per accessory category.
type Combination []TryOnItem

// Items returns every selected item across all categories, in category order.
func (s Selection) Items() []TryOnItem {
	var all []TryOnItem
	for _, group := range [][]TryOnItem{s.Outfits, s.Tops, s.Bottoms, s.Footwear, s.Headwear, s.Accessories} {
		all = append(all, group...)
	}
	return all
}

// GenerateCombinations expands a sparse selection into the ordered list of
// outfit combinations to render. Order is fully determined by selection
// order: base candidates form the outer loop, accessory combinations the
// inner loop. An empty selection yields an empty list.
func GenerateCombinations(sel Selection) []Combination {
	var bases []Combination
	if len(sel.Outfits) > 0 {
		// outfits are exclusive with tops/bottoms as a base layer
		for _, outfit := range sel.Outfits {
			bases = append(bases, Combination{tagged(outfit, models.CategoryOutfits)})
		}
	} else {
		// top-major cross of tops x bottoms; either side empty produces none
		for _, top := range sel.Tops {
			for _, bottom := range sel.Bottoms {
				bases = append(bases, Combination{
					tagged(top, models.CategoryTops),
					tagged(bottom, models.CategoryBottoms),
				})
			}
		}
	}

	// an empty accessory category contributes no constraint, not an empty
	// product, so the cross starts from the single empty sequence
	accessorySets := []Combination{{}}
	accessorySets = crossCategory(accessorySets, sel.Footwear, models.CategoryFootwear)
	accessorySets = crossCategory(accessorySets, sel.Headwear, models.CategoryHeadwear)
	accessorySets = crossCategory(accessorySets, sel.Accessories, models.CategoryAccessories)

	if len(bases) == 0 {
		var result []Combination
		for _, accessories := range accessorySets {
			if len(accessories) > 0 {
				result = append(result, accessories)
			}
		}
		return result
	}

	result := make([]Combination, 0, len(bases)*len(accessorySets))
	for _, base := range bases {
		for _, accessories := range accessorySets {
			combo := make(Combination, 0, len(base)+len(accessories))
			combo = append(combo, base...)
			combo = append(combo, accessories...)
			result = append(result, combo)
		}
	}
	return result
}

func tagged(item TryOnItem, category models.GarmentCategory) TryOnItem {
	item.Category = category
	return item
}

func crossCategory(sets []Combination, items []TryOnItem, category models.GarmentCategory) []Combination {
	if len(items) == 0 {
		return sets
	}
	out := make([]Combination, 0, len(sets)*len(items))
	for _, set := range sets {
		for _, item := range items {
			next := make(Combination, len(set), len(set)+1)
			copy(next, set)
			out = append(out, append(next, tagged(item, category)))
		}
	}
	return out
}

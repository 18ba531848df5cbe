package strategy

import "github.com/standardbeagle/refind/internal/types"

// FamilyFields is the spec set behind the family strategy: the same
// widget class under the same kind of parent, with some leaf content on
// both sides but no requirement that it agree. Finds "another row like
// this one".
func FamilyFields() []types.FieldSpec {
	return []types.FieldSpec{
		{Field: types.FieldClass, Weight: 1, Required: true, Mode: types.CompareExact},
		{Field: types.FieldClass, Weight: 0.5, Mode: types.CompareConsistentWithParent},
		{Field: types.FieldText, Weight: 0.5, Mode: types.CompareBothNonEmpty},
		{Field: types.FieldContentDesc, Weight: 0.25, Mode: types.CompareBothNonEmpty},
	}
}

// CloneFields is the spec set behind the clone strategy: near-exact
// duplication of the semantic fields, bounds ignored. Finds repeated
// instances of one list item template.
func CloneFields() []types.FieldSpec {
	return []types.FieldSpec{
		{Field: types.FieldClass, Weight: 1, Required: true, Mode: types.CompareExact},
		{Field: types.FieldText, Weight: 1, Required: true, Mode: types.CompareExact},
		{Field: types.FieldContentDesc, Weight: 0.5, Mode: types.CompareExact},
		{Field: types.FieldResourceID, Weight: 0.25, Mode: types.CompareExact},
	}
}

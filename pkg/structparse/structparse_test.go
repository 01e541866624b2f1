package structparse

import (
	"testing"

	"github.com/rawbytedev/typeconv/internal/common"
	"github.com/rawbytedev/typeconv/pkg/memory"
	"github.com/rawbytedev/typeconv/pkg/typecreator"
	"github.com/rawbytedev/typeconv/pkg/typedesc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafOf(t *testing.T, root *Node, path string) *typecreator.Object {
	t.Helper()
	n := root.Find(path)
	require.NotNil(t, n, path)
	require.True(t, n.IsLeaf(), path)
	return n.Leaf
}

func intAt(t *testing.T, o *typecreator.Object, i, j int) int64 {
	t.Helper()
	b, err := o.Element(i, j)
	require.NoError(t, err)
	return common.LoadInt(b, 8)
}

func floatAt(t *testing.T, o *typecreator.Object, i, j int) float64 {
	t.Helper()
	b, err := o.Element(i, j)
	require.NoError(t, err)
	return common.LoadFloat(b, 8)
}

func textAt(t *testing.T, o *typecreator.Object, i, j int) string {
	t.Helper()
	s, err := o.Text(i, j)
	require.NoError(t, err)
	return s
}

// checkCommon asserts the content shared by the JSON and YAML documents.
func checkCommon(t *testing.T, root *Node) {
	rate := leafOf(t, root, "rate")
	assert.Equal(t, typedesc.Int64, rate.Leaf())
	assert.Equal(t, typecreator.ShapeScalar, rate.Shape())
	assert.Equal(t, int64(1000), intAt(t, rate, 0, 0))

	gains := leafOf(t, root, "gains")
	assert.Equal(t, typedesc.Float64, gains.Leaf())
	assert.Equal(t, "A3", gains.Variable().Desc.Modifiers())
	assert.Equal(t, 2.0, floatAt(t, gains, 0, 1))

	assert.Equal(t, "loop", textAt(t, leafOf(t, root, "name"), 0, 0))

	on := leafOf(t, root, "on")
	assert.Equal(t, typedesc.Uint8, on.Leaf())
	b, err := on.Element(0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, b)

	table := leafOf(t, root, "table")
	assert.Equal(t, typecreator.ShapeMatrix, table.Shape())
	assert.Equal(t, "A2A2", table.Variable().Desc.Modifiers())
	assert.Equal(t, int64(3), intAt(t, table, 1, 0))

	assert.Equal(t, int64(3), intAt(t, leafOf(t, root, "nested.id"), 0, 0))

	none := root.Child("none")
	require.NotNil(t, none)
	assert.False(t, none.IsLeaf())
	assert.Empty(t, none.Children)

	mixed := leafOf(t, root, "mixed")
	assert.Equal(t, typedesc.CCStringType, mixed.Leaf())
	assert.Equal(t, "1", textAt(t, mixed, 0, 0))
	assert.Equal(t, "a", textAt(t, mixed, 0, 1))
}

func TestJSON(t *testing.T) {
	doc := `{
		"rate": 1000,
		"gains": [1.5, 2, 2.5],
		"name": "loop",
		"on": true,
		"table": [[1, 2], [3, 4]],
		"nested": {"id": 3},
		"none": null,
		"mixed": [1, "a"]
	}`
	space := memory.NewSpace()
	root, err := ParseString(typedesc.FormatJSON, doc, space)
	require.NoError(t, err)
	checkCommon(t, root)
	root.Release()
	assert.Equal(t, 0, space.Len())

	_, err = ParseString(typedesc.FormatJSON, `{"a": 1} {"b": 2}`, space)
	assert.Error(t, err)
	_, err = ParseString(typedesc.FormatJSON, `{"a": }`, space)
	assert.Error(t, err)
}

func TestYAML(t *testing.T) {
	doc := `
rate: 1000
gains: [1.5, 2, 2.5]
name: loop
on: true
table:
  - [1, 2]
  - [3, 4]
nested:
  id: 3
none: ~
mixed: [1, a]
`
	root, err := ParseString(typedesc.FormatYAML, doc, memory.NewSpace())
	require.NoError(t, err)
	defer root.Release()
	checkCommon(t, root)
}

func TestXML(t *testing.T) {
	doc := `<?xml version="1.0"?>
<cfg rate="1000">
	<gains>1.5 2 2.5</gains>
	<name>main loop</name>
	<motor><id>3</id><enabled>true</enabled></motor>
	<empty/>
</cfg>`
	root, err := ParseString(typedesc.FormatXML, doc, memory.NewSpace())
	require.NoError(t, err)
	defer root.Release()

	assert.Equal(t, "cfg", root.Name)
	assert.Equal(t, int64(1000), intAt(t, leafOf(t, root, "rate"), 0, 0))
	gains := leafOf(t, root, "gains")
	assert.Equal(t, typecreator.ShapeVector, gains.Shape())
	assert.Equal(t, 2.5, floatAt(t, gains, 0, 2))
	assert.Equal(t, "main loop", textAt(t, leafOf(t, root, "name"), 0, 0))
	assert.Equal(t, int64(3), intAt(t, leafOf(t, root, "motor.id"), 0, 0))
	assert.Equal(t, typedesc.Uint8, leafOf(t, root, "motor.enabled").Leaf())
	assert.False(t, root.Child("empty").IsLeaf())
}

func TestCDB(t *testing.T) {
	doc := `
# controller settings
Sampling = 1000
Label = "main \"loop\""
Gains = { 1.5 2 2.5 }
Table = { { 1 2 } { 3 4 } }
Ragged = { { 1 2 3 } { 4 } }
// motor block
Motor = {
	Id = 0x10
	Enabled = true
	Limits = { -5, 5 }
}
`
	root, err := ParseString(typedesc.FormatCDB, doc, memory.NewSpace())
	require.NoError(t, err)
	defer root.Release()

	assert.Equal(t, int64(1000), intAt(t, leafOf(t, root, "Sampling"), 0, 0))
	assert.Equal(t, `main "loop"`, textAt(t, leafOf(t, root, "Label"), 0, 0))
	assert.Equal(t, 1.5, floatAt(t, leafOf(t, root, "Gains"), 0, 0))
	assert.Equal(t, "A2A2", leafOf(t, root, "Table").Variable().Desc.Modifiers())

	ragged := leafOf(t, root, "Ragged")
	assert.Equal(t, typecreator.ShapeSparseMatrix, ragged.Shape())
	lengths, err := ragged.RowLengths()
	require.NoError(t, err)
	assert.Equal(t, []uint32{3, 1}, lengths)

	assert.Equal(t, int64(16), intAt(t, leafOf(t, root, "Motor.Id"), 0, 0))
	assert.Equal(t, int64(-5), intAt(t, leafOf(t, root, "Motor.Limits"), 0, 0))

	var paths []string
	root.Walk(func(path string, n *Node) bool {
		if n.IsLeaf() {
			paths = append(paths, path)
		}
		return true
	})
	assert.Equal(t, []string{
		"Sampling", "Label", "Gains", "Table", "Ragged",
		"Motor.Id", "Motor.Enabled", "Motor.Limits",
	}, paths)
}

func TestCDBErrors(t *testing.T) {
	space := memory.NewSpace()
	for _, doc := range []string{
		"A = ",
		"A 1",
		`A = "open`,
		"A = { 1 2",
		"= 3",
	} {
		_, err := ParseString(typedesc.FormatCDB, doc, space)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, doc)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := ParseString(typedesc.FormatNone, "{}", memory.NewSpace())
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

package mesh

import (
	"fmt"

	"github.com/Faultbox/pssgconv/pkg/math"
	"github.com/Faultbox/pssgconv/pkg/pssg"
)

// Transform decodes the root transform. Without a root node, or when the
// root holds zero or several render nodes, the identity matrix is returned.
func Transform(root *pssg.RootNode) (math.Mat4, error) {
	if root == nil || len(root.RenderNodes) != 1 {
		return math.Identity(), nil
	}
	node := root.RenderNodes[0]

	values, err := pssg.DecodeFloats(node.Transform, pssg.DataTypeFloat)
	if err != nil {
		return math.Mat4{}, fmt.Errorf("%w: node %s: %w", ErrInvalidTransform, node.ID, err)
	}
	m, err := math.Mat4FromSlice(values)
	if err != nil {
		return math.Mat4{}, fmt.Errorf("%w: node %s: %w", ErrInvalidTransform, node.ID, err)
	}
	return m, nil
}

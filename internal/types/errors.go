package types

import "errors"

var (
	// ErrPoolTokenOrder is returned when Pool.Token0 is not bytewise less
	// than Pool.Token1.
	ErrPoolTokenOrder = errors.New("types: pool token0 must be less than token1")

	// ErrTrianglePoolsNotDistinct is returned when a PoolPath's three tokens
	// are not pairwise distinct.
	ErrTrianglePoolsNotDistinct = errors.New("types: triangle tokens must be pairwise distinct")

	// ErrFeeGate is returned when a path's summed fee exceeds the 1% cap.
	ErrFeeGate = errors.New("types: summed hop fees exceed 10000 ppm")
)

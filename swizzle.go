package accel

// VirtualBlockIdx reorders block indices so that consecutive blocks in a
// run of factor are spread across the grid, improving locality for kernels
// whose neighbouring blocks touch distant memory. It is a bijection on
// [0, n). A factor of one or less, or larger than n, is the identity.
//
// The grid is viewed as a factor x (n/factor) matrix stored row-major and
// read column-major. Blocks past the largest multiple of factor are left
// in place.
func VirtualBlockIdx(b, n, factor int) int {
	if factor <= 1 || factor > n {
		return b
	}
	rows := n / factor
	full := rows * factor
	if b >= full {
		return b
	}
	return (b%factor)*rows + b/factor
}

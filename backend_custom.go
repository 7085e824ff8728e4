//go:build accel_custom_backend

package accel

import "github.com/LynnColeArt/accel/backend"

// openBackend selects among the backends the binary registered itself.
func openBackend(name string, _ int) (backend.Backend, error) {
	return backend.Open(name)
}

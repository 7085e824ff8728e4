//go:build !accel_custom_backend

package accel

import (
	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/backend/cpu"
)

func openBackend(name string, workers int) (backend.Backend, error) {
	if (name == "" || name == cpu.Name) && workers > 0 {
		return cpu.NewWithWorkers(workers), nil
	}
	return backend.Open(name)
}

// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The GUDA Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package accel is a portability layer for data-parallel algorithm code.
//
// Algorithm code is written once against this package and runs on whichever
// backend the binary was built with. The package provides:
//
//   - A runtime API shim over memory transfer and fill, streams, events and
//     kernel submission, with a single last-error slot and a uniform policy
//     for classifying backend failures
//   - Launch1D, Launch2D and Launch3D, which map launched lanes onto a
//     functor's logical index space using a direct, grid-stride or
//     static-partition strategy, with optional block swizzling
//   - Reduce2D and MultiReduce, which fold a functor over its index space
//     with a deterministic block-then-grid combine, delivering the result
//     either to host memory or, asynchronously, to device memory
//   - A tune cache and probe harness that times candidate launch shapes
//     while failures are recoverable
//
// # Basic Usage
//
// A kernel is a functor carrying its logical extent:
//
//	type scale struct {
//		accel.KernelArg
//		x []float32
//		a float32
//	}
//
//	func (s scale) Apply(i int) { s.x[i] *= s.a }
//
// It is launched on a stream of a context:
//
//	ctx, err := accel.NewContext()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	x := make([]float32, n)
//	tp := accel.LaunchConfig{Grid: target.D3((n+255)/256, 1, 1), Block: target.D3(256, 1, 1)}
//	err = accel.Launch1D(ctx, tp, ctx.DefaultStream(), scale{accel.KernelArg{Threads: target.D3(n, 1, 1)}, x, 2})
//	ctx.StreamSynchronize(ctx.DefaultStream(), accel.Here())
//
// # Errors
//
// Every shim call records failures in the context's last error slot, read
// and cleared by GetLastError. Failures that leave the device in an
// undefined state go to the context's FatalHandler, which by default logs
// and exits. While a tuning probe is active, launch failures whose code is
// in the recoverable set are returned as errors satisfying IsRecoverable
// instead.
//
// # Configuration
//
// NewContext reads its defaults from the ACCEL_* environment variables
// documented in the envconfig package; options override them.
//
// # Backends
//
// The CPU backend in backend/cpu is linked in unless the binary is built
// with the accel_custom_backend tag, in which case the program registers its
// own backend with backend.Register.
package accel

// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers cover project fixtures (WriteFiles, MustWriteFile), environment
// variables (MustSetenv), a manually advanced clock (FakeClock) and a limit on
// concurrently running test containers (ContainerSemaphore).
package testutil

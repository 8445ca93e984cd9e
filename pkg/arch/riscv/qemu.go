// Copyright 2025 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package riscv

import (
	"github.com/kernhal/kernhal/pkg/mmio"
)

// QemuExitCode is the status reported to the host when the machine exits.
type QemuExitCode uint32

// Exit codes.
const (
	QemuExitSuccess QemuExitCode = 0x10
	QemuExitFailed  QemuExitCode = 0x20
)

const (
	// QemuExitBase is the physical address of the sifive_test device on
	// QEMU virt.
	QemuExitBase = 0x10_0000

	// QemuExitSize is the size of its window.
	QemuExitSize = 0x1000

	sifiveTestPass = 0x5555
	sifiveTestFail = 0x3333
)

// ExitQemu stops the machine through the sifive_test device in r. Success
// exits QEMU with status 0; any other code is reported as the exit status.
func ExitQemu(r mmio.Region, code QemuExitCode) {
	v := uint32(sifiveTestPass)
	if code != QemuExitSuccess {
		v = uint32(code)<<16 | sifiveTestFail
	}
	mmio.Regs{Region: r, Name: "qemu-exit"}.Store32(0, v)
}

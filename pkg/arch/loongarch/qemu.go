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

package loongarch

import (
	"github.com/kernhal/kernhal/pkg/mmio"
)

// QemuExitCode is the status reported to the host when the machine exits.
type QemuExitCode uint32

// Exit codes. QEMU exits with (code << 1) | 1, so zero cannot be told apart
// from a QEMU failure.
const (
	QemuExitSuccess QemuExitCode = 0x10
	QemuExitFailed  QemuExitCode = 0x20
)

const (
	// QemuExitBase is the physical address of the ISA debug exit port
	// (I/O port 0xf4 plus 0x1000_0000) on LoongArch virt, less the
	// register offset.
	QemuExitBase = 0x100e_0000

	// QemuExitOffset is the offset of the exit register in its window.
	QemuExitOffset = 0x1c

	qemuExitValue = 0x34
)

// ExitQemu stops the machine by writing the exit port in r, the window at
// QemuExitBase. The debug device on this machine latches a fixed value, so
// the exit code is not conveyed.
func ExitQemu(r mmio.Region, _ QemuExitCode) {
	mmio.Regs{Region: r, Name: "qemu-exit"}.Store8(QemuExitOffset, qemuExitValue)
}

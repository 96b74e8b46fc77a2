package memsys_test

import (
	"testing"

	"github.com/cubesat-core/flightsw/memsys"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestMemsys(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "memsys")
}

var _ = Describe("Allocator", func() {
	Describe("allocate/free", func() {
		It("returns the pool to its prior allocated level on a round trip", func() {
			a := memsys.New(4096)
			before := a.Diagnostics().Allocated

			b := a.Allocate(256)
			Expect(b).NotTo(BeNil())
			Expect(b.Bytes).To(HaveLen(256))

			a.Free(b)
			Expect(a.Diagnostics().Allocated).To(Equal(before))
		})

		It("reports unhealthy only if allocated exceeds peak or capacity", func() {
			a := memsys.New(1024)
			blocks := make([]*memsys.Block, 0, 8)
			for i := 0; i < 8; i++ {
				blocks = append(blocks, a.Allocate(32))
			}
			Expect(a.Healthy()).To(BeTrue())
			for _, b := range blocks {
				a.Free(b)
			}
			d := a.Diagnostics()
			Expect(d.Allocated).To(BeZero())
			Expect(d.PeakAllocated).To(BeNumerically(">=", d.Allocated))
		})

		It("increments oom_count monotonically under exhaustion", func() {
			a := memsys.New(128)
			var sawOOM bool
			for i := 0; i < 20; i++ {
				if a.Allocate(64) == nil {
					sawOOM = true
					break
				}
			}
			Expect(sawOOM).To(BeTrue())
			before := a.Diagnostics().OOMCount
			a.Allocate(64)
			Expect(a.Diagnostics().OOMCount).To(BeNumerically(">=", before))
		})
	})
})

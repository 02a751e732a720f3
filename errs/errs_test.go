package errs

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Error kinds", func() {
	It("should detect wrapped configuration errors", func() {
		err := fmt.Errorf("planning: %w", Configf("overlap", "must be less than %d", 8))

		Expect(IsConfiguration(err)).To(BeTrue())
		Expect(IsResource(err)).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("overlap: must be less than 8"))
	})

	It("should carry resource details", func() {
		cause := errors.New("out of memory")
		err := fmt.Errorf("fft: %w", &ResourceError{
			Op:             "allocate",
			RequiredBytes:  1024,
			AvailableBytes: 512,
			Shape:          []int{4, 4, 4, 2, 2, 2, 2},
			Err:            cause,
		})

		re, ok := AsResource(err)
		Expect(ok).To(BeTrue())
		Expect(re.RequiredBytes).To(Equal(uint64(1024)))
		Expect(re.AvailableBytes).To(Equal(uint64(512)))
		Expect(errors.Is(err, cause)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("shape [4 4 4 2 2 2 2]"))
	})

	It("should detect numerical errors", func() {
		err := &NumericalError{Op: "relax", Reason: "non-finite value"}

		Expect(IsNumerical(err)).To(BeTrue())
		Expect(IsConfiguration(err)).To(BeFalse())
	})
})

package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UserAgent", func() {
	It("carries the build version and sha", func() {
		Expect(UserAgent()).To(Equal("strata/" + Version + " (" + Sha + ")"))
	})
})

package versioncmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/papercomputeco/strata/cmd/version"
	"github.com/papercomputeco/strata/pkg/utils"
)

var _ = Describe("NewVersionCmd", func() {
	var out bytes.Buffer

	execute := func(args ...string) error {
		out.Reset()
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("prints the build metadata", func() {
		Expect(execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(utils.Version))
		Expect(out.String()).To(ContainSubstring(utils.Sha))
		Expect(out.String()).To(ContainSubstring("go"))
	})

	It("prints only the version with --short", func() {
		Expect(execute("--short")).To(Succeed())
		Expect(out.String()).To(Equal(utils.Version + "\n"))
	})

	It("rejects arguments", func() {
		Expect(execute("extra")).NotTo(Succeed())
	})
})

package stratacmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	stratacmder "github.com/papercomputeco/strata/cmd/strata"
)

var _ = Describe("NewStrataCmd", func() {
	It("registers every top-level command", func() {
		cmd := stratacmder.NewStrataCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "memory", "config", "init", "version"))
	})

	It("provides the global flags", func() {
		cmd := stratacmder.NewStrataCmd()
		Expect(cmd.PersistentFlags().Lookup("debug")).NotTo(BeNil())
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})

	It("runs a nested command", func() {
		cmd := stratacmder.NewStrataCmd()
		cmd.SetOut(GinkgoWriter)
		cmd.SetArgs([]string{"config", "get", "maintenance.interval", "--config-dir", GinkgoT().TempDir()})
		Expect(cmd.Execute()).To(Succeed())
	})
})

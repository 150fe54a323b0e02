package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		dir string
		out *bytes.Buffer
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	run := func(args ...string) error {
		root := &cobra.Command{Use: "strata", SilenceUsage: true, SilenceErrors: true}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(configcmder.NewConfigCmd())
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append([]string{"config"}, append(args, "--config-dir", dir)...))
		return root.Execute()
	}

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "maintenance.interval", "2m")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("[maintenance]"))
			Expect(out.String()).To(ContainSubstring("maintenance.interval"))
		})

		It("rejects unknown keys", func() {
			Expect(run("set", "invalid_key", "value")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "maintenance.interval")).To(HaveOccurred())
		})

		It("rejects zero arguments", func() {
			Expect(run("set")).To(HaveOccurred())
		})

		It("rejects values that do not parse", func() {
			Expect(run("set", "maintenance.workers", "not-a-number")).To(HaveOccurred())
			Expect(run("set", "maintenance.interval", "soon")).To(HaveOccurred())
		})

		It("rejects values outside the allowed set", func() {
			Expect(run("set", "storage.provider", "cassandra")).To(MatchError(ContainSubstring("allowed")))
		})

		It("rejects values that leave the config invalid", func() {
			Expect(run("set", "events.provider", "kafka")).To(MatchError(ContainSubstring("broker")))
			Expect(filepath.Join(dir, "config.toml")).NotTo(BeAnExistingFile())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "circuit_breaker.failure_threshold", "7")).To(Succeed())
			out.Reset()

			Expect(run("get", "circuit_breaker.failure_threshold")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("7"))
		})

		It("reports defaults for unset keys", func() {
			Expect(run("get", "maintenance.interval")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("5m0s"))
		})

		It("shows unset string keys as not set", func() {
			Expect(run("get", "storage.postgres_dsn")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("<not set>"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).To(HaveOccurred())
		})

		It("requires exactly one argument", func() {
			Expect(run("get")).To(HaveOccurred())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key with defaults", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("storage.provider"))
			Expect(out.String()).To(ContainSubstring("tiers.ltm.fail_maintenance"))
			Expect(out.String()).To(ContainSubstring(`"sqlite"`))
		})

		It("shows values that were set", func() {
			Expect(run("set", "api.listen", ":9999")).To(Succeed())
			out.Reset()

			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring(`":9999"`))
		})

		It("limits the listing to a section", func() {
			Expect(run("list", "circuit_breaker")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("circuit_breaker.failure_threshold"))
			Expect(out.String()).NotTo(ContainSubstring("storage.provider"))
		})

		It("rejects an unknown section", func() {
			Expect(run("list", "nope")).To(MatchError(ContainSubstring(`section "nope"`)))
		})

		It("rejects more than one argument", func() {
			Expect(run("list", "storage", "extra")).To(HaveOccurred())
		})
	})
})

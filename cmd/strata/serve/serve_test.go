package servecmder_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	servecmder "github.com/papercomputeco/strata/cmd/strata/serve"
)

// newRoot mirrors the persistent flags the strata root command provides.
func newRoot() *cobra.Command {
	root := &cobra.Command{Use: "strata", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().BoolP("debug", "d", false, "")
	root.PersistentFlags().String("config-dir", "", "")
	root.AddCommand(servecmder.NewServeCmd())
	return root
}

var _ = Describe("NewServeCmd", func() {
	It("registers the engine flags with config defaults", func() {
		cmd := servecmder.NewServeCmd()
		Expect(cmd.Use).To(Equal("serve"))

		listen := cmd.Flags().Lookup("listen")
		Expect(listen).NotTo(BeNil())
		Expect(listen.DefValue).To(Equal(":8090"))

		interval := cmd.Flags().Lookup("interval")
		Expect(interval).NotTo(BeNil())
		Expect(interval.DefValue).To(Equal("5m0s"))

		for _, name := range []string{"storage-provider", "sqlite", "workers", "kafka-brokers", "drain-timeout", "no-mcp", "log-json", "log-file"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})
})

var _ = Describe("serve execution", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	It("rejects an invalid storage provider before starting", func() {
		root := newRoot()
		root.SetArgs([]string{"serve", "--config-dir", dir, "--storage-provider", "cassandra"})
		err := root.Execute()
		Expect(err).To(MatchError(ContainSubstring("storage provider")))
	})

	It("rejects an invalid config file", func() {
		Expect(os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[maintenance]\ninterval = \"-1s\"\n"), 0o600)).To(Succeed())

		root := newRoot()
		root.SetArgs([]string{"serve", "--config-dir", dir})
		Expect(root.Execute()).To(HaveOccurred())
	})

	It("starts and shuts down cleanly when its context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		root := newRoot()
		root.SetArgs([]string{
			"serve",
			"--config-dir", dir,
			"--listen", "127.0.0.1:0",
			"--storage-provider", "inmemory",
			"--events-provider", "nop",
			"--no-mcp",
		})
		Expect(root.ExecuteContext(ctx)).To(Succeed())

		// No cycle ran, so no report is cached.
		Expect(filepath.Join(dir, "last_report.json")).NotTo(BeAnExistingFile())
	})

	It("tees JSON logs into --log-file", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		logPath := filepath.Join(dir, "serve.log")
		root := newRoot()
		root.SetArgs([]string{
			"serve",
			"--config-dir", dir,
			"--listen", "127.0.0.1:0",
			"--storage-provider", "inmemory",
			"--events-provider", "nop",
			"--no-mcp",
			"--log-file", logPath,
		})
		Expect(root.ExecuteContext(ctx)).To(Succeed())

		data, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(ContainSubstring(`"msg":"shutdown complete"`))
	})

	It("refuses new cycles before it stops the scheduler", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		logPath := filepath.Join(dir, "serve.log")
		root := newRoot()
		root.SetArgs([]string{
			"serve",
			"--config-dir", dir,
			"--listen", "127.0.0.1:0",
			"--storage-provider", "inmemory",
			"--events-provider", "nop",
			"--no-mcp",
			"--log-file", logPath,
		})
		Expect(root.ExecuteContext(ctx)).To(Succeed())

		data, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		logs := string(data)
		refusing := strings.Index(logs, "refusing new cycles")
		stopped := strings.Index(logs, "maintenance scheduler stopped")
		Expect(refusing).To(BeNumerically(">=", 0))
		Expect(stopped).To(BeNumerically(">", refusing))
	})
})

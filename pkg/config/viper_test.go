package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/config"
)

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("resolves defaults when no config file exists", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("reads values from config.toml", func() {
		data := "[maintenance]\ninterval = \"45s\"\nbatch_size = 7\n\n[circuit_breaker]\ncooldown = \"1m\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Maintenance.Interval).To(Equal(45 * time.Second))
		Expect(cfg.Maintenance.BatchSize).To(Equal(7))
		Expect(cfg.CircuitBreaker.Cooldown).To(Equal(time.Minute))
	})

	It("lets STRATA_ environment variables override the file", func() {
		data := "[api]\nlisten = \":9000\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())
		GinkgoT().Setenv("STRATA_API_LISTEN", ":9999")
		GinkgoT().Setenv("STRATA_TIERS_MTM_FAIL_MAINTENANCE", "true")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.API.Listen).To(Equal(":9999"))
		Expect(cfg.Tiers.MTM.FailMaintenance).To(BeTrue())
	})

	It("fails FromViper on settings that do not validate", func() {
		GinkgoT().Setenv("STRATA_STORAGE_PROVIDER", "mysql")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		_, err = config.FromViper(v)
		Expect(err).To(MatchError(ContainSubstring("unsupported storage provider")))
	})

	It("reports a malformed config file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api\n"), 0o600)).To(Succeed())

		_, err := config.InitViper(tmpDir)
		Expect(err).To(MatchError(ContainSubstring("reading config")))
	})
})

var _ = Describe("WatchConfig", func() {
	It("hands reloaded configs to the callback", func() {
		tmpDir, err := os.MkdirTemp("", "watch-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[maintenance]\ninterval = \"5m\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		var (
			mu       sync.Mutex
			received *config.Config
		)
		config.WatchConfig(v, nil, func(cfg *config.Config) {
			mu.Lock()
			defer mu.Unlock()
			received = cfg
		})

		Expect(os.WriteFile(path, []byte("[maintenance]\ninterval = \"3m\"\n"), 0o600)).To(Succeed())

		Eventually(func() time.Duration {
			mu.Lock()
			defer mu.Unlock()
			if received == nil {
				return 0
			}
			return received.Maintenance.Interval
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(3 * time.Minute))
	})
})

var _ = Describe("BindFlags", func() {
	It("AddStringFlag pulls name, shorthand, and default from the registry", func() {
		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &target)

		f := cmd.Flags().Lookup("sqlite")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("s"))
		Expect(f.Usage).To(Equal("Path to the SQLite database"))

		cmd = &cobra.Command{Use: "test"}
		config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &target)
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(":8090"))
	})

	It("AddDurationFlag and AddIntFlag use typed defaults", func() {
		cmd := &cobra.Command{Use: "test"}
		var interval time.Duration
		var workers int
		config.AddDurationFlag(cmd, config.Flags, config.FlagInterval, &interval)
		config.AddIntFlag(cmd, config.Flags, config.FlagWorkers, &workers)

		Expect(interval).To(Equal(5 * time.Minute))
		Expect(workers).To(Equal(4))
	})

	It("ignores unknown registry keys", func() {
		cmd := &cobra.Command{Use: "test"}
		var target string
		config.AddStringFlag(cmd, config.Flags, "nope", &target)
		Expect(cmd.Flags().HasFlags()).To(BeFalse())
	})

	It("binds flags above env and file values", func() {
		tmpDir, err := os.MkdirTemp("", "flags-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)
		GinkgoT().Setenv("STRATA_MAINTENANCE_INTERVAL", "2m")

		cmd := &cobra.Command{Use: "test"}
		var interval time.Duration
		config.AddDurationFlag(cmd, config.Flags, config.FlagInterval, &interval)
		Expect(cmd.Flags().Set("interval", "30s")).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagInterval})

		cfg, err := config.FromViper(v)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Maintenance.Interval).To(Equal(30 * time.Second))
	})
})

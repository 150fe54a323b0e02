package initcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/strata/cmd/strata/init"
	"github.com/papercomputeco/strata/pkg/config"
)

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{})).To(Succeed())
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir = GinkgoT().TempDir()

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	execute := func(args ...string) error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(GinkgoWriter)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	It("creates a .strata directory with a default config", func() {
		Expect(execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".strata"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		Expect(cfg.Maintenance.Interval).To(Equal(5 * time.Minute))
		Expect(cfg.API.Listen).To(Equal(":8090"))
	})

	It("does not overwrite an existing config without a preset", func() {
		strataDir := filepath.Join(tmpDir, ".strata")
		Expect(os.MkdirAll(strataDir, 0o755)).To(Succeed())
		existing := "[api]\nlisten = \":7000\"\n"
		Expect(os.WriteFile(filepath.Join(strataDir, "config.toml"), []byte(existing), 0o600)).To(Succeed())

		Expect(execute()).To(Succeed())

		data, err := os.ReadFile(filepath.Join(strataDir, "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal(existing))
	})

	Describe("--preset", func() {
		It("writes the production preset", func() {
			Expect(execute("--preset", "production")).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Storage.Provider).To(Equal("postgres"))
			Expect(cfg.Events.Provider).To(Equal("kafka"))
			Expect(cfg.VectorStore.Provider).To(Equal("qdrant"))
		})

		It("overwrites the config when re-run with another preset", func() {
			Expect(execute("--preset", "local")).To(Succeed())
			Expect(loadConfig(tmpDir).Storage.Provider).To(Equal("inmemory"))

			Expect(execute("--preset", "sqlite")).To(Succeed())
			Expect(loadConfig(tmpDir).Storage.Provider).To(Equal("sqlite"))
		})

		It("rejects unknown preset names without creating anything", func() {
			err := execute("--preset", "mainframe")
			Expect(err).To(MatchError(ContainSubstring("unknown preset")))
			Expect(filepath.Join(tmpDir, ".strata")).NotTo(BeADirectory())
		})
	})

	Describe("--preset with a remote URL", func() {
		It("fetches and writes the remote config", func() {
			remote := "version = 0\n\n[maintenance]\ninterval = \"90s\"\n\n[api]\nlisten = \":9090\"\n"
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, remote)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(Succeed())

			cfg := loadConfig(tmpDir)
			Expect(cfg.Maintenance.Interval).To(Equal(90 * time.Second))
			Expect(cfg.API.Listen).To(Equal(":9090"))
			Expect(cfg.Storage.Provider).To(Equal("sqlite"))
		})

		It("returns an error for a non-200 response", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("HTTP 404")))
		})

		It("returns an error for invalid TOML", func() {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprint(w, "this is not valid toml [[[")
			}))
			defer server.Close()

			Expect(execute("--preset", server.URL)).To(MatchError(ContainSubstring("parsing")))
		})

		It("returns an error for an unreachable URL", func() {
			Expect(execute("--preset", "http://127.0.0.1:1")).To(MatchError(ContainSubstring("fetching remote config")))
		})
	})
})

// loadConfig reads and parses the config.toml from the .strata directory
// within baseDir.
func loadConfig(baseDir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(baseDir, ".strata", "config.toml"))
	ExpectWithOffset(1, err).NotTo(HaveOccurred())

	cfg := config.NewDefaultConfig()
	ExpectWithOffset(1, toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}
